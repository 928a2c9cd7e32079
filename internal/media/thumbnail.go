// Package media provides stateless thumbnail rendering with an optional
// background queue so callers never block on image work.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/humancuration/cpc-core/internal/logging"
)

// Generate renders a thumbnail of the image at sourcePath into outputPath.
// The result fits inside a size x size box with the aspect ratio preserved.
// File-to-file and stateless; safe to call from any goroutine.
func Generate(sourcePath, outputPath string, size int) error {
	if size <= 0 {
		return fmt.Errorf("thumbnail size must be positive, got %d", size)
	}
	if sourcePath == "" || outputPath == "" {
		return fmt.Errorf("source and output paths must not be empty")
	}

	// Sniff the content before decoding so non-image inputs fail with a
	// clear message instead of a decoder error.
	mime, err := mimetype.DetectFile(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}
	if !strings.HasPrefix(mime.String(), "image/") {
		return fmt.Errorf("unsupported source type %s, expected an image", mime.String())
	}

	img, err := imaging.Open(sourcePath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode source image: %w", err)
	}

	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := imaging.Save(thumb, outputPath, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("failed to save thumbnail: %w", err)
	}
	return nil
}

// Job is one queued thumbnail request.
type Job struct {
	ID         string
	SourcePath string
	OutputPath string
	Size       int
	CreatedAt  time.Time
	Callback   func(error)
}

// Stats holds queue counters.
type Stats struct {
	TotalProcessed int
	SuccessCount   int
	FailureCount   int
	PendingCount   int
	AvgDurationMs  int64
}

// Queue renders thumbnails on background workers.
type Queue struct {
	jobs      chan *Job
	workers   int
	wg        sync.WaitGroup
	stopCh    chan struct{}
	mu        sync.Mutex
	isRunning bool
	stats     Stats
}

// NewQueue creates a queue with the given buffer size and worker count.
func NewQueue(queueSize, workers int) *Queue {
	if queueSize <= 0 {
		queueSize = 64
	}
	if workers <= 0 {
		workers = 2
	}
	return &Queue{
		jobs:    make(chan *Job, queueSize),
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.isRunning {
		q.mu.Unlock()
		return
	}
	q.isRunning = true
	q.mu.Unlock()

	logging.Info("Starting thumbnail queue", map[string]interface{}{
		"workers":    q.workers,
		"queue_size": cap(q.jobs),
	})

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Stop drains the workers gracefully.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return
	}
	q.isRunning = false
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()

	q.mu.Lock()
	stats := q.stats
	q.mu.Unlock()
	logging.Info("Thumbnail queue stopped", map[string]interface{}{
		"total_processed": stats.TotalProcessed,
		"success_count":   stats.SuccessCount,
		"failure_count":   stats.FailureCount,
	})
}

// Enqueue requests background generation without blocking. It returns the
// job id, or an error when the queue is stopped or full.
func (q *Queue) Enqueue(sourcePath, outputPath string, size int, callback func(error)) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isRunning {
		return "", fmt.Errorf("thumbnail queue is not running")
	}

	job := &Job{
		ID:         fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(sourcePath)),
		SourcePath: sourcePath,
		OutputPath: outputPath,
		Size:       size,
		CreatedAt:  time.Now(),
		Callback:   callback,
	}

	select {
	case q.jobs <- job:
		q.stats.PendingCount++
		return job.ID, nil
	default:
		return "", fmt.Errorf("thumbnail queue is full (capacity: %d)", cap(q.jobs))
	}
}

// GenerateSync renders a thumbnail on the calling goroutine and records it
// in the queue stats. Use for thumbnails the caller must wait for.
func (q *Queue) GenerateSync(ctx context.Context, sourcePath, outputPath string, size int) error {
	start := time.Now()
	err := Generate(sourcePath, outputPath, size)
	q.record(err, time.Since(start).Milliseconds(), false)
	return err
}

// worker consumes jobs until stopped.
func (q *Queue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case job := <-q.jobs:
			q.processJob(job, workerID)
		}
	}
}

// processJob renders one queued thumbnail.
func (q *Queue) processJob(job *Job, workerID int) {
	start := time.Now()
	err := Generate(job.SourcePath, job.OutputPath, job.Size)
	duration := time.Since(start).Milliseconds()
	q.record(err, duration, true)

	if job.Callback != nil {
		// Run callbacks off the worker so a slow callback cannot stall the queue.
		go job.Callback(err)
	}

	if err != nil {
		logging.Error("Thumbnail generation failed", err, map[string]interface{}{
			"job_id":      job.ID,
			"worker_id":   workerID,
			"duration_ms": duration,
			"source_path": job.SourcePath,
		})
	} else {
		logging.Debug("Thumbnail generated", map[string]interface{}{
			"job_id":      job.ID,
			"worker_id":   workerID,
			"duration_ms": duration,
			"output_path": job.OutputPath,
		})
	}
}

// record folds one outcome into the stats.
func (q *Queue) record(err error, durationMs int64, wasQueued bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if wasQueued {
		q.stats.PendingCount--
	}
	q.stats.TotalProcessed++
	if err != nil {
		q.stats.FailureCount++
	} else {
		q.stats.SuccessCount++
	}
	total := q.stats.AvgDurationMs*int64(q.stats.TotalProcessed-1) + durationMs
	q.stats.AvgDurationMs = total / int64(q.stats.TotalProcessed)
}

// GetStats returns a copy of the current counters.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// IsRunning reports whether workers are active.
func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.isRunning
}

// PendingCount returns the number of jobs waiting for a worker.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats.PendingCount
}
