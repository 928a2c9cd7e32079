package timeline

import (
	"container/heap"

	"github.com/humancuration/cpc-core/internal/models"
)

// mergeItem tracks the cursor into one author stream during a merge.
type mergeItem struct {
	post *models.Post
	rest []*models.Post
}

// mergeHeap orders stream heads newest first: created_at descending with
// post id descending on ties, matching the per-stream order.
type mergeHeap []*mergeItem

func (h mergeHeap) Len() int           { return len(h) }
func (h mergeHeap) Less(i, j int) bool { return h[j].post.Before(h[i].post) }
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x interface{}) {
	*h = append(*h, x.(*mergeItem))
}

func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// mergeStreams k-way merges per-author post streams into a single reverse
// chronological sequence of at most max entries. Each input stream must
// already be sorted newest first. The second return value reports whether
// the merge stopped at max with posts still unconsumed.
func mergeStreams(streams map[models.UUID][]*models.Post, max int) ([]models.TimelineEntry, bool) {
	h := make(mergeHeap, 0, len(streams))
	total := 0
	for _, posts := range streams {
		total += len(posts)
		if len(posts) > 0 {
			h = append(h, &mergeItem{post: posts[0], rest: posts[1:]})
		}
	}
	heap.Init(&h)

	capacity := total
	if max < capacity {
		capacity = max
	}
	entries := make([]models.TimelineEntry, 0, capacity)

	for h.Len() > 0 {
		if len(entries) >= max {
			return entries, true
		}
		item := heap.Pop(&h).(*mergeItem)
		entries = append(entries, models.TimelineEntry{Post: item.post, AuthorID: item.post.AuthorID})
		if len(item.rest) > 0 {
			item.post, item.rest = item.rest[0], item.rest[1:]
			heap.Push(&h, item)
		}
	}
	return entries, false
}
