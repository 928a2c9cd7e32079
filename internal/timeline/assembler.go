package timeline

import (
	"context"

	apperrors "github.com/humancuration/cpc-core/internal/errors"
	"github.com/humancuration/cpc-core/internal/logging"
	"github.com/humancuration/cpc-core/internal/models"
)

const (
	// MaxLimit caps a single timeline page. Larger requests are clamped,
	// not rejected.
	MaxLimit = 100

	// DefaultCacheHead is how many merged entries a cache refill keeps.
	DefaultCacheHead = 500
)

// Store is the subset of the repository the assembler reads from.
type Store interface {
	UserExists(ctx context.Context, id models.UUID) (bool, error)
	ListFollowing(ctx context.Context, userID models.UUID) ([]models.UUID, error)
	ListFollowers(ctx context.Context, userID models.UUID) ([]models.UUID, error)
	ListPostsByAuthors(ctx context.Context, authorIDs []models.UUID, perAuthorLimit int) (map[models.UUID][]*models.Post, error)
}

// Options selects a timeline window.
type Options struct {
	// Limit is the page size. Must be positive; values above MaxLimit are
	// clamped.
	Limit int

	// Offset is the number of entries to skip. Must not be negative.
	Offset int

	// IncludeSelf merges the reader's own posts into the feed. Such feeds
	// bypass the cache, which holds the pure following feed.
	IncludeSelf bool
}

// Assembler builds reverse chronological timelines. It fetches one ordered
// post stream per followed author in a single store snapshot and k-way
// merges them, newest first with post id breaking timestamp ties.
type Assembler struct {
	store     Store
	cache     Cache
	cacheHead int
}

// NewAssembler creates an assembler. cache may be nil to disable caching.
// A non-positive cacheHead falls back to DefaultCacheHead.
func NewAssembler(store Store, cache Cache, cacheHead int) *Assembler {
	if cacheHead <= 0 {
		cacheHead = DefaultCacheHead
	}
	return &Assembler{store: store, cache: cache, cacheHead: cacheHead}
}

// GetTimeline returns the requested window of userID's feed. A user who
// follows nobody gets an empty timeline, not an error. Two calls with
// consecutive windows concatenate without gaps or duplicates as long as no
// write lands between them.
func (a *Assembler) GetTimeline(ctx context.Context, userID models.UUID, opts Options) ([]models.TimelineEntry, error) {
	if opts.Limit <= 0 {
		return nil, apperrors.New(apperrors.ErrInvalidPagination, "limit must be positive")
	}
	if opts.Offset < 0 {
		return nil, apperrors.New(apperrors.ErrInvalidPagination, "offset must not be negative")
	}
	if opts.Limit > MaxLimit {
		opts.Limit = MaxLimit
	}

	exists, err := a.store.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.Newf(apperrors.ErrUnknownUser, "unknown user: %s", userID)
	}

	authors, err := a.store.ListFollowing(ctx, userID)
	if err != nil {
		return nil, err
	}
	if opts.IncludeSelf {
		authors = append(authors, userID)
	}
	if len(authors) == 0 {
		return []models.TimelineEntry{}, nil
	}

	end := opts.Offset + opts.Limit
	useCache := a.cache != nil && !opts.IncludeSelf

	if useCache {
		feed, err := a.cache.Get(ctx, userID)
		if err != nil {
			logging.Warn("timeline cache read failed", map[string]interface{}{
				"user_id": string(userID),
				"error":   err.Error(),
			})
		}
		if feed != nil && (feed.Complete || len(feed.Entries) >= end) {
			return window(feed.Entries, opts.Offset, opts.Limit), nil
		}
	}

	// Fetch enough of every stream to cover the requested window, and the
	// cache head when this read will refill it.
	perAuthor := end
	if useCache && a.cacheHead > perAuthor {
		perAuthor = a.cacheHead
	}

	streams, err := a.store.ListPostsByAuthors(ctx, authors, perAuthor)
	if err != nil {
		return nil, err
	}

	// A stream that filled its per-author quota may have older posts the
	// fetch did not see, so the merge result cannot be marked complete.
	capped := false
	for _, stream := range streams {
		if len(stream) >= perAuthor {
			capped = true
			break
		}
	}

	merged, truncated := mergeStreams(streams, perAuthor)
	complete := !truncated && !capped

	if useCache {
		head := merged
		headComplete := complete
		if len(head) > a.cacheHead {
			head = head[:a.cacheHead]
			headComplete = false
		}
		if err := a.cache.Set(ctx, userID, &CachedFeed{Entries: head, Complete: headComplete}); err != nil {
			logging.Warn("timeline cache write failed", map[string]interface{}{
				"user_id": string(userID),
				"error":   err.Error(),
			})
		}
	}

	return window(merged, opts.Offset, opts.Limit), nil
}

// InvalidateUser drops one user's cached feed. Called when the user's
// follow set changes.
func (a *Assembler) InvalidateUser(ctx context.Context, userID models.UUID) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Invalidate(ctx, userID); err != nil {
		logging.Warn("timeline cache invalidation failed", map[string]interface{}{
			"user_id": string(userID),
			"error":   err.Error(),
		})
	}
}

// InvalidateFollowersOf drops the cached feeds of every follower of
// authorID. Called when the author publishes a post.
func (a *Assembler) InvalidateFollowersOf(ctx context.Context, authorID models.UUID) {
	if a.cache == nil {
		return
	}
	followers, err := a.store.ListFollowers(ctx, authorID)
	if err != nil {
		logging.Warn("timeline follower lookup for invalidation failed", map[string]interface{}{
			"author_id": string(authorID),
			"error":     err.Error(),
		})
		return
	}
	for _, follower := range followers {
		a.InvalidateUser(ctx, follower)
	}
}

// window copies the [offset, offset+limit) slice of entries.
func window(entries []models.TimelineEntry, offset, limit int) []models.TimelineEntry {
	if offset >= len(entries) {
		return []models.TimelineEntry{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	out := make([]models.TimelineEntry, end-offset)
	copy(out, entries[offset:end])
	return out
}
