// Package social implements the domain operations over identity, the
// follow graph, posts and feed reads. The facade and the HTTP server are
// thin shells over this service.
package social

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/humancuration/cpc-core/internal/db"
	apperrors "github.com/humancuration/cpc-core/internal/errors"
	"github.com/humancuration/cpc-core/internal/events"
	"github.com/humancuration/cpc-core/internal/logging"
	"github.com/humancuration/cpc-core/internal/models"
	"github.com/humancuration/cpc-core/internal/timeline"
	"github.com/humancuration/cpc-core/internal/uuid"
)

// MaxPostBody caps a post body in characters.
const MaxPostBody = 5000

// Service coordinates the store, the timeline assembler and the event
// stream. Writes serialize in the store; reads run concurrently.
type Service struct {
	store    db.SocialRepository
	timeline *timeline.Assembler
	events   events.Publisher

	// Clock and id source, injectable for tests.
	now   func() int64
	newID func() models.UUID
}

// Option adjusts a Service at construction.
type Option func(*Service)

// WithClock overrides the timestamp source.
func WithClock(now func() int64) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides the identifier source.
func WithIDGenerator(gen func() models.UUID) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService wires a service. publisher may be nil, which drops events.
func NewService(store db.SocialRepository, assembler *timeline.Assembler, publisher events.Publisher, opts ...Option) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	s := &Service{
		store:    store,
		timeline: assembler,
		events:   publisher,
		now:      func() int64 { return time.Now().Unix() },
		newID:    uuid.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// publish delivers an event best effort. Failures are logged and never
// surface to the caller; the write that produced the event already
// committed.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		logging.Warn("event publish failed", map[string]interface{}{
			"type":  event.Type,
			"error": err.Error(),
		})
	}
}

// =====================================================
// Identity Operations
// =====================================================

// CreateUser registers a user. An empty id generates a fresh one; a caller
// supplied id must be unused.
func (s *Service) CreateUser(ctx context.Context, id models.UUID) (*models.User, error) {
	if id == "" {
		id = s.newID()
	}
	user := &models.User{ID: id, CreatedAt: s.now()}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if apperrors.Is(err, apperrors.ErrConstraint) {
			return nil, apperrors.Newf(apperrors.ErrInvalid, "user already exists: %s", id)
		}
		return nil, err
	}
	return user, nil
}

// GetUser returns the user record for id.
func (s *Service) GetUser(ctx context.Context, id models.UUID) (*models.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Newf(apperrors.ErrUnknownUser, "unknown user: %s", id)
		}
		return nil, err
	}
	return user, nil
}

// =====================================================
// Post Operations
// =====================================================

// CreatePost validates and persists a new immutable post, then invalidates
// the author's followers' cached feeds and announces the post.
func (s *Service) CreatePost(ctx context.Context, authorID models.UUID, body string) (*models.Post, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.New(apperrors.ErrEmptyBody, "post body must not be empty")
	}
	if utf8.RuneCountInString(body) > MaxPostBody {
		return nil, apperrors.Newf(apperrors.ErrInvalid, "post body exceeds %d characters", MaxPostBody)
	}

	exists, err := s.store.UserExists(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.Newf(apperrors.ErrUnknownUser, "unknown user: %s", authorID)
	}

	post := &models.Post{
		ID:        s.newID(),
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: s.now(),
	}
	if err := s.store.CreatePost(ctx, post); err != nil {
		if apperrors.Is(err, apperrors.ErrConstraint) {
			// The author row disappeared between the check and the insert.
			return nil, apperrors.Newf(apperrors.ErrUnknownUser, "unknown user: %s", authorID)
		}
		return nil, err
	}

	s.timeline.InvalidateFollowersOf(ctx, authorID)
	s.publish(ctx, events.Event{
		Type:       events.TypePostCreated,
		OccurredAt: post.CreatedAt,
		Post:       post,
	})
	return post, nil
}

// GetPost returns the post record for id.
func (s *Service) GetPost(ctx context.Context, id models.UUID) (*models.Post, error) {
	return s.store.GetPost(ctx, id)
}

// AuthorPosts returns one author's own posts, newest first.
func (s *Service) AuthorPosts(ctx context.Context, authorID models.UUID, limit, offset int) ([]*models.Post, error) {
	if limit <= 0 {
		return nil, apperrors.New(apperrors.ErrInvalidPagination, "limit must be positive")
	}
	if offset < 0 {
		return nil, apperrors.New(apperrors.ErrInvalidPagination, "offset must not be negative")
	}
	if limit > timeline.MaxLimit {
		limit = timeline.MaxLimit
	}

	exists, err := s.store.UserExists(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.Newf(apperrors.ErrUnknownUser, "unknown user: %s", authorID)
	}

	posts, err := s.store.ListPostsByAuthor(ctx, authorID, limit, offset)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return posts, nil
}

// =====================================================
// Relationship Operations
// =====================================================

// Follow creates the directed follow edge follower -> followed. Re-adding
// an existing edge fails with a duplicate error rather than silently
// succeeding, to surface client bugs.
func (s *Service) Follow(ctx context.Context, followerID, followedID models.UUID) (*models.Follow, error) {
	if followerID == followedID {
		return nil, apperrors.New(apperrors.ErrSelfFollow, "users cannot follow themselves")
	}
	for _, id := range []models.UUID{followerID, followedID} {
		exists, err := s.store.UserExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperrors.Newf(apperrors.ErrUnknownUser, "unknown user: %s", id)
		}
	}

	exists, err := s.store.FollowExists(ctx, followerID, followedID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.Newf(apperrors.ErrDuplicateEdge, "relationship already exists: %s -> %s", followerID, followedID)
	}

	follow := &models.Follow{
		FollowerID: followerID,
		FollowedID: followedID,
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateFollow(ctx, follow); err != nil {
		if apperrors.Is(err, apperrors.ErrConstraint) {
			// A concurrent call created the edge after our existence check.
			return nil, apperrors.Newf(apperrors.ErrDuplicateEdge, "relationship already exists: %s -> %s", followerID, followedID)
		}
		return nil, err
	}

	s.timeline.InvalidateUser(ctx, followerID)
	s.publish(ctx, events.Event{
		Type:         events.TypeRelationshipCreated,
		OccurredAt:   follow.CreatedAt,
		Relationship: follow,
	})
	return follow, nil
}

// Unfollow removes the directed edge follower -> followed. Removing an
// absent edge fails with a not found error.
func (s *Service) Unfollow(ctx context.Context, followerID, followedID models.UUID) error {
	if followerID == followedID {
		return apperrors.New(apperrors.ErrSelfFollow, "users cannot follow themselves")
	}
	for _, id := range []models.UUID{followerID, followedID} {
		exists, err := s.store.UserExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.Newf(apperrors.ErrUnknownUser, "unknown user: %s", id)
		}
	}

	if err := s.store.DeleteFollow(ctx, followerID, followedID); err != nil {
		return err
	}

	occurredAt := s.now()
	s.timeline.InvalidateUser(ctx, followerID)
	s.publish(ctx, events.Event{
		Type:       events.TypeRelationshipRemoved,
		OccurredAt: occurredAt,
		Relationship: &models.Follow{
			FollowerID: followerID,
			FollowedID: followedID,
			CreatedAt:  occurredAt,
		},
	})
	return nil
}

// IsFollowing reports whether the directed edge exists.
func (s *Service) IsFollowing(ctx context.Context, followerID, followedID models.UUID) (bool, error) {
	return s.store.FollowExists(ctx, followerID, followedID)
}

// Followers answers "who follows userID", most recent edge first.
func (s *Service) Followers(ctx context.Context, userID models.UUID) ([]models.UUID, error) {
	return s.listEdges(ctx, userID, s.store.ListFollowers)
}

// Following answers "who does userID follow", most recent edge first.
func (s *Service) Following(ctx context.Context, userID models.UUID) ([]models.UUID, error) {
	return s.listEdges(ctx, userID, s.store.ListFollowing)
}

func (s *Service) listEdges(ctx context.Context, userID models.UUID, list func(context.Context, models.UUID) ([]models.UUID, error)) ([]models.UUID, error) {
	exists, err := s.store.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.Newf(apperrors.ErrUnknownUser, "unknown user: %s", userID)
	}

	ids, err := list(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []models.UUID{}
	}
	return ids, nil
}

// =====================================================
// Timeline Operations
// =====================================================

// Timeline returns the requested window of userID's feed.
func (s *Service) Timeline(ctx context.Context, userID models.UUID, opts timeline.Options) ([]models.TimelineEntry, error) {
	return s.timeline.GetTimeline(ctx, userID, opts)
}
