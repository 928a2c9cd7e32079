// Package social tests for the domain service. These run against the real
// embedded store so constraint behavior matches production.
package social

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/humancuration/cpc-core/internal/db"
	apperrors "github.com/humancuration/cpc-core/internal/errors"
	"github.com/humancuration/cpc-core/internal/events"
	"github.com/humancuration/cpc-core/internal/models"
	"github.com/humancuration/cpc-core/internal/timeline"
	"github.com/humancuration/cpc-core/internal/uuid"
)

// fakeClock hands out strictly increasing timestamps so ordering assertions
// are deterministic.
type fakeClock struct {
	t int64
}

func (c *fakeClock) next() int64 {
	c.t++
	return c.t
}

// setupService builds a service over a migrated temp database with an
// in-memory feed cache and event publisher.
func setupService(t *testing.T) (*Service, *events.MemoryPublisher) {
	t.Helper()
	dbh, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	m := db.NewEmbeddedMigrator(dbh.Write)
	if err := m.Initialize(); err != nil {
		dbh.Close()
		t.Fatalf("Failed to initialize migrator: %v", err)
	}
	if err := m.Up(); err != nil {
		dbh.Close()
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	repo := db.NewRepository(dbh)
	assembler := timeline.NewAssembler(repo, timeline.NewMemoryCache(time.Minute), 100)
	publisher := events.NewMemoryPublisher()

	svc := NewService(repo, assembler, publisher)
	clock := &fakeClock{}
	svc.now = clock.next

	t.Cleanup(func() {
		repo.Close()
		dbh.Close()
	})
	return svc, publisher
}

// mustCreateUser registers a user or fails the test.
func mustCreateUser(t *testing.T, svc *Service) models.UUID {
	t.Helper()
	user, err := svc.CreateUser(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return user.ID
}

// =====================================================
// Identity Tests
// =====================================================

func TestCreateUser_generatesID(t *testing.T) {
	svc, _ := setupService(t)

	user, err := svc.CreateUser(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if !uuid.IsValid(string(user.ID)) {
		t.Errorf("Generated ID %q is not a valid UUID", user.ID)
	}
	if user.CreatedAt == 0 {
		t.Error("CreatedAt not assigned")
	}
}

func TestCreateUser_withSuppliedID(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	id := models.UUID("00000000-0000-4000-8000-000000000001")
	user, err := svc.CreateUser(ctx, id)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if user.ID != id {
		t.Errorf("ID = %s, want %s", user.ID, id)
	}

	// Reusing the id is a caller error
	_, err = svc.CreateUser(ctx, id)
	if !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("Duplicate create error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrInvalid)
	}
}

func TestGetUser(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	id := mustCreateUser(t, svc)

	user, err := svc.GetUser(ctx, id)
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if user.ID != id {
		t.Errorf("ID = %s, want %s", user.ID, id)
	}

	_, err = svc.GetUser(ctx, "00000000-0000-4000-8000-0000000000ff")
	if !apperrors.Is(err, apperrors.ErrUnknownUser) {
		t.Errorf("Missing user error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrUnknownUser)
	}
}

// =====================================================
// Post Tests
// =====================================================

// TestCreatePost_roundTrip verifies create then get yields an identical
// record.
func TestCreatePost_roundTrip(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	author := mustCreateUser(t, svc)

	created, err := svc.CreatePost(ctx, author, "hello timeline")
	if err != nil {
		t.Fatalf("CreatePost() failed: %v", err)
	}

	got, err := svc.GetPost(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetPost() failed: %v", err)
	}
	if *got != *created {
		t.Errorf("GetPost() = %+v, want %+v", got, created)
	}
}

func TestCreatePost_emptyBody(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	author := mustCreateUser(t, svc)

	tests := []struct {
		name string
		body string
	}{
		{"empty string", ""},
		{"spaces only", "   "},
		{"whitespace mix", " \t\n "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreatePost(ctx, author, tt.body)
			if err == nil {
				t.Fatal("CreatePost() should fail")
			}
			if !apperrors.Is(err, apperrors.ErrEmptyBody) {
				t.Errorf("Error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrEmptyBody)
			}
		})
	}
}

func TestCreatePost_bodyTooLong(t *testing.T) {
	svc, _ := setupService(t)
	author := mustCreateUser(t, svc)

	body := strings.Repeat("x", MaxPostBody+1)
	_, err := svc.CreatePost(context.Background(), author, body)
	if !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("Error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrInvalid)
	}

	// Exactly at the cap is fine
	if _, err := svc.CreatePost(context.Background(), author, strings.Repeat("x", MaxPostBody)); err != nil {
		t.Errorf("CreatePost() at the cap failed: %v", err)
	}
}

func TestCreatePost_unknownAuthor(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.CreatePost(context.Background(), "00000000-0000-4000-8000-0000000000ff", "ghost post")
	if !apperrors.Is(err, apperrors.ErrUnknownUser) {
		t.Errorf("Error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrUnknownUser)
	}
}

func TestCreatePost_publishesEvent(t *testing.T) {
	svc, pub := setupService(t)
	author := mustCreateUser(t, svc)

	post, err := svc.CreatePost(context.Background(), author, "announce me")
	if err != nil {
		t.Fatalf("CreatePost() failed: %v", err)
	}

	published := pub.Events()
	if len(published) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(published))
	}
	if published[0].Type != events.TypePostCreated {
		t.Errorf("Event type = %s, want %s", published[0].Type, events.TypePostCreated)
	}
	if published[0].Post == nil || published[0].Post.ID != post.ID {
		t.Error("Event missing the created post payload")
	}
}

func TestGetPost_notFound(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.GetPost(context.Background(), "00000000-0000-4000-8000-0000000000ff")
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrNotFound)
	}
}

func TestAuthorPosts(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	author := mustCreateUser(t, svc)

	first, err := svc.CreatePost(ctx, author, "first")
	if err != nil {
		t.Fatalf("CreatePost() failed: %v", err)
	}
	second, err := svc.CreatePost(ctx, author, "second")
	if err != nil {
		t.Fatalf("CreatePost() failed: %v", err)
	}

	posts, err := svc.AuthorPosts(ctx, author, 10, 0)
	if err != nil {
		t.Fatalf("AuthorPosts() failed: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != second.ID || posts[1].ID != first.ID {
		t.Error("AuthorPosts() not newest first")
	}

	_, err = svc.AuthorPosts(ctx, author, 0, 0)
	if !apperrors.Is(err, apperrors.ErrInvalidPagination) {
		t.Errorf("Zero limit error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrInvalidPagination)
	}
}

// =====================================================
// Relationship Tests
// =====================================================

func TestFollow(t *testing.T) {
	svc, pub := setupService(t)
	ctx := context.Background()
	a := mustCreateUser(t, svc)
	b := mustCreateUser(t, svc)

	follow, err := svc.Follow(ctx, a, b)
	if err != nil {
		t.Fatalf("Follow() failed: %v", err)
	}
	if follow.FollowerID != a || follow.FollowedID != b {
		t.Errorf("Follow edge = %s -> %s, want %s -> %s", follow.FollowerID, follow.FollowedID, a, b)
	}

	following, err := svc.IsFollowing(ctx, a, b)
	if err != nil {
		t.Fatalf("IsFollowing() failed: %v", err)
	}
	if !following {
		t.Error("IsFollowing() = false after Follow()")
	}

	published := pub.Events()
	if len(published) != 1 || published[0].Type != events.TypeRelationshipCreated {
		t.Error("Follow did not publish a relationship created event")
	}
}

// TestFollow_duplicate verifies re-adding an edge fails the second time.
func TestFollow_duplicate(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	a := mustCreateUser(t, svc)
	b := mustCreateUser(t, svc)

	if _, err := svc.Follow(ctx, a, b); err != nil {
		t.Fatalf("First Follow() failed: %v", err)
	}
	_, err := svc.Follow(ctx, a, b)
	if !apperrors.Is(err, apperrors.ErrDuplicateEdge) {
		t.Errorf("Error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrDuplicateEdge)
	}

	// The reverse edge is distinct and still allowed
	if _, err := svc.Follow(ctx, b, a); err != nil {
		t.Errorf("Reverse Follow() failed: %v", err)
	}
}

func TestFollow_self(t *testing.T) {
	svc, _ := setupService(t)
	a := mustCreateUser(t, svc)

	_, err := svc.Follow(context.Background(), a, a)
	if !apperrors.Is(err, apperrors.ErrSelfFollow) {
		t.Errorf("Error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrSelfFollow)
	}
}

func TestFollow_unknownUser(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	a := mustCreateUser(t, svc)
	ghost := models.UUID("00000000-0000-4000-8000-0000000000ff")

	_, err := svc.Follow(ctx, a, ghost)
	if !apperrors.Is(err, apperrors.ErrUnknownUser) {
		t.Errorf("Unknown followed error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrUnknownUser)
	}

	_, err = svc.Follow(ctx, ghost, a)
	if !apperrors.Is(err, apperrors.ErrUnknownUser) {
		t.Errorf("Unknown follower error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrUnknownUser)
	}
}

func TestUnfollow(t *testing.T) {
	svc, pub := setupService(t)
	ctx := context.Background()
	a := mustCreateUser(t, svc)
	b := mustCreateUser(t, svc)

	if _, err := svc.Follow(ctx, a, b); err != nil {
		t.Fatalf("Follow() failed: %v", err)
	}
	if err := svc.Unfollow(ctx, a, b); err != nil {
		t.Fatalf("Unfollow() failed: %v", err)
	}

	following, err := svc.IsFollowing(ctx, a, b)
	if err != nil {
		t.Fatalf("IsFollowing() failed: %v", err)
	}
	if following {
		t.Error("IsFollowing() = true after Unfollow()")
	}

	published := pub.Events()
	if len(published) != 2 || published[1].Type != events.TypeRelationshipRemoved {
		t.Error("Unfollow did not publish a relationship removed event")
	}
}

func TestUnfollow_missingEdge(t *testing.T) {
	svc, _ := setupService(t)
	a := mustCreateUser(t, svc)
	b := mustCreateUser(t, svc)

	err := svc.Unfollow(context.Background(), a, b)
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrNotFound)
	}
}

// TestFollowersFollowingInverse verifies the two graph views agree: if B is
// in Following(A) then A is in Followers(B).
func TestFollowersFollowingInverse(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	a := mustCreateUser(t, svc)
	b := mustCreateUser(t, svc)
	c := mustCreateUser(t, svc)

	for _, edge := range [][2]models.UUID{{a, b}, {a, c}, {c, b}} {
		if _, err := svc.Follow(ctx, edge[0], edge[1]); err != nil {
			t.Fatalf("Follow(%s, %s) failed: %v", edge[0], edge[1], err)
		}
	}

	for _, user := range []models.UUID{a, b, c} {
		following, err := svc.Following(ctx, user)
		if err != nil {
			t.Fatalf("Following(%s) failed: %v", user, err)
		}
		for _, followed := range following {
			followers, err := svc.Followers(ctx, followed)
			if err != nil {
				t.Fatalf("Followers(%s) failed: %v", followed, err)
			}
			found := false
			for _, f := range followers {
				if f == user {
					found = true
				}
			}
			if !found {
				t.Errorf("%s follows %s but is missing from its followers", user, followed)
			}
		}
	}
}

// TestFollowers_ordering verifies most-recently-followed first.
func TestFollowers_ordering(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	target := mustCreateUser(t, svc)
	first := mustCreateUser(t, svc)
	second := mustCreateUser(t, svc)

	if _, err := svc.Follow(ctx, first, target); err != nil {
		t.Fatalf("Follow() failed: %v", err)
	}
	if _, err := svc.Follow(ctx, second, target); err != nil {
		t.Fatalf("Follow() failed: %v", err)
	}

	followers, err := svc.Followers(ctx, target)
	if err != nil {
		t.Fatalf("Followers() failed: %v", err)
	}
	if len(followers) != 2 || followers[0] != second || followers[1] != first {
		t.Errorf("Followers() = %v, want [%s %s]", followers, second, first)
	}
}

func TestFollowers_unknownUser(t *testing.T) {
	svc, _ := setupService(t)
	ghost := models.UUID("00000000-0000-4000-8000-0000000000ff")

	if _, err := svc.Followers(context.Background(), ghost); !apperrors.Is(err, apperrors.ErrUnknownUser) {
		t.Errorf("Followers error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrUnknownUser)
	}
	if _, err := svc.Following(context.Background(), ghost); !apperrors.Is(err, apperrors.ErrUnknownUser) {
		t.Errorf("Following error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrUnknownUser)
	}
}

// TestFollowers_emptyNotNil verifies isolated users get empty sequences.
func TestFollowers_emptyNotNil(t *testing.T) {
	svc, _ := setupService(t)
	a := mustCreateUser(t, svc)

	followers, err := svc.Followers(context.Background(), a)
	if err != nil {
		t.Fatalf("Followers() failed: %v", err)
	}
	if followers == nil || len(followers) != 0 {
		t.Errorf("Followers() = %v, want empty non-nil slice", followers)
	}
}

// =====================================================
// Timeline Tests
// =====================================================

// TestTimeline_followScenario verifies the reference flow: A posts P1 then
// P2, B follows A, B's timeline reads [P2, P1].
func TestTimeline_followScenario(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	a := mustCreateUser(t, svc)
	b := mustCreateUser(t, svc)

	p1, err := svc.CreatePost(ctx, a, "P1")
	if err != nil {
		t.Fatalf("CreatePost(P1) failed: %v", err)
	}
	p2, err := svc.CreatePost(ctx, a, "P2")
	if err != nil {
		t.Fatalf("CreatePost(P2) failed: %v", err)
	}
	if _, err := svc.Follow(ctx, b, a); err != nil {
		t.Fatalf("Follow() failed: %v", err)
	}

	entries, err := svc.Timeline(ctx, b, timeline.Options{Limit: 10})
	if err != nil {
		t.Fatalf("Timeline() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Post.ID != p2.ID || entries[1].Post.ID != p1.ID {
		t.Errorf("Timeline = [%s, %s], want [%s, %s]",
			entries[0].Post.ID, entries[1].Post.ID, p2.ID, p1.ID)
	}
}

// TestTimeline_newPostVisibleAfterCachedRead verifies post creation
// invalidates follower feed caches.
func TestTimeline_newPostVisibleAfterCachedRead(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	a := mustCreateUser(t, svc)
	b := mustCreateUser(t, svc)

	if _, err := svc.Follow(ctx, b, a); err != nil {
		t.Fatalf("Follow() failed: %v", err)
	}
	if _, err := svc.CreatePost(ctx, a, "first"); err != nil {
		t.Fatalf("CreatePost() failed: %v", err)
	}

	// Prime b's cached feed
	if _, err := svc.Timeline(ctx, b, timeline.Options{Limit: 10}); err != nil {
		t.Fatalf("Timeline() failed: %v", err)
	}

	latest, err := svc.CreatePost(ctx, a, "second")
	if err != nil {
		t.Fatalf("CreatePost() failed: %v", err)
	}

	entries, err := svc.Timeline(ctx, b, timeline.Options{Limit: 10})
	if err != nil {
		t.Fatalf("Timeline() after new post failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Post.ID != latest.ID {
		t.Error("Timeline missing the newest post after cache invalidation")
	}
}

// TestTimeline_unknownUser verifies reads for missing users fail.
func TestTimeline_unknownUser(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Timeline(context.Background(), "00000000-0000-4000-8000-0000000000ff", timeline.Options{Limit: 10})
	if !apperrors.Is(err, apperrors.ErrUnknownUser) {
		t.Errorf("Error code = %s, want %s", apperrors.GetCode(err), apperrors.ErrUnknownUser)
	}
}
