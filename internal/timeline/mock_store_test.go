// Package timeline provides mock store implementations for testing.
package timeline

import (
	"context"
	"sort"
	"sync"

	"github.com/humancuration/cpc-core/internal/models"
)

// mockStore is an in-memory Store with error injection and call tracking.
type mockStore struct {
	mu        sync.Mutex
	users     map[models.UUID]bool
	following map[models.UUID][]models.UUID
	posts     map[models.UUID][]*models.Post

	userExistsError error
	followingError  error
	postsError      error

	listPostsCalls     int
	lastPerAuthorLimit int
}

func newMockStore() *mockStore {
	return &mockStore{
		users:     make(map[models.UUID]bool),
		following: make(map[models.UUID][]models.UUID),
		posts:     make(map[models.UUID][]*models.Post),
	}
}

// addUser registers a user.
func (m *mockStore) addUser(id models.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = true
}

// addFollow registers a directed follow edge.
func (m *mockStore) addFollow(follower, followed models.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.following[follower] = append(m.following[follower], followed)
}

// addPost appends a post and keeps the author stream newest first.
func (m *mockStore) addPost(post *models.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stream := append(m.posts[post.AuthorID], post)
	sort.Slice(stream, func(i, j int) bool {
		return stream[j].Before(stream[i])
	})
	m.posts[post.AuthorID] = stream
}

func (m *mockStore) UserExists(ctx context.Context, id models.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userExistsError != nil {
		return false, m.userExistsError
	}
	return m.users[id], nil
}

func (m *mockStore) ListFollowing(ctx context.Context, userID models.UUID) ([]models.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.followingError != nil {
		return nil, m.followingError
	}
	return append([]models.UUID(nil), m.following[userID]...), nil
}

func (m *mockStore) ListFollowers(ctx context.Context, userID models.UUID) ([]models.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var followers []models.UUID
	for follower, followed := range m.following {
		for _, id := range followed {
			if id == userID {
				followers = append(followers, follower)
			}
		}
	}
	return followers, nil
}

func (m *mockStore) ListPostsByAuthors(ctx context.Context, authorIDs []models.UUID, perAuthorLimit int) (map[models.UUID][]*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listPostsCalls++
	m.lastPerAuthorLimit = perAuthorLimit
	if m.postsError != nil {
		return nil, m.postsError
	}

	streams := make(map[models.UUID][]*models.Post, len(authorIDs))
	for _, id := range authorIDs {
		stream := m.posts[id]
		if len(stream) > perAuthorLimit {
			stream = stream[:perAuthorLimit]
		}
		if len(stream) > 0 {
			streams[id] = append([]*models.Post(nil), stream...)
		}
	}
	return streams, nil
}

func (m *mockStore) postsCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listPostsCalls
}

func (m *mockStore) perAuthorLimitArg() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPerAuthorLimit
}
