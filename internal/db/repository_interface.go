// Package db provides repository interfaces for the social data models.
package db

import (
	"context"

	"github.com/humancuration/cpc-core/internal/models"
)

// UserRepository defines operations for user persistence.
// This interface allows mocking for testing and follows the Interface Segregation Principle.
type UserRepository interface {
	// CreateUser creates a new user.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id models.UUID) (*models.User, error)

	// UserExists reports whether a user exists.
	UserExists(ctx context.Context, id models.UUID) (bool, error)
}

// PostRepository defines operations for post persistence.
type PostRepository interface {
	// CreatePost creates a new immutable post.
	CreatePost(ctx context.Context, post *models.Post) error

	// GetPost retrieves a post by ID.
	GetPost(ctx context.Context, id models.UUID) (*models.Post, error)

	// ListPostsByAuthor returns one author's posts in timeline order.
	ListPostsByAuthor(ctx context.Context, authorID models.UUID, limit, offset int) ([]*models.Post, error)

	// ListPostsByAuthors returns per-author post streams, each in timeline
	// order, capped at perAuthorLimit posts per author.
	ListPostsByAuthors(ctx context.Context, authorIDs []models.UUID, perAuthorLimit int) (map[models.UUID][]*models.Post, error)
}

// FollowRepository defines operations for follow edge persistence.
type FollowRepository interface {
	// CreateFollow creates a follow edge.
	CreateFollow(ctx context.Context, follow *models.Follow) error

	// DeleteFollow removes a follow edge.
	DeleteFollow(ctx context.Context, followerID, followedID models.UUID) error

	// FollowExists reports whether the ordered edge exists.
	FollowExists(ctx context.Context, followerID, followedID models.UUID) (bool, error)

	// ListFollowers returns users following userID, most recent edge first.
	ListFollowers(ctx context.Context, userID models.UUID) ([]models.UUID, error)

	// ListFollowing returns users userID follows, most recent edge first.
	ListFollowing(ctx context.Context, userID models.UUID) ([]models.UUID, error)
}

// SocialRepository combines the repositories the service layer needs.
// This is a marker interface that groups related repositories for convenience.
type SocialRepository interface {
	UserRepository
	PostRepository
	FollowRepository
}

// Ensure *Repository implements the interfaces at compile time.
var (
	_ UserRepository   = (*Repository)(nil)
	_ PostRepository   = (*Repository)(nil)
	_ FollowRepository = (*Repository)(nil)
	_ SocialRepository = (*Repository)(nil)
)
