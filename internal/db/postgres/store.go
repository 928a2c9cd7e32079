// Package postgres provides a PostgreSQL-backed store for server
// deployments, interchangeable with the embedded SQLite repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/humancuration/cpc-core/internal/db"
	apperrors "github.com/humancuration/cpc-core/internal/errors"
	"github.com/humancuration/cpc-core/internal/models"
)

// Store implements the social repository interfaces over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure *Store implements the interfaces at compile time.
var (
	_ db.UserRepository   = (*Store)(nil)
	_ db.PostRepository   = (*Store)(nil)
	_ db.FollowRepository = (*Store)(nil)
	_ db.SocialRepository = (*Store)(nil)
)

// NewStore connects a pooled store to databaseURL.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	// Reduce planning overhead by caching prepared statements per connection.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	cfg.ConnConfig.StatementCacheCapacity = 256

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the social tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			created_at BIGINT NOT NULL CHECK (created_at > 0)
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			author_id TEXT NOT NULL REFERENCES users(id),
			body TEXT NOT NULL CHECK (length(body) > 0),
			created_at BIGINT NOT NULL CHECK (created_at > 0)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_author_created
			ON posts (author_id, created_at DESC, id DESC)`,
		`CREATE TABLE IF NOT EXISTS follows (
			follower_id TEXT NOT NULL REFERENCES users(id),
			followed_id TEXT NOT NULL REFERENCES users(id),
			created_at BIGINT NOT NULL CHECK (created_at > 0),
			PRIMARY KEY (follower_id, followed_id),
			CHECK (follower_id <> followed_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_follows_followed
			ON follows (followed_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_follows_follower
			ON follows (follower_id, created_at DESC)`,
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// classifyError normalizes pgx errors into the shared error codes.
// SQLSTATE classes 23505, 23503 and 23514 cover unique, foreign key and
// check violations.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperrors.Wrap(apperrors.ErrConstraint, "unique constraint violated", err)
		case "23503":
			return apperrors.Wrap(apperrors.ErrConstraint, "foreign key constraint violated", err)
		case "23514":
			return apperrors.Wrap(apperrors.ErrConstraint, "check constraint violated", err)
		}
	}
	return apperrors.Wrap(apperrors.ErrDatabase, "write failed", err)
}

// =====================================================
// User Operations
// =====================================================

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, created_at) VALUES ($1, $2)`,
		user.ID, user.CreatedAt)
	return classifyError(err)
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id models.UUID) (*models.User, error) {
	var user models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "user not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserExists reports whether a user row exists.
func (s *Store) UserExists(ctx context.Context, id models.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// =====================================================
// Post Operations
// =====================================================

// CreatePost inserts an immutable post row.
func (s *Store) CreatePost(ctx context.Context, post *models.Post) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO posts (id, author_id, body, created_at) VALUES ($1, $2, $3, $4)`,
		post.ID, post.AuthorID, post.Body, post.CreatedAt)
	return classifyError(err)
}

// GetPost retrieves a post by ID.
func (s *Store) GetPost(ctx context.Context, id models.UUID) (*models.Post, error) {
	var post models.Post
	err := s.pool.QueryRow(ctx,
		`SELECT id, author_id, body, created_at FROM posts WHERE id = $1`, id).
		Scan(&post.ID, &post.AuthorID, &post.Body, &post.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "post not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPostsByAuthor returns one author's stream in timeline order.
func (s *Store) ListPostsByAuthor(ctx context.Context, authorID models.UUID, limit, offset int) ([]*models.Post, error) {
	rows, err := s.pool.Query(ctx, `
	SELECT id, author_id, body, created_at FROM posts
	WHERE author_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2 OFFSET $3`, authorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// ListPostsByAuthors returns the top perAuthorLimit posts of every requested
// author in one scan.
func (s *Store) ListPostsByAuthors(ctx context.Context, authorIDs []models.UUID, perAuthorLimit int) (map[models.UUID][]*models.Post, error) {
	streams := make(map[models.UUID][]*models.Post, len(authorIDs))
	if len(authorIDs) == 0 || perAuthorLimit <= 0 {
		return streams, nil
	}

	ids := make([]string, len(authorIDs))
	for i, id := range authorIDs {
		ids[i] = string(id)
	}

	rows, err := s.pool.Query(ctx, `
	SELECT id, author_id, body, created_at FROM (
		SELECT p.id, p.author_id, p.body, p.created_at,
			   ROW_NUMBER() OVER (
				   PARTITION BY p.author_id
				   ORDER BY p.created_at DESC, p.id DESC
			   ) AS rn
		FROM posts p
		WHERE p.author_id = ANY($1)
	) ranked
	WHERE rn <= $2
	ORDER BY author_id, created_at DESC, id DESC`, ids, perAuthorLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var post models.Post
		if err := rows.Scan(&post.ID, &post.AuthorID, &post.Body, &post.CreatedAt); err != nil {
			return nil, err
		}
		streams[post.AuthorID] = append(streams[post.AuthorID], &post)
	}
	return streams, rows.Err()
}

func scanPosts(rows pgx.Rows) ([]*models.Post, error) {
	var posts []*models.Post
	for rows.Next() {
		var post models.Post
		if err := rows.Scan(&post.ID, &post.AuthorID, &post.Body, &post.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, &post)
	}
	return posts, rows.Err()
}

// =====================================================
// Follow Operations
// =====================================================

// CreateFollow inserts a follow edge.
func (s *Store) CreateFollow(ctx context.Context, follow *models.Follow) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO follows (follower_id, followed_id, created_at) VALUES ($1, $2, $3)`,
		follow.FollowerID, follow.FollowedID, follow.CreatedAt)
	return classifyError(err)
}

// DeleteFollow removes a follow edge.
func (s *Store) DeleteFollow(ctx context.Context, followerID, followedID models.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND followed_id = $2`,
		followerID, followedID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, "follow edge not found: %s -> %s", followerID, followedID)
	}
	return nil
}

// FollowExists reports whether the ordered edge exists.
func (s *Store) FollowExists(ctx context.Context, followerID, followedID models.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND followed_id = $2)`,
		followerID, followedID).Scan(&exists)
	return exists, err
}

// ListFollowers returns the users following userID, most recent edge first.
func (s *Store) ListFollowers(ctx context.Context, userID models.UUID) ([]models.UUID, error) {
	return s.listEdgeEndpoints(ctx, `
	SELECT follower_id FROM follows
	WHERE followed_id = $1
	ORDER BY created_at DESC, follower_id DESC`, userID)
}

// ListFollowing returns the users userID follows, most recent edge first.
func (s *Store) ListFollowing(ctx context.Context, userID models.UUID) ([]models.UUID, error) {
	return s.listEdgeEndpoints(ctx, `
	SELECT followed_id FROM follows
	WHERE follower_id = $1
	ORDER BY created_at DESC, followed_id DESC`, userID)
}

func (s *Store) listEdgeEndpoints(ctx context.Context, query string, userID models.UUID) ([]models.UUID, error) {
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []models.UUID
	for rows.Next() {
		var id models.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
