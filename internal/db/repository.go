// Package db provides repository operations for the social data models.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	apperrors "github.com/humancuration/cpc-core/internal/errors"
	"github.com/humancuration/cpc-core/internal/models"
)

// Repository provides persistence for users, posts and follow edges. Reads
// run on the pooled read handle, writes on the serialized write handle.
// Frequently used read queries go through a prepared statement cache.
//
// Error contract: lookups report ErrNotFound on a miss, constraint failures
// report ErrConstraint; callers map those to domain codes.
type Repository struct {
	db *DB

	// Prepared statement cache for frequently used queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache. Statements are
// prepared on the read handle; writes stay one-shot on the write handle.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	// Try to get from cache first
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	// Prepare and cache
	stmt, err := r.db.Read.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// Store in cache (if already stored by another goroutine, use existing)
	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
// Should be called when the Repository is no longer needed.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// classifyWriteError normalizes SQLite constraint failures into typed errors
// so callers never match on driver message strings.
func classifyWriteError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return apperrors.Wrap(apperrors.ErrConstraint, "unique constraint violated", err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return apperrors.Wrap(apperrors.ErrConstraint, "foreign key constraint violated", err)
	case strings.Contains(msg, "CHECK constraint failed"):
		return apperrors.Wrap(apperrors.ErrConstraint, "check constraint violated", err)
	}
	return apperrors.Wrap(apperrors.ErrDatabase, "write failed", err)
}

// =====================================================
// User Operations
// =====================================================

// CreateUser inserts a new user row. The caller assigns id and timestamp.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, created_at) VALUES (?, ?)`
	_, err := r.db.Write.ExecContext(ctx, query, user.ID, user.CreatedAt)
	return classifyWriteError(err)
}

// GetUser retrieves a user by ID.
func (r *Repository) GetUser(ctx context.Context, id models.UUID) (*models.User, error) {
	query := `SELECT id, created_at FROM users WHERE id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = stmt.QueryRowContext(ctx, id).Scan(&user.ID, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "user not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserExists reports whether a user row exists.
func (r *Repository) UserExists(ctx context.Context, id models.UUID) (bool, error) {
	query := `SELECT COUNT(*) FROM users WHERE id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return false, err
	}

	var count int
	if err := stmt.QueryRowContext(ctx, id).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// =====================================================
// Post Operations
// =====================================================

// CreatePost inserts an immutable post row. The caller assigns id and
// timestamp; the row is never updated afterwards.
func (r *Repository) CreatePost(ctx context.Context, post *models.Post) error {
	query := `INSERT INTO posts (id, author_id, body, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.Write.ExecContext(ctx, query, post.ID, post.AuthorID, post.Body, post.CreatedAt)
	return classifyWriteError(err)
}

// GetPost retrieves a post by ID.
func (r *Repository) GetPost(ctx context.Context, id models.UUID) (*models.Post, error) {
	query := `SELECT id, author_id, body, created_at FROM posts WHERE id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var post models.Post
	err = stmt.QueryRowContext(ctx, id).Scan(&post.ID, &post.AuthorID, &post.Body, &post.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "post not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPostsByAuthor returns one author's stream in timeline order:
// created_at descending, id descending on ties.
func (r *Repository) ListPostsByAuthor(ctx context.Context, authorID models.UUID, limit, offset int) ([]*models.Post, error) {
	query := `
	SELECT id, author_id, body, created_at FROM posts
	WHERE author_id = ?
	ORDER BY created_at DESC, id DESC
	LIMIT ? OFFSET ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, authorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPosts(rows)
}

// ListPostsByAuthors returns the top perAuthorLimit posts of every requested
// author, each stream in timeline order. The whole scan is one statement, so
// a timeline assembly sees a single consistent snapshot regardless of
// concurrent writes.
func (r *Repository) ListPostsByAuthors(ctx context.Context, authorIDs []models.UUID, perAuthorLimit int) (map[models.UUID][]*models.Post, error) {
	streams := make(map[models.UUID][]*models.Post, len(authorIDs))
	if len(authorIDs) == 0 || perAuthorLimit <= 0 {
		return streams, nil
	}

	// IN clause width varies per call, so this query skips the statement cache.
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(authorIDs)), ",")
	query := fmt.Sprintf(`
	SELECT id, author_id, body, created_at FROM (
		SELECT p.id, p.author_id, p.body, p.created_at,
			   ROW_NUMBER() OVER (
				   PARTITION BY p.author_id
				   ORDER BY p.created_at DESC, p.id DESC
			   ) AS rn
		FROM posts p
		WHERE p.author_id IN (%s)
	)
	WHERE rn <= ?
	ORDER BY author_id, created_at DESC, id DESC`, placeholders)

	args := make([]interface{}, 0, len(authorIDs)+1)
	for _, id := range authorIDs {
		args = append(args, id)
	}
	args = append(args, perAuthorLimit)

	rows, err := r.db.Read.QueryContext(ctx, query, args...)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return streams, nil
}

// scanPosts collects post rows.
func scanPosts(rows *sql.Rows) ([]*models.Post, error) {
	var posts []*models.Post
	for rows.Next() {
		var post models.Post
		if err := rows.Scan(&post.ID, &post.AuthorID, &post.Body, &post.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, &post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

// =====================================================
// Follow Operations
// =====================================================

// CreateFollow inserts a follow edge. The caller assigns the timestamp.
// Re-inserting an existing pair reports ErrConstraint.
func (r *Repository) CreateFollow(ctx context.Context, follow *models.Follow) error {
	query := `INSERT INTO follows (follower_id, followed_id, created_at) VALUES (?, ?, ?)`
	_, err := r.db.Write.ExecContext(ctx, query, follow.FollowerID, follow.FollowedID, follow.CreatedAt)
	return classifyWriteError(err)
}

// DeleteFollow removes a follow edge. Reports ErrNotFound when the edge does
// not exist.
func (r *Repository) DeleteFollow(ctx context.Context, followerID, followedID models.UUID) error {
	query := `DELETE FROM follows WHERE follower_id = ? AND followed_id = ?`
	result, err := r.db.Write.ExecContext(ctx, query, followerID, followedID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, "follow edge not found: %s -> %s", followerID, followedID)
	}
	return nil
}

// FollowExists reports whether the ordered edge exists.
func (r *Repository) FollowExists(ctx context.Context, followerID, followedID models.UUID) (bool, error) {
	query := `SELECT COUNT(*) FROM follows WHERE follower_id = ? AND followed_id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return false, err
	}

	var count int
	if err := stmt.QueryRowContext(ctx, followerID, followedID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListFollowers returns the users following userID, most recent edge first.
func (r *Repository) ListFollowers(ctx context.Context, userID models.UUID) ([]models.UUID, error) {
	query := `
	SELECT follower_id FROM follows
	WHERE followed_id = ?
	ORDER BY created_at DESC, follower_id DESC`
	return r.listEdgeEndpoints(ctx, query, userID)
}

// ListFollowing returns the users userID follows, most recent edge first.
func (r *Repository) ListFollowing(ctx context.Context, userID models.UUID) ([]models.UUID, error) {
	query := `
	SELECT followed_id FROM follows
	WHERE follower_id = ?
	ORDER BY created_at DESC, followed_id DESC`
	return r.listEdgeEndpoints(ctx, query, userID)
}

// listEdgeEndpoints runs a single-column edge query.
func (r *Repository) listEdgeEndpoints(ctx context.Context, query string, userID models.UUID) ([]models.UUID, error) {
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, userID)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
