package models

import "time"

// Post represents a single authored post. Posts are immutable once created:
// the store assigns id and timestamp at creation and never updates the row.
type Post struct {
	ID        UUID   `db:"id" json:"id"`
	AuthorID  UUID   `db:"author_id" json:"author_id"`
	Body      string `db:"body" json:"body"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Post.
func (Post) TableName() string {
	return "posts"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (p *Post) CreatedAtTime() time.Time {
	return time.Unix(p.CreatedAt, 0)
}

// Before reports whether p sorts after other in timeline order, i.e. p is
// older. Timeline order is created_at descending with id descending as the
// tie-break, so Before is true when p belongs further down the feed.
func (p *Post) Before(other *Post) bool {
	if p.CreatedAt != other.CreatedAt {
		return p.CreatedAt < other.CreatedAt
	}
	return p.ID < other.ID
}
