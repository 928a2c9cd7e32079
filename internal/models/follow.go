package models

import "time"

// Follow represents a directed follow edge: the follower receives the
// followed account's posts in their timeline. The ordered pair is unique;
// there is no surrogate id.
type Follow struct {
	FollowerID UUID  `db:"follower_id" json:"follower_id"`
	FollowedID UUID  `db:"followed_id" json:"followed_id"`
	CreatedAt  int64 `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Follow.
func (Follow) TableName() string {
	return "follows"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (f *Follow) CreatedAtTime() time.Time {
	return time.Unix(f.CreatedAt, 0)
}
