package models

import "time"

// User represents a registered account. Identifiers are opaque strings;
// server-generated ones are UUID v4. Authentication lives outside the core.
type User struct {
	ID        UUID  `db:"id" json:"id"`
	CreatedAt int64 `db:"created_at" json:"created_at"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (u *User) CreatedAtTime() time.Time {
	return time.Unix(u.CreatedAt, 0)
}
