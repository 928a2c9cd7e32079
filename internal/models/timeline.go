package models

// TimelineEntry is a read-only projection of a post into a user's home
// timeline. AuthorID is duplicated beside the post so consumers can group by
// author without touching the nested record.
type TimelineEntry struct {
	Post     *Post `json:"post"`
	AuthorID UUID  `json:"author_id"`
}
