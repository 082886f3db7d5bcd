package types

import "time"

// Post represents a blog entry written by a single user.
type Post struct {
	// ID is the unique identifier of the post.
	ID int `json:"id" db:"id"`

	// Title is the headline of the post.
	Title string `json:"title" db:"title"`

	// Content is the body text of the post.
	Content string `json:"content" db:"content"`

	// DatePosted is the timestamp at which the post was created.
	DatePosted time.Time `json:"date_posted" db:"date_posted"`

	// UpdatedAt is the timestamp of the most recent edit.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// UserID identifies the owning user. It is set once on creation
	// and never rewritten.
	UserID int `json:"user_id" db:"user_id"`

	// Author carries the owner's public fields when the post was loaded
	// for display. It is not persisted with the post.
	Author User `json:"author" db:"-"`
}

// OwnedBy reports whether the post belongs to the given user.
func (p Post) OwnedBy(userID int) bool {
	return userID > 0 && p.UserID == userID
}
