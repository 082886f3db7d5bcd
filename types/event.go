package types

import "time"

// EventType names a change that happened in the blog.
type EventType string

// Supported event types.
const (
	EventUserRegistered EventType = "user.registered"
	EventUserUpdated    EventType = "user.updated"
	EventPostCreated    EventType = "post.created"
	EventPostUpdated    EventType = "post.updated"
	EventPostDeleted    EventType = "post.deleted"
)

// Event is the payload published to the message broker after a
// successful write.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type is the kind of change.
	Type EventType `json:"type"`

	// UserID is the acting user.
	UserID int `json:"user_id"`

	// PostID is set for post events.
	PostID int `json:"post_id,omitempty"`

	// OccurredAt is when the change was committed.
	OccurredAt time.Time `json:"occurred_at"`
}
