package types

import "time"

// DefaultImageFile is the avatar assigned to every new account.
const DefaultImageFile = "default.jpg"

// User represents a registered blog author.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique public name shown next to posts.
	Username string `json:"username" db:"username"`

	// Email is the unique address the user logs in with.
	Email string `json:"email" db:"email"`

	// ImageFile is the object name of the user's avatar under the
	// profile picture prefix. New users get DefaultImageFile.
	ImageFile string `json:"image_file" db:"image_file"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in rendered output.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was registered.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent profile change.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
