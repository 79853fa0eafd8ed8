package domain

import "time"

type UserID string
type RoomID string
type EventID string

// Profile is the networking-relevant slice of a user's account. It is
// immutable for the lifetime of a room occurrence; edits happen in the
// surrounding application and are picked up on the next room entry.
type Profile struct {
	UserID   UserID
	Name     string
	Role     string
	Company  string
	Industry string
	Goals    []string
	Skills   []string
	Bio      string
}

type User struct {
	ID        UserID
	Username  string
	Email     string
	CreatedAt time.Time
}
