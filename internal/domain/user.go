package domain

import "time"

type User struct {
	ID          int64
	UID         string // external identity reference, opaque to us
	Email       string
	DisplayName string
	PhotoURL    string
	IsAdmin     bool
	CreatedAt   time.Time
}

// NewUser fills every server-owned field; the store assigns ID on create.
func NewUser(uid, email, displayName, photoURL string) User {
	return User{
		UID:         uid,
		Email:       email,
		DisplayName: displayName,
		PhotoURL:    photoURL,
		IsAdmin:     false,
		CreatedAt:   time.Now().UTC(),
	}
}
