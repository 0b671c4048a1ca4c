// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered author account.
//
// Email is stored lower-cased and is unique across users. Posts is the set
// of post IDs owned by the user; the store keeps it in step with the posts
// themselves (create appends, delete removes) inside one transaction.
type User struct {
	ID           string    `json:"id"        bson:"_id"`
	FirstName    string    `json:"firstname" bson:"firstname"`
	LastName     string    `json:"lastname"  bson:"lastname"`
	Email        string    `json:"email"     bson:"email"`
	PasswordHash string    `json:"-"         bson:"password"` // bcrypt hash, never serialized
	Posts        []string  `json:"posts"     bson:"posts"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

// FullName is the display name copied onto a post's Author field.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
