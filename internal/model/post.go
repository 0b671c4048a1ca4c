package model

import "time"

// PostState is the visibility state of a post.
type PostState string

const (
	StateDraft     PostState = "draft"
	StatePublished PostState = "published"
)

// Valid reports whether s is one of the known states.
func (s PostState) Valid() bool {
	return s == StateDraft || s == StatePublished
}

// Post is a blog post.
//
// Author is the owner's display name at creation time; AuthorID is the
// owning user's ID and is the only field consulted for authorization.
// ReadCount only ever goes up, one per successful public read.
type Post struct {
	ID          string    `json:"id"                   bson:"_id"`
	Title       string    `json:"title"                bson:"title"`
	Description string    `json:"description"          bson:"description"`
	Body        string    `json:"body"                 bson:"body"`
	Tags        []string  `json:"tags"                 bson:"tags"`
	Author      string    `json:"author"               bson:"author"`
	AuthorID    string    `json:"authorId"             bson:"authorId"`
	State       PostState `json:"state"                bson:"state"`
	ReadCount   int64     `json:"readCount"            bson:"readCount"`
	ReadTime    string    `json:"readTime"             bson:"readTime"`
	CoverPhoto  string    `json:"coverPhoto,omitempty" bson:"coverPhoto,omitempty"`
	CreatedAt   time.Time `json:"createdAt"            bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"            bson:"updatedAt"`
}

// IsOwnedBy reports whether userID is the post's author.
func (p *Post) IsOwnedBy(userID string) bool {
	return userID != "" && p.AuthorID == userID
}
