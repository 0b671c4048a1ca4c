// Package repository declares the storage contracts the service layer
// depends on. Implementations live in sub-packages (sqlite, mongodb).
//
// Every multi-step rule that touches shared state (ownership check before
// mutation, read-count increment, post + owner bookkeeping) is a single
// method here so that each backend can make it atomic.
package repository

import (
	"context"

	"github.com/sakif/blogging-api/internal/model"
)

// UserRepository is the credential store.
type UserRepository interface {
	// Create inserts a user and fills in ID and timestamps.
	// Returns apperror.ErrConflict if the email is already taken.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// PostFilter narrows ListPublished. Each non-empty field is a
// case-insensitive substring match; empty fields add no predicate.
type PostFilter struct {
	Author string
	Title  string
	Tag    string
}

// PostPatch holds the fields an update may change. Nil means "leave as is".
type PostPatch struct {
	State       *model.PostState
	Title       *string
	Description *string
	Body        *string
	ReadTime    *string
	Tags        *[]string
}

// ApplyTo copies every set field of the patch onto p.
func (patch PostPatch) ApplyTo(p *model.Post) {
	if patch.State != nil {
		p.State = *patch.State
	}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Body != nil {
		p.Body = *patch.Body
	}
	if patch.ReadTime != nil {
		p.ReadTime = *patch.ReadTime
	}
	if patch.Tags != nil {
		p.Tags = *patch.Tags
	}
}

// PostRepository is the post store.
type PostRepository interface {
	// Create inserts the post and appends its ID to the author's post set,
	// both or neither. Returns apperror.ErrNotFound if the author is unknown.
	Create(ctx context.Context, post *model.Post) error

	// GetByID returns a post in any state.
	GetByID(ctx context.Context, id string) (*model.Post, error)

	// IncrementReadCount atomically adds one to the read count of a
	// published post and returns the post as stored afterwards.
	// Drafts and unknown IDs yield apperror.ErrNotFound.
	IncrementReadCount(ctx context.Context, id string) (*model.Post, error)

	// ListPublished returns published posts matching every filter field,
	// newest first.
	ListPublished(ctx context.Context, filter PostFilter) ([]model.Post, error)

	// ListByAuthor returns every post owned by authorID, newest first.
	ListByAuthor(ctx context.Context, authorID string) ([]model.Post, error)

	// Update resolves the post, checks that callerID owns it and only then
	// applies the patch. Returns apperror.ErrNotFound or
	// apperror.ErrForbidden without touching the store.
	Update(ctx context.Context, id, callerID string, patch PostPatch) (*model.Post, error)

	// Delete removes the post and pulls it from the owner's post set after
	// the same ownership check as Update. The deleted post is returned so
	// callers can clean up attached resources.
	Delete(ctx context.Context, id, callerID string) (*model.Post, error)
}
