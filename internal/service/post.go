package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sakif/blogging-api/internal/apperror"
	"github.com/sakif/blogging-api/internal/auth"
	"github.com/sakif/blogging-api/internal/model"
	"github.com/sakif/blogging-api/internal/repository"
	"github.com/sakif/blogging-api/internal/storage"
)

// PostService implements who may read, write and delete which post.
//
// The ownership rules themselves are enforced inside the repository, in
// the same transaction as the write. This layer validates input, derives
// fields (author, read time, cover photo name) and keeps the photo store in
// step with the post store.
type PostService struct {
	posts  repository.PostRepository
	photos storage.PhotoStore
	logger *slog.Logger
}

func NewPostService(posts repository.PostRepository, photos storage.PhotoStore, logger *slog.Logger) *PostService {
	return &PostService{
		posts:  posts,
		photos: photos,
		logger: logger,
	}
}

// CreatePostInput is the body of a create request.
type CreatePostInput struct {
	Title       string   `json:"title"       validate:"required"`
	Description string   `json:"description" validate:"required"`
	Body        string   `json:"body"        validate:"required"`
	Tags        []string `json:"tags"`
}

// UpdatePostInput is the body of an update request. Nil fields are left
// unchanged.
type UpdatePostInput struct {
	State       *string   `json:"state"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Body        *string   `json:"body"`
	Tags        *[]string `json:"tags"`
}

// Upload is a cover photo as received from the client.
type Upload struct {
	ContentType string
	Size        int64
	Reader      io.Reader
}

// ListPublished returns published posts matching filter, newest first.
func (s *PostService) ListPublished(ctx context.Context, filter repository.PostFilter) ([]model.Post, error) {
	filter.Author = strings.TrimSpace(filter.Author)
	filter.Title = strings.TrimSpace(filter.Title)
	filter.Tag = strings.TrimSpace(filter.Tag)

	posts, err := s.posts.ListPublished(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service/post: listing published: %w", err)
	}
	return posts, nil
}

// GetPublished returns a published post and counts the read. Drafts are
// reported as not found.
func (s *PostService) GetPublished(ctx context.Context, id string) (*model.Post, error) {
	return s.posts.IncrementReadCount(ctx, id)
}

// ListByAuthor returns every post the caller owns, drafts included.
func (s *PostService) ListByAuthor(ctx context.Context, caller auth.Caller) ([]model.Post, error) {
	posts, err := s.posts.ListByAuthor(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("service/post: listing posts of %s: %w", caller.ID, err)
	}
	return posts, nil
}

// Create stores a new draft owned by caller.
//
// Input, including the photo's content type, is validated before anything
// is written. If the post cannot be stored, a photo already saved for it
// is removed again.
func (s *PostService) Create(ctx context.Context, caller auth.Caller, in CreatePostInput, upload *Upload) (*model.Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Body = strings.TrimSpace(in.Body)

	if err := validateStruct(in); err != nil {
		return nil, err
	}

	var photoName string
	if upload != nil {
		name, err := storage.CoverPhotoName(in.Title, upload.ContentType)
		if err != nil {
			return nil, err
		}
		photoName, err = s.photos.Save(ctx, name, upload.ContentType, upload.Reader, upload.Size)
		if err != nil {
			return nil, fmt.Errorf("service/post: saving cover photo: %w", err)
		}
	}

	post := &model.Post{
		Title:       in.Title,
		Description: in.Description,
		Body:        in.Body,
		Tags:        normalizeTags(in.Tags),
		Author:      caller.FullName(),
		AuthorID:    caller.ID,
		State:       model.StateDraft,
		ReadTime:    ReadTime(in.Body),
		CoverPhoto:  photoName,
	}

	if err := s.posts.Create(ctx, post); err != nil {
		if photoName != "" {
			s.removePhoto(ctx, photoName)
		}
		return nil, err
	}

	s.logger.Info("post created",
		slog.String("post_id", post.ID),
		slog.String("author_id", caller.ID),
	)
	return post, nil
}

// Update applies in to the post if caller owns it.
// A changed body also changes the read time.
func (s *PostService) Update(ctx context.Context, caller auth.Caller, id string, in UpdatePostInput) (*model.Post, error) {
	patch, err := buildPatch(in)
	if err != nil {
		return nil, err
	}

	post, err := s.posts.Update(ctx, id, caller.ID, patch)
	if err != nil {
		return nil, err
	}

	s.logger.Info("post updated",
		slog.String("post_id", post.ID),
		slog.String("state", string(post.State)),
	)
	return post, nil
}

func buildPatch(in UpdatePostInput) (repository.PostPatch, error) {
	var patch repository.PostPatch

	if in.State != nil {
		state := model.PostState(strings.TrimSpace(*in.State))
		if !state.Valid() {
			return patch, apperror.ValidationFailed("state", "state must be one of: draft published")
		}
		patch.State = &state
	}

	text := []struct {
		field string
		in    *string
		out   **string
	}{
		{"title", in.Title, &patch.Title},
		{"description", in.Description, &patch.Description},
		{"body", in.Body, &patch.Body},
	}
	for _, f := range text {
		if f.in == nil {
			continue
		}
		v := strings.TrimSpace(*f.in)
		if v == "" {
			return patch, apperror.ValidationFailed(f.field, f.field+" must not be empty")
		}
		*f.out = &v
	}

	if patch.Body != nil {
		rt := ReadTime(*patch.Body)
		patch.ReadTime = &rt
	}

	if in.Tags != nil {
		tags := normalizeTags(*in.Tags)
		patch.Tags = &tags
	}

	return patch, nil
}

// Delete removes the post if caller owns it, then its cover photo. A
// failure removing the photo is logged and does not fail the delete.
func (s *PostService) Delete(ctx context.Context, caller auth.Caller, id string) error {
	post, err := s.posts.Delete(ctx, id, caller.ID)
	if err != nil {
		return err
	}

	if post.CoverPhoto != "" {
		s.removePhoto(ctx, post.CoverPhoto)
	}

	s.logger.Info("post deleted",
		slog.String("post_id", id),
		slog.String("author_id", caller.ID),
	)
	return nil
}

func (s *PostService) removePhoto(ctx context.Context, name string) {
	if err := s.photos.Remove(ctx, name); err != nil {
		s.logger.Error("removing cover photo",
			slog.String("photo", name),
			slog.String("error", err.Error()),
		)
	}
}

// normalizeTags trims every tag, drops empty ones and removes duplicates,
// keeping first-seen order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
