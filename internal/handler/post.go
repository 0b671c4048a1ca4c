package handler

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/blogging-api/internal/apperror"
	"github.com/sakif/blogging-api/internal/envelope"
	"github.com/sakif/blogging-api/internal/auth"
	"github.com/sakif/blogging-api/internal/repository"
	"github.com/sakif/blogging-api/internal/service"
)

// multipartMemory is how much of a multipart body is buffered in memory;
// the rest of the parts spill to temp files.
const multipartMemory = 1 << 20

// PostHandler serves the /api/posts and /api/author routes.
type PostHandler struct {
	posts     *service.PostService
	maxUpload int64
	logger    *slog.Logger
}

// NewPostHandler creates a PostHandler. maxUpload bounds the size of a
// create or update request body, cover photo included.
func NewPostHandler(posts *service.PostService, maxUpload int64, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: posts, maxUpload: maxUpload, logger: logger}
}

type createPostRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Body        string  `json:"body"`
	Tags        tagList `json:"tags"`
}

type updatePostRequest struct {
	State       *string  `json:"state"`
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Body        *string  `json:"body"`
	Tags        *tagList `json:"tags"`
}

// caller returns the authenticated user. Routes using it are mounted
// behind auth.RequireAuth, so a miss means the router is misconfigured.
func (h *PostHandler) caller(w http.ResponseWriter, r *http.Request) (auth.Caller, bool) {
	c, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthenticated("You are not logged in! Please log in to get access."))
	}
	return c, ok
}

// HandleListPublished lists published posts.
//
// HTTP: GET /api/posts?author=&title=&tags=
// Each query parameter is an optional case-insensitive substring filter.
func (h *PostHandler) HandleListPublished(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	posts, err := h.posts.ListPublished(r.Context(), repository.PostFilter{
		Author: q.Get("author"),
		Title:  q.Get("title"),
		Tag:    q.Get("tags"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	envelope.JSON(w, h.logger, http.StatusOK, postsResponse{Status: envelope.Success, Posts: posts})
}

// HandleGetPublished returns one published post and counts the read.
//
// HTTP: GET /api/posts/{postId}
func (h *PostHandler) HandleGetPublished(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.GetPublished(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	envelope.JSON(w, h.logger, http.StatusOK, postResponse{Status: envelope.Success, Post: post})
}

// HandleListMine lists every post of the caller, drafts included.
//
// HTTP: GET /api/author
func (h *PostHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	posts, err := h.posts.ListByAuthor(r.Context(), caller)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	envelope.JSON(w, h.logger, http.StatusOK, postsResponse{Status: envelope.Success, Posts: posts})
}

// HandleCreate creates a draft.
//
// HTTP: POST /api/posts
// BODY: JSON {"title", "description", "body", "tags"}, or multipart/form-data
// with the same fields plus an optional "coverPhoto" file part. In a form,
// tags may be repeated and/or comma-separated.
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var (
		in     service.CreatePostInput
		upload *service.Upload
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if !errors.As(err, &tooLarge) {
				err = apperror.ValidationFailed("", "Invalid multipart body")
			}
			writeError(w, h.logger, err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		in = service.CreatePostInput{
			Title:       r.FormValue("title"),
			Description: r.FormValue("description"),
			Body:        r.FormValue("body"),
			Tags:        splitTags(r.MultipartForm.Value["tags"]...),
		}

		file, header, err := r.FormFile("coverPhoto")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			writeError(w, h.logger, apperror.ValidationFailed("coverPhoto", "Invalid cover photo upload"))
			return
		default:
			defer file.Close()
			upload = &service.Upload{
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
				Reader:      file,
			}
		}
	} else {
		var req createPostRequest
		if err := decodeJSON(w, r, h.maxUpload, &req); err != nil {
			writeError(w, h.logger, err)
			return
		}
		in = service.CreatePostInput{
			Title:       req.Title,
			Description: req.Description,
			Body:        req.Body,
			Tags:        req.Tags,
		}
	}

	post, err := h.posts.Create(r.Context(), caller, in, upload)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	envelope.JSON(w, h.logger, http.StatusCreated, postResponse{Status: envelope.Success, Post: post})
}

// HandleUpdate changes any subset of state, title, description, body and
// tags on a post the caller owns.
//
// HTTP: PUT /api/posts/{postId}
func (h *PostHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req updatePostRequest
	if err := decodeJSON(w, r, h.maxUpload, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	in := service.UpdatePostInput{
		State:       req.State,
		Title:       req.Title,
		Description: req.Description,
		Body:        req.Body,
	}
	if req.Tags != nil {
		tags := []string(*req.Tags)
		in.Tags = &tags
	}

	post, err := h.posts.Update(r.Context(), caller, chi.URLParam(r, "postId"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	envelope.JSON(w, h.logger, http.StatusOK, postResponse{Status: envelope.Success, Post: post})
}

// HandleDelete removes a post the caller owns.
//
// HTTP: DELETE /api/posts/{postId}
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.posts.Delete(r.Context(), caller, chi.URLParam(r, "postId")); err != nil {
		writeError(w, h.logger, err)
		return
	}

	envelope.WriteMessage(w, h.logger, http.StatusOK, "Post deleted successfully")
}
