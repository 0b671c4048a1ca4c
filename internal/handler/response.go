package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/blogging-api/internal/apperror"
	"github.com/sakif/blogging-api/internal/envelope"
	"github.com/sakif/blogging-api/internal/model"
)

type postResponse struct {
	Status string      `json:"status"`
	Post   *model.Post `json:"post"`
}

type postsResponse struct {
	Status string       `json:"status"`
	Posts  []model.Post `json:"posts"`
}

type userResponse struct {
	Status string      `json:"status"`
	User   *model.User `json:"user"`
}

type loginResponse struct {
	Status string      `json:"status"`
	Token  string      `json:"token"`
	User   *model.User `json:"user"`
}

// kindStatus maps each domain error kind to its HTTP status.
var kindStatus = map[error]int{
	apperror.ErrValidation:      http.StatusBadRequest,
	apperror.ErrUnauthenticated: http.StatusUnauthorized,
	apperror.ErrForbidden:       http.StatusForbidden,
	apperror.ErrNotFound:        http.StatusNotFound,
	apperror.ErrConflict:        http.StatusConflict,
}

// writeError maps a domain error to its status and envelope. Oversized
// bodies are 413. Anything outside the taxonomy is a 500 whose cause is
// logged and never sent.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		envelope.WriteMessage(w, logger, http.StatusRequestEntityTooLarge, "Request body is too large")
		return
	}

	var appErr *apperror.AppError
	if status, ok := kindStatus[apperror.KindOf(err)]; ok && errors.As(err, &appErr) {
		envelope.JSON(w, logger, status, envelope.Message{
			Status:  envelope.StatusWord(status),
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	logger.Error("request failed", slog.String("error", err.Error()))
	envelope.WriteMessage(w, logger, http.StatusInternalServerError, "An internal error occurred")
}

// HandleNotFound answers requests for routes that do not exist.
func HandleNotFound(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envelope.WriteMessage(w, logger, http.StatusNotFound, "Can't find "+r.URL.Path+" on this server")
	}
}

// HandleMethodNotAllowed answers requests using the wrong method on a known route.
func HandleMethodNotAllowed(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envelope.WriteMessage(w, logger, http.StatusMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path)
	}
}
