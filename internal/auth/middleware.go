package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/blogging-api/internal/apperror"
	"github.com/sakif/blogging-api/internal/envelope"
	"github.com/sakif/blogging-api/internal/model"
)

// UserLookup is the part of the credential store the gate needs.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Caller is the authenticated user attached to a request.
type Caller struct {
	ID        string
	FirstName string
	LastName  string
}

// FullName is the display name stored on the caller's posts.
func (c Caller) FullName() string {
	return c.FirstName + " " + c.LastName
}

// contextKey is unexported so no other package can read or overwrite the
// caller stored in a request context.
type contextKey struct{}

var callerKey contextKey

// WithCaller returns a copy of ctx carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromContext returns the caller stored by RequireAuth.
// ok is false on routes RequireAuth does not wrap.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey).(Caller)
	return c, ok && c.ID != ""
}

const (
	msgNoToken      = "You are not logged in! Please log in to get access."
	msgInvalidToken = "Invalid or expired token. Please log in again."
	msgUnknownUser  = "The user belonging to this token no longer exists."
)

// RequireAuth rejects requests without a valid bearer token.
//
// The token's subject must still resolve to a stored user; the resolved
// id and name become the request's Caller. Any rejection is a 401 with
// the standard error envelope. A store failure while resolving is a 500.
func RequireAuth(tokens *TokenService, users UserLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				envelope.WriteMessage(w, logger, http.StatusUnauthorized, msgNoToken)
				return
			}

			userID, err := tokens.Validate(raw)
			if err != nil {
				logger.Debug("rejected token", slog.String("error", err.Error()))
				envelope.WriteMessage(w, logger, http.StatusUnauthorized, msgInvalidToken)
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if errors.Is(err, apperror.ErrNotFound) {
				envelope.WriteMessage(w, logger, http.StatusUnauthorized, msgUnknownUser)
				return
			}
			if err != nil {
				logger.Error("resolving token subject",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				envelope.WriteMessage(w, logger, http.StatusInternalServerError, "An internal error occurred")
				return
			}

			ctx := WithCaller(r.Context(), Caller{
				ID:        user.ID,
				FirstName: user.FirstName,
				LastName:  user.LastName,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
