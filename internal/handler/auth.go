package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/blogging-api/internal/envelope"
	"github.com/sakif/blogging-api/internal/service"
)

// AuthHandler serves signup and login.
type AuthHandler struct {
	auth    *service.AuthService
	maxBody int64
	logger  *slog.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, maxBody: 64 << 10, logger: logger}
}

// HandleSignup creates an account.
//
// HTTP: POST /api/auth/signup
// BODY: {"firstname": "...", "lastname": "...", "email": "...", "password": "..."}
// 201:  {"status": "success", "user": {...}}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var in service.SignupInput
	if err := decodeJSON(w, r, h.maxBody, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.auth.Signup(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	envelope.JSON(w, h.logger, http.StatusCreated, userResponse{Status: envelope.Success, User: user})
}

// HandleLogin exchanges credentials for a bearer token.
//
// HTTP: POST /api/auth/login
// BODY: {"email": "...", "password": "..."}
// 200:  {"status": "success", "token": "<jwt>", "user": {...}}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, h.maxBody, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.auth.Login(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	envelope.JSON(w, h.logger, http.StatusOK, loginResponse{
		Status: envelope.Success,
		Token:  result.Token,
		User:   result.User,
	})
}
