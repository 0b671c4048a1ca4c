// Package envelope writes the JSON body shape every route answers with:
//
//	{"status": "success", "posts": [...]}
//	{"status": "Fail",    "message": "title is required"}
//	{"status": "Failed",  "message": "post with given id abc not found"}
//
// "Fail" is a client error the caller can fix; "Failed" is a missing
// resource or a server fault. It is a leaf package so that middleware in
// any layer writes the same words.
package envelope

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Status words.
const (
	Success = "success"
	Fail    = "Fail"
	Failed  = "Failed"
)

// Message is the envelope of a response that carries no payload.
type Message struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// StatusWord returns the status word for an HTTP status code.
func StatusWord(code int) string {
	switch {
	case code < 400:
		return Success
	case code == http.StatusNotFound || code >= 500:
		return Failed
	default:
		return Fail
	}
}

// JSON sets the header, then the status, then the body; headers set after
// the first Write are ignored. An encode failure is logged to logger.
func JSON(w http.ResponseWriter, logger *slog.Logger, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response",
			slog.Int("status", code),
			slog.String("error", err.Error()),
		)
	}
}

// WriteMessage writes {status, message} with the status word for code.
func WriteMessage(w http.ResponseWriter, logger *slog.Logger, code int, message string) {
	JSON(w, logger, code, Message{Status: StatusWord(code), Message: message})
}
