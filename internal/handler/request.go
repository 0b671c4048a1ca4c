package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sakif/blogging-api/internal/apperror"
)

// decodeJSON reads at most limit bytes of JSON from the body into dst.
// Oversized bodies come back as *http.MaxBytesError, anything else that
// does not decode as a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return apperror.ValidationFailed("", "Invalid JSON body")
	}
	return nil
}

// tagList accepts tags as a JSON array or as one comma-separated string.
type tagList []string

func (t *tagList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*t = list
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("tags must be an array of strings or a string")
	}
	*t = splitTags(s)
	return nil
}

// splitTags splits every value on commas. Trimming and de-duplication are
// left to the service.
func splitTags(values ...string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}
