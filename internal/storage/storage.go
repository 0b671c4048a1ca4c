// Package storage persists uploaded cover photos.
//
// Two backends implement PhotoStore: Disk writes files under a local
// directory that the server exposes at /img/posts/, and Minio writes
// objects to a MinIO or S3 bucket.
package storage

import (
	"context"
	"io"
	"mime"
	"regexp"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/blogging-api/internal/apperror"
)

// PhotoStore saves and removes cover photos by name.
type PhotoStore interface {
	// Save stores size bytes from r under name and returns the stored name.
	Save(ctx context.Context, name, contentType string, r io.Reader, size int64) (string, error)
	// Remove deletes a stored photo. Removing a missing name is not an error.
	Remove(ctx context.Context, name string) error
}

var (
	nonSlug    = regexp.MustCompile(`[^a-z0-9]+`)
	subtypeOK  = regexp.MustCompile(`^[a-z0-9.-]+$`)
	maxSlugLen = 60
)

// Slug lower-cases s and collapses every run of characters outside
// [a-z0-9] into a single dash.
func Slug(s string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		return "untitled"
	}
	return slug
}

// CoverPhotoName validates the declared content type of an upload and
// derives the stored name "post-<slug>-<id>.<subtype>" from the post
// title. Anything that is not image/* is a validation error.
func CoverPhotoName(title, contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", apperror.ValidationFailed("coverPhoto", "Only images are allowed")
	}

	kind, subtype, ok := strings.Cut(mediaType, "/")
	if !ok || kind != "image" {
		return "", apperror.ValidationFailed("coverPhoto", "Only images are allowed")
	}

	// image/svg+xml → svg
	subtype, _, _ = strings.Cut(subtype, "+")
	if !subtypeOK.MatchString(subtype) {
		return "", apperror.ValidationFailed("coverPhoto", "Unsupported image type")
	}

	return "post-" + Slug(title) + "-" + xid.New().String() + "." + subtype, nil
}
