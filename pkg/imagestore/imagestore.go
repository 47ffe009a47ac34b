// Package imagestore is the port to the external image-hosting
// service. The pipeline does not retry hosting failures beyond the
// generic call wrapper; a persistent failure surfaces as a stage
// failure.
package imagestore

import (
	"context"
	"net/http"
	"time"

	"github.com/relightlabs/relight/pkg/errx"
)

// Meta carries upload metadata.
type Meta struct {
	ContentType string
	Metadata    map[string]string
}

// Store hosts images and hands back referenceable URLs.
type Store interface {
	// Upload stores data under key and returns a stable reference URL.
	Upload(ctx context.Context, key string, data []byte, meta Meta) (string, error)

	// PresignedDownloadURL returns a time-limited download URL for a
	// previously uploaded key.
	PresignedDownloadURL(ctx context.Context, key string, expiration time.Duration) (string, error)
}

var errorRegistry = errx.NewRegistry("IMAGESTORE")

var (
	ErrEmptyData = errorRegistry.Register(
		"EMPTY_DATA",
		errx.TypeValidation,
		http.StatusBadRequest,
		"Cannot upload an empty image",
	)

	ErrUploadFailed = errorRegistry.Register(
		"UPLOAD_FAILED",
		errx.TypeExternal,
		http.StatusBadGateway,
		"Image upload failed",
	)

	ErrPresignFailed = errorRegistry.Register(
		"PRESIGN_FAILED",
		errx.TypeExternal,
		http.StatusBadGateway,
		"Could not presign download URL",
	)
)

// NewEmptyData reports an upload with no bytes.
func NewEmptyData() *errx.Error { return errorRegistry.New(ErrEmptyData) }

// WrapUpload classifies a provider upload failure.
func WrapUpload(err error) *errx.Error {
	return errorRegistry.NewWithCause(ErrUploadFailed, err)
}

// WrapPresign classifies a provider presign failure.
func WrapPresign(err error) *errx.Error {
	return errorRegistry.NewWithCause(ErrPresignFailed, err)
}
