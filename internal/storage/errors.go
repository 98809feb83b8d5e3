package storage

import (
	"fmt"
	"strings"
)

// PayloadTooLargeError is returned before any network call when a requested
// upload exceeds the size limit for its object class.
type PayloadTooLargeError struct {
	ByteSize int64
	Limit    int64
}

func (e *PayloadTooLargeError) Error() string {
	if e.ByteSize <= 0 {
		return fmt.Sprintf("payload size must be greater than zero, got %d", e.ByteSize)
	}
	return fmt.Sprintf("payload of %d bytes exceeds the %d byte limit", e.ByteSize, e.Limit)
}

// UnsupportedMediaTypeError is returned before any network call when a
// thumbnail upload declares a content type outside the raster-image
// allow-list.
type UnsupportedMediaTypeError struct {
	ContentType string
}

func (e *UnsupportedMediaTypeError) Error() string {
	return fmt.Sprintf("content type '%s' is not an accepted thumbnail type", e.ContentType)
}

// TransientStoreError wraps a network or server-side store failure. Safe for
// the caller to retry with backoff; this service never retries on its own.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error during %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// PermanentStoreError wraps an auth or policy failure from the store.
// Retrying will not help.
type PermanentStoreError struct {
	Op  string
	Err error
}

func (e *PermanentStoreError) Error() string {
	return fmt.Sprintf("permanent store error during %s: %v", e.Op, e.Err)
}

func (e *PermanentStoreError) Unwrap() error { return e.Err }

// permanentMarkers are substrings the Supabase storage API includes in auth
// and policy rejections. Anything else from the store is treated as
// retryable.
var permanentMarkers = []string{
	"401", "403", "unauthorized", "forbidden", "invalid signature",
	"jwt", "row-level security", "bucket not found",
}

// classifyStoreError splits remote failures into the transient/permanent
// taxonomy. The storage client surfaces flat errors, so classification leans
// on the response text.
func classifyStoreError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return &PermanentStoreError{Op: op, Err: err}
		}
	}
	return &TransientStoreError{Op: op, Err: err}
}
