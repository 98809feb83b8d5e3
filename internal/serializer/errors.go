package serializer

import (
	"fmt"
)

// SchemaError reports the first required field that failed validation.
// Validation is fail-fast and single-error-at-a-time so callers can surface
// one clear message to the publisher.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error on field '%s': %s", e.Field, e.Reason)
}

// MalformedImageRefError is returned by Deserialize when an image ref is
// structurally unusable: reference mode without a URL, or embedded mode
// without data.
type MalformedImageRefError struct {
	Slot   string // "frontImage" or "backImage"
	Reason string
}

func (e *MalformedImageRefError) Error() string {
	return fmt.Sprintf("malformed image ref in %s: %s", e.Slot, e.Reason)
}
