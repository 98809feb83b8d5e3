package models

import (
	"time"

	"github.com/google/uuid"
)

// Upload states for a published template, from URL issuance to a terminal
// verification outcome.
const (
	UploadStateRequested          = "REQUESTED"
	UploadStateURLIssued          = "UPLOAD_URL_ISSUED"
	UploadStateUploading          = "UPLOADING"
	UploadStateVerified           = "VERIFIED"
	UploadStateVerificationFailed = "VERIFICATION_FAILED"
	UploadStateExpired            = "EXPIRED"
)

// CatalogTemplate represents the structure of a published template record in
// the database.
type CatalogTemplate struct {
	TemplateID    string     `json:"template_id"`
	UploadID      uuid.UUID  `json:"upload_id"`
	Title         string     `json:"title"`
	AuthorID      string     `json:"author_id"`
	AuthorName    string     `json:"author_name"`
	Category      string     `json:"category"`
	Version       string     `json:"version"`
	ContentHash   string     `json:"content_hash"`
	StoragePath   string     `json:"storage_path"`
	ThumbnailPath *string    `json:"thumbnail_path,omitempty"` // Nullable
	FileSize      *int64     `json:"file_size,omitempty"`      // Nullable BIGINT
	UploadState   string     `json:"upload_state"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
