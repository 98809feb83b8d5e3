package storage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Size and type limits enforced identically by every deployment. Violations
// fail locally, before any network call.
const (
	MaxDocumentBytes  = 15 * 1024 * 1024
	MaxThumbnailBytes = 2 * 1024 * 1024

	// DefaultUploadTTLSeconds is the time box on issued upload URLs.
	DefaultUploadTTLSeconds = 3600
)

// allowedThumbnailTypes is the raster-image allow-list for thumbnail uploads.
var allowedThumbnailTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// UploadTicket is the result of issuing a time-boxed upload URL. No object
// exists in the store until the client PUTs to UploadURL.
type UploadTicket struct {
	UploadURL   string `json:"upload_url"`
	StoragePath string `json:"storage_path"`
	UploadID    string `json:"upload_id"`
	ExpiresIn   int    `json:"expires_in"`
}

// ThumbnailTicket is the thumbnail counterpart of UploadTicket.
type ThumbnailTicket struct {
	UploadURL    string `json:"upload_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	StoragePath  string `json:"storage_path"`
	ExpiresIn    int    `json:"expires_in"`
}

// TransferService moves template documents and thumbnails between clients and
// the object store. It is stateless per call and safe for concurrent use.
type TransferService struct {
	store           ObjectStore
	logger          *logrus.Logger
	templateBucket  string
	thumbnailBucket string
	uploadTTL       int
}

// NewTransferService wires a transfer service against an object store.
func NewTransferService(store ObjectStore, logger *logrus.Logger, templateBucket, thumbnailBucket string, uploadTTLSeconds int) *TransferService {
	if uploadTTLSeconds <= 0 {
		uploadTTLSeconds = DefaultUploadTTLSeconds
	}
	return &TransferService{
		store:           store,
		logger:          logger,
		templateBucket:  templateBucket,
		thumbnailBucket: thumbnailBucket,
		uploadTTL:       uploadTTLSeconds,
	}
}

// DocumentKey derives the deterministic storage key for a template document.
// Re-uploading the same template overwrites the same object rather than
// creating a duplicate.
func DocumentKey(templateID string) string {
	return fmt.Sprintf("templates/%s.json", templateID)
}

// ThumbnailKey derives the storage key for a template's thumbnail. Keyed
// separately from the document so the two can be replaced independently.
func ThumbnailKey(templateID, contentType string) string {
	ext, ok := allowedThumbnailTypes[contentType]
	if !ok {
		ext = "png"
	}
	return fmt.Sprintf("thumbnails/%s.%s", templateID, ext)
}

// TemplateIDFromFilename strips the extension from an upload filename to
// recover the template id the key is derived from.
func TemplateIDFromFilename(filename string) string {
	return strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
}

// GenerateUploadURL validates the declared size, then issues a time-boxed
// signed upload URL for the document key derived from filename. The uploadId
// correlates this issuance for idempotency and auditing; nothing is created
// in the store yet.
func (t *TransferService) GenerateUploadURL(filename string, byteSize int64, contentType string) (*UploadTicket, error) {
	if byteSize <= 0 {
		return nil, &PayloadTooLargeError{ByteSize: byteSize, Limit: MaxDocumentBytes}
	}
	if byteSize > MaxDocumentBytes {
		return nil, &PayloadTooLargeError{ByteSize: byteSize, Limit: MaxDocumentBytes}
	}

	storagePath := DocumentKey(TemplateIDFromFilename(filename))
	uploadURL, err := t.store.CreateSignedUploadURL(t.templateBucket, storagePath)
	if err != nil {
		t.logger.Errorf("Error generating signed upload URL for '%s': %v", storagePath, err)
		return nil, classifyStoreError("generate upload URL", err)
	}

	ticket := &UploadTicket{
		UploadURL:   uploadURL,
		StoragePath: storagePath,
		UploadID:    uuid.NewString(),
		ExpiresIn:   t.uploadTTL,
	}
	t.logger.Infof("Issued upload URL for '%s' (upload_id=%s)", storagePath, ticket.UploadID)
	return ticket, nil
}

// GenerateThumbnailUploadURL issues an upload URL for a template's thumbnail.
// Thumbnails have a tighter size limit and a fixed content-type allow-list.
func (t *TransferService) GenerateThumbnailUploadURL(templateID, contentType string, byteSize int64) (*ThumbnailTicket, error) {
	if _, ok := allowedThumbnailTypes[contentType]; !ok {
		return nil, &UnsupportedMediaTypeError{ContentType: contentType}
	}
	if byteSize <= 0 || byteSize > MaxThumbnailBytes {
		return nil, &PayloadTooLargeError{ByteSize: byteSize, Limit: MaxThumbnailBytes}
	}

	storagePath := ThumbnailKey(templateID, contentType)
	uploadURL, err := t.store.CreateSignedUploadURL(t.thumbnailBucket, storagePath)
	if err != nil {
		t.logger.Errorf("Error generating thumbnail upload URL for '%s': %v", storagePath, err)
		return nil, classifyStoreError("generate thumbnail upload URL", err)
	}

	return &ThumbnailTicket{
		UploadURL:    uploadURL,
		ThumbnailURL: t.store.PublicURL(t.thumbnailBucket, storagePath),
		StoragePath:  storagePath,
		ExpiresIn:    t.uploadTTL,
	}, nil
}

// VerifyUpload checks that the uploaded object exists and is non-empty.
// This is a metadata-only check: the object is not downloaded, so a true
// result confirms existence and size, not byte-for-byte integrity against
// expectedHash. The expected hash is recorded alongside the catalog entry so
// a stronger verification pass can be added without changing callers.
func (t *TransferService) VerifyUpload(storagePath, expectedHash string) (bool, error) {
	info, err := t.store.Stat(t.templateBucket, storagePath)
	if err != nil {
		if isNotFound(err) {
			// Missing objects are an unverified outcome, not an error, so
			// callers can mark the upload failed.
			t.logger.Warnf("Upload verification found no object at '%s'", storagePath)
			return false, nil
		}
		// Store trouble is not a verification outcome; surface it so the
		// caller can retry instead of recording a terminal failure.
		return false, classifyStoreError("verify upload", err)
	}
	if info.Size <= 0 {
		t.logger.Warnf("Upload verification found zero-length object at '%s'", storagePath)
		return false, nil
	}
	return true, nil
}

// GetDownloadURL returns the public, unsigned URL for a freely shareable
// template document. Access-restricted documents must use
// GeneratePresignedDownloadURL instead; choosing between the two is the
// caller's policy decision.
func (t *TransferService) GetDownloadURL(templateID string) string {
	return t.store.PublicURL(t.templateBucket, DocumentKey(templateID))
}

// GeneratePresignedDownloadURL returns a time-boxed download URL for an
// access-restricted template document.
func (t *TransferService) GeneratePresignedDownloadURL(templateID string, ttlSeconds int) (string, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = t.uploadTTL
	}
	url, err := t.store.CreateSignedDownloadURL(t.templateBucket, DocumentKey(templateID), ttlSeconds)
	if err != nil {
		t.logger.Errorf("Error generating presigned download URL for template %s: %v", templateID, err)
		return "", classifyStoreError("generate presigned download URL", err)
	}
	return url, nil
}

// UploadDocument pushes document bytes server-side, for clients that publish
// through the gateway instead of PUTting to a signed URL themselves.
func (t *TransferService) UploadDocument(templateID string, document []byte) (string, error) {
	if len(document) == 0 {
		return "", &PayloadTooLargeError{ByteSize: 0, Limit: MaxDocumentBytes}
	}
	if int64(len(document)) > MaxDocumentBytes {
		return "", &PayloadTooLargeError{ByteSize: int64(len(document)), Limit: MaxDocumentBytes}
	}

	storagePath := DocumentKey(templateID)
	if err := t.store.Upload(t.templateBucket, storagePath, bytes.NewReader(document), "application/json"); err != nil {
		t.logger.Errorf("Error uploading document for template %s: %v", templateID, err)
		return "", classifyStoreError("upload document", err)
	}
	t.logger.Infof("Uploaded document for template %s (%d bytes)", templateID, len(document))
	return storagePath, nil
}

// FetchDocument pulls a template document's bytes from the store.
func (t *TransferService) FetchDocument(templateID string) ([]byte, error) {
	data, err := t.store.Download(t.templateBucket, DocumentKey(templateID))
	if err != nil {
		t.logger.Errorf("Error downloading document for template %s: %v", templateID, err)
		return nil, classifyStoreError("fetch document", err)
	}
	return data, nil
}

// DeleteObject removes a template document from the store. Deleting a key
// that does not exist is not an error.
func (t *TransferService) DeleteObject(templateID string) error {
	return t.remove(t.templateBucket, DocumentKey(templateID))
}

// DeleteThumbnail removes every thumbnail variant for a template. Idempotent
// like DeleteObject.
func (t *TransferService) DeleteThumbnail(templateID string) error {
	paths := make([]string, 0, len(allowedThumbnailTypes))
	for contentType := range allowedThumbnailTypes {
		paths = append(paths, ThumbnailKey(templateID, contentType))
	}
	return t.remove(t.thumbnailBucket, paths...)
}

func (t *TransferService) remove(bucket string, paths ...string) error {
	if err := t.store.Remove(bucket, paths); err != nil {
		if isNotFound(err) {
			return nil
		}
		t.logger.Errorf("Error removing objects %v from bucket '%s': %v", paths, bucket, err)
		return classifyStoreError("delete object", err)
	}
	return nil
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}
