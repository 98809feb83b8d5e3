package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"holocard/template-gateway/internal/cache"
	"holocard/template-gateway/internal/serializer"
	"holocard/template-gateway/internal/storage"
)

// statusForError maps core error kinds onto HTTP status codes. Local
// validation failures surface before any network attempt, so the client never
// waits on a request guaranteed to fail.
func statusForError(err error) int {
	var payloadErr *storage.PayloadTooLargeError
	var mediaErr *storage.UnsupportedMediaTypeError
	var schemaErr *serializer.SchemaError
	var imageErr *serializer.MalformedImageRefError
	var transientErr *storage.TransientStoreError
	var permanentErr *storage.PermanentStoreError
	var quotaErr *cache.CacheQuotaExceededError
	var backupErr *cache.BackupFormatError

	switch {
	case errors.As(err, &backupErr):
		return fiber.StatusBadRequest
	case errors.As(err, &payloadErr):
		return fiber.StatusRequestEntityTooLarge
	case errors.As(err, &mediaErr):
		return fiber.StatusUnsupportedMediaType
	case errors.As(err, &schemaErr), errors.As(err, &imageErr):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &transientErr):
		return fiber.StatusBadGateway
	case errors.As(err, &permanentErr):
		return fiber.StatusInternalServerError
	case errors.As(err, &quotaErr):
		return fiber.StatusInsufficientStorage
	default:
		return fiber.StatusInternalServerError
	}
}
