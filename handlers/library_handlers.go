package handlers

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"holocard/template-gateway/models"
	"holocard/template-gateway/utils"
)

// DownloadToLibrary fetches a template from the object store and persists it
// in the local library. The mutation runs on the write queue so concurrent
// downloads cannot lose each other's updates.
func (h *ApplicationHandler) DownloadToLibrary(c *fiber.Ctx) error {
	templateID := c.Params("templateId")
	h.Logger.Infof("Received request to download template %s into the library", templateID)

	// A queued job can outlive this request if the caller stops waiting, and
	// Fiber recycles the request context as soon as the handler returns. The
	// job body therefore runs on a detached context; the request context only
	// bounds the wait.
	jobCtx := context.Background()
	var entry *models.CachedTemplateEntry
	err := h.Writes.Do(c.Context(), func() error {
		var downloadErr error
		entry, downloadErr = h.Library.DownloadTemplate(jobCtx, templateID)
		return downloadErr
	})
	if err != nil {
		h.Logger.Errorf("Error downloading template %s into library: %v", templateID, err)
		return utils.RespondWithError(c, statusForError(err), err.Error())
	}

	return utils.RespondWithJSON(c, fiber.StatusCreated, entry)
}

// ListLibrary returns every downloaded template, oldest first.
func (h *ApplicationHandler) ListLibrary(c *fiber.Ctx) error {
	entries, err := h.Library.ListDownloaded(c.Context())
	if err != nil {
		h.Logger.Errorf("Error listing library: %v", err)
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not read local library")
	}
	if entries == nil {
		entries = []models.CachedTemplateEntry{}
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"count":   len(entries),
		"entries": entries,
	})
}

// GetLibraryEntry returns one downloaded template, or 404 if absent.
func (h *ApplicationHandler) GetLibraryEntry(c *fiber.Ctx) error {
	templateID := c.Params("templateId")

	entry, err := h.Library.Get(c.Context(), templateID)
	if err != nil {
		h.Logger.Errorf("Error reading library entry %s: %v", templateID, err)
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not read local library")
	}
	if entry == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, fmt.Sprintf("Template %s is not downloaded", templateID))
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, entry)
}

// RemoveLibraryEntry deletes one downloaded template from the library.
func (h *ApplicationHandler) RemoveLibraryEntry(c *fiber.Ctx) error {
	templateID := c.Params("templateId")

	jobCtx := context.Background()
	var removed bool
	err := h.Writes.Do(c.Context(), func() error {
		var removeErr error
		removed, removeErr = h.Library.Remove(jobCtx, templateID)
		return removeErr
	})
	if err != nil {
		h.Logger.Errorf("Error removing library entry %s: %v", templateID, err)
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not update local library")
	}
	if !removed {
		return utils.RespondWithError(c, fiber.StatusNotFound, fmt.Sprintf("Template %s is not downloaded", templateID))
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"template_id": templateID,
		"removed":     true,
	})
}

// LibraryFootprint reports the persisted library size for quota display.
func (h *ApplicationHandler) LibraryFootprint(c *fiber.Ctx) error {
	footprint, err := h.Library.StorageFootprint(c.Context())
	if err != nil {
		h.Logger.Errorf("Error measuring library footprint: %v", err)
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not measure local library")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, footprint)
}

// ExportLibrary streams the whole library as a portable backup bundle.
func (h *ApplicationHandler) ExportLibrary(c *fiber.Ctx) error {
	bundle, err := h.Library.ExportAll(c.Context())
	if err != nil {
		h.Logger.Errorf("Error exporting library: %v", err)
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not export local library")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="template-library-backup.json"`)
	return c.Status(fiber.StatusOK).Send(bundle)
}

// ImportLibrary restores a backup bundle. Validation is all-or-nothing: a
// single malformed record rejects the whole bundle and leaves the library
// unchanged.
func (h *ApplicationHandler) ImportLibrary(c *fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Backup bundle is empty")
	}
	// The body's backing array is recycled with the request; the queued job
	// needs its own copy.
	bundle := append([]byte(nil), c.Body()...)

	jobCtx := context.Background()
	var count int
	err := h.Writes.Do(c.Context(), func() error {
		var importErr error
		count, importErr = h.Library.ImportAll(jobCtx, bundle)
		return importErr
	})
	if err != nil {
		h.Logger.Errorf("Error importing library backup: %v", err)
		return utils.RespondWithError(c, statusForError(err), err.Error())
	}

	h.Logger.Infof("Imported %d templates from backup bundle", count)
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"imported": count,
	})
}
