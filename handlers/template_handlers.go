package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"holocard/template-gateway/internal/serializer"
	"holocard/template-gateway/models"
	"holocard/template-gateway/utils"
)

// InitiatePublishRequest defines the expected JSON structure for initiating a
// template publish.
type InitiatePublishRequest struct {
	Card             *models.Card `json:"card" validate:"required"`
	EmbedImages      *bool        `json:"embed_images,omitempty"`
	ReferenceBaseURL string       `json:"reference_base_url,omitempty"`
	// RepublishID re-publishes an existing logical template under its stable
	// id instead of minting a new one.
	RepublishID string `json:"republish_id,omitempty"`
	Version     string `json:"version,omitempty"`
}

// VerifyUploadRequest carries the expected content hash for verification.
type VerifyUploadRequest struct {
	ExpectedHash string `json:"expected_hash" validate:"required"`
}

// InitiateThumbnailRequest declares the thumbnail the client wants to upload.
type InitiateThumbnailRequest struct {
	ContentType string `json:"content_type" validate:"required"`
	ByteSize    int64  `json:"byte_size" validate:"required"`
}

var validate = validator.New()

// InitiatePublish serializes the submitted card, records it in the catalog,
// and issues a time-boxed upload URL for the client-side PUT.
func (h *ApplicationHandler) InitiatePublish(c *fiber.Ctx) error {
	payload := new(InitiatePublishRequest)
	if err := c.BodyParser(payload); err != nil {
		h.Logger.Errorf("Error parsing initiate publish payload: %v", err)
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if err := validate.Struct(payload); err != nil {
		h.Logger.Errorf("Validation error for initiate publish payload: %v", err)
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Validation failed: %v", utils.FormatValidationErrors(err)))
	}

	doc, err := h.serializeCard(payload)
	if err != nil {
		h.Logger.Errorf("Error serializing card for publish: %v", err)
		return utils.RespondWithError(c, statusForError(err), err.Error())
	}

	docBytes, err := json.Marshal(doc)
	if err != nil {
		h.Logger.Errorf("Error marshalling document for template %s: %v", doc.Metadata.ID, err)
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not encode template document")
	}
	contentHash, err := h.Serializer.CalculateHash(doc)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not fingerprint template document")
	}

	ticket, err := h.Transfer.GenerateUploadURL(doc.Metadata.ID+".json", int64(len(docBytes)), "application/json")
	if err != nil {
		h.Logger.Errorf("Error generating upload URL for template %s: %v", doc.Metadata.ID, err)
		return utils.RespondWithError(c, statusForError(err), err.Error())
	}

	size := int64(len(docBytes))
	record := &models.CatalogTemplate{
		TemplateID:  doc.Metadata.ID,
		Title:       doc.Metadata.Title,
		AuthorID:    doc.Metadata.Author.ID,
		AuthorName:  doc.Metadata.Author.Name,
		Category:    doc.Metadata.Category,
		Version:     doc.Metadata.Version,
		ContentHash: contentHash,
		StoragePath: ticket.StoragePath,
		FileSize:    &size,
		UploadState: models.UploadStateURLIssued,
	}
	record.UploadID = mustParseUploadID(ticket.UploadID)
	if err := h.Catalog.CreateRecord(record); err != nil {
		h.Logger.Errorf("Error creating catalog record for template %s: %v", doc.Metadata.ID, err)
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not create catalog record")
	}

	h.Logger.Infof("Publish initiated for template %s (upload_id=%s)", doc.Metadata.ID, ticket.UploadID)
	return utils.RespondWithJSON(c, fiber.StatusCreated, fiber.Map{
		"template_id":  doc.Metadata.ID,
		"document":     doc,
		"content_hash": contentHash,
		"upload":       ticket,
		"method":       "PUT",
		"headers": fiber.Map{
			"Content-Type": "application/json",
		},
	})
}

// PublishTemplate is the direct publish path: the gateway serializes the card
// and uploads the document server-side, for clients that cannot PUT to a
// signed URL themselves.
func (h *ApplicationHandler) PublishTemplate(c *fiber.Ctx) error {
	payload := new(InitiatePublishRequest)
	if err := c.BodyParser(payload); err != nil {
		h.Logger.Errorf("Error parsing publish payload: %v", err)
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Validation failed: %v", utils.FormatValidationErrors(err)))
	}

	doc, err := h.serializeCard(payload)
	if err != nil {
		h.Logger.Errorf("Error serializing card for publish: %v", err)
		return utils.RespondWithError(c, statusForError(err), err.Error())
	}

	docBytes, err := json.Marshal(doc)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not encode template document")
	}
	contentHash, err := h.Serializer.CalculateHash(doc)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not fingerprint template document")
	}

	storagePath, err := h.Transfer.UploadDocument(doc.Metadata.ID, docBytes)
	if err != nil {
		h.Logger.Errorf("Error uploading document for template %s: %v", doc.Metadata.ID, err)
		return utils.RespondWithError(c, statusForError(err), err.Error())
	}

	size := int64(len(docBytes))
	record := &models.CatalogTemplate{
		TemplateID:  doc.Metadata.ID,
		UploadID:    uuid.New(),
		Title:       doc.Metadata.Title,
		AuthorID:    doc.Metadata.Author.ID,
		AuthorName:  doc.Metadata.Author.Name,
		Category:    doc.Metadata.Category,
		Version:     doc.Metadata.Version,
		ContentHash: contentHash,
		StoragePath: storagePath,
		FileSize:    &size,
		UploadState: models.UploadStateVerified,
	}
	if err := h.Catalog.CreateRecord(record); err != nil {
		h.Logger.Errorf("Error creating catalog record for template %s: %v", doc.Metadata.ID, err)
		// The document is already in the store; report the record failure
		// without undoing the upload.
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Document uploaded but catalog record failed")
	}

	h.Logger.Infof("Published template %s directly (%d bytes)", doc.Metadata.ID, len(docBytes))
	return utils.RespondWithJSON(c, fiber.StatusCreated, fiber.Map{
		"template_id":  doc.Metadata.ID,
		"storage_path": storagePath,
		"content_hash": contentHash,
	})
}

// VerifyUpload confirms a client-side PUT landed: a metadata-only
// existence/size check against the store, recorded as a terminal state in the
// catalog.
func (h *ApplicationHandler) VerifyUpload(c *fiber.Ctx) error {
	templateID := c.Params("templateId")

	payload := new(VerifyUploadRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Validation failed: %v", utils.FormatValidationErrors(err)))
	}

	record, err := h.Catalog.GetRecord(templateID)
	if err != nil {
		h.Logger.Errorf("Error fetching catalog record %s: %v", templateID, err)
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not fetch catalog record")
	}
	if record == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, fmt.Sprintf("Template %s not found", templateID))
	}

	verified, err := h.Transfer.VerifyUpload(record.StoragePath, payload.ExpectedHash)
	if err != nil {
		h.Logger.Errorf("Error verifying upload for template %s: %v", templateID, err)
		return utils.RespondWithError(c, statusForError(err), err.Error())
	}

	state := models.UploadStateVerified
	reason := ""
	if !verified {
		state = models.UploadStateVerificationFailed
		reason = "object missing or zero-length"
	}
	if err := h.Catalog.UpdateState(templateID, state, reason); err != nil {
		h.Logger.Errorf("Error updating catalog state for template %s: %v", templateID, err)
	}

	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"template_id": templateID,
		"verified":    verified,
		"state":       state,
	})
}

// GetDownloadURL returns either the public URL or, with ?presigned=true, a
// time-boxed signed URL. Choosing between the two is the access-policy
// layer's decision, passed through here.
func (h *ApplicationHandler) GetDownloadURL(c *fiber.Ctx) error {
	templateID := c.Params("templateId")

	if c.Query("presigned") == "true" {
		ttl, _ := strconv.Atoi(c.Query("ttl", "0"))
		url, err := h.Transfer.GeneratePresignedDownloadURL(templateID, ttl)
		if err != nil {
			h.Logger.Errorf("Error generating presigned download URL for template %s: %v", templateID, err)
			return utils.RespondWithError(c, statusForError(err), err.Error())
		}
		return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
			"template_id":  templateID,
			"download_url": url,
			"presigned":    true,
		})
	}

	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"template_id":  templateID,
		"download_url": h.Transfer.GetDownloadURL(templateID),
		"presigned":    false,
	})
}

// InitiateThumbnailUpload issues an upload URL for a template's thumbnail.
// The thumbnail is keyed separately from the document so the two can be
// replaced independently. The catalog's thumbnail path is recorded at
// issuance, before any byte is PUT: a client that abandons the upload leaves
// the path pointing at a key that was never written, and readers must treat
// the object store as the source of truth for whether a thumbnail exists.
func (h *ApplicationHandler) InitiateThumbnailUpload(c *fiber.Ctx) error {
	templateID := c.Params("templateId")

	payload := new(InitiateThumbnailRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Validation failed: %v", utils.FormatValidationErrors(err)))
	}

	ticket, err := h.Transfer.GenerateThumbnailUploadURL(templateID, payload.ContentType, payload.ByteSize)
	if err != nil {
		h.Logger.Errorf("Error generating thumbnail upload URL for template %s: %v", templateID, err)
		return utils.RespondWithError(c, statusForError(err), err.Error())
	}

	if err := h.Catalog.SetThumbnail(templateID, ticket.StoragePath); err != nil {
		h.Logger.Errorf("Error recording thumbnail path for template %s: %v", templateID, err)
	}

	return utils.RespondWithJSON(c, fiber.StatusCreated, ticket)
}

// DeleteTemplate removes a template's document, its thumbnails, and its
// catalog record. Deletes are idempotent: removing an already-deleted
// template succeeds.
func (h *ApplicationHandler) DeleteTemplate(c *fiber.Ctx) error {
	templateID := c.Params("templateId")

	if err := h.Transfer.DeleteObject(templateID); err != nil {
		h.Logger.Errorf("Error deleting document for template %s: %v", templateID, err)
		return utils.RespondWithError(c, statusForError(err), err.Error())
	}
	if err := h.Transfer.DeleteThumbnail(templateID); err != nil {
		h.Logger.Errorf("Error deleting thumbnails for template %s: %v", templateID, err)
		return utils.RespondWithError(c, statusForError(err), err.Error())
	}
	if err := h.Catalog.DeleteRecord(templateID); err != nil {
		h.Logger.Errorf("Error deleting catalog record for template %s: %v", templateID, err)
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not delete catalog record")
	}

	h.Logger.Infof("Deleted template %s", templateID)
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"template_id": templateID,
		"deleted":     true,
	})
}

// DeleteThumbnail removes only a template's thumbnails, leaving the document
// in place.
func (h *ApplicationHandler) DeleteThumbnail(c *fiber.Ctx) error {
	templateID := c.Params("templateId")

	if err := h.Transfer.DeleteThumbnail(templateID); err != nil {
		h.Logger.Errorf("Error deleting thumbnails for template %s: %v", templateID, err)
		return utils.RespondWithError(c, statusForError(err), err.Error())
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"template_id": templateID,
		"deleted":     true,
	})
}

// mustParseUploadID converts a ticket's upload id string back into a UUID.
// Tickets always carry a freshly generated UUID, so a parse failure only
// happens if a caller hand-built the ticket; fall back to a new id rather
// than failing the publish.
func mustParseUploadID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.New()
	}
	return id
}

// serializeCard applies the request's serialize options and republish
// overrides.
func (h *ApplicationHandler) serializeCard(payload *InitiatePublishRequest) (*models.TemplateDocument, error) {
	opts := serializer.DefaultOptions()
	if payload.EmbedImages != nil {
		opts.EmbedImages = *payload.EmbedImages
	}
	opts.ReferenceBaseURL = payload.ReferenceBaseURL

	doc, err := h.Serializer.Serialize(payload.Card, opts)
	if err != nil {
		return nil, err
	}
	if payload.RepublishID != "" {
		// Same logical template, new content revision.
		doc.Metadata.ID = payload.RepublishID
	}
	if payload.Version != "" {
		if !serializer.IsValidSemVer(payload.Version) {
			return nil, &serializer.SchemaError{Field: "metadata.version", Reason: fmt.Sprintf("'%s' is not a valid MAJOR.MINOR.PATCH version", payload.Version)}
		}
		doc.Metadata.Version = payload.Version
	}
	return doc, nil
}
