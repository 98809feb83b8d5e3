package catalog

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	postgrest "github.com/supabase-community/postgrest-go"

	"holocard/template-gateway/models"
)

// Catalog records published templates and their upload state in the shared
// database. It is the audit trail behind the transfer service: every issued
// upload URL has a row here, moving through the upload states until a
// terminal verification outcome.
type Catalog struct {
	client *postgrest.Client
	table  string
	logger *logrus.Logger
}

// New builds a catalog over the project's PostgREST endpoint.
func New(supabaseURL, serviceKey, table string, logger *logrus.Logger) (*Catalog, error) {
	client := postgrest.NewClient(supabaseURL+"/rest/v1", "", map[string]string{
		"apikey":        serviceKey,
		"Authorization": fmt.Sprintf("Bearer %s", serviceKey),
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("failed to initialize catalog client: %w", client.ClientError)
	}
	return &Catalog{client: client, table: table, logger: logger}, nil
}

// CreateRecord inserts a new catalog row for a template whose upload URL has
// just been issued.
func (c *Catalog) CreateRecord(record *models.CatalogTemplate) error {
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.UploadState == "" {
		record.UploadState = models.UploadStateURLIssued
	}

	var results []models.CatalogTemplate
	_, err := c.client.From(c.table).Insert(record, false, "", "representation", "").ExecuteTo(&results)
	if err != nil {
		return fmt.Errorf("failed to insert catalog record for template %s: %w", record.TemplateID, err)
	}
	c.logger.Infof("Created catalog record for template %s (state=%s)", record.TemplateID, record.UploadState)
	return nil
}

// UpdateState transitions a template's upload state. errorMessage is only
// stored for failure states.
func (c *Catalog) UpdateState(templateID, state, errorMessage string) error {
	updateData := map[string]interface{}{
		"upload_state": state,
		"updated_at":   time.Now().UTC(),
	}
	if errorMessage != "" {
		updateData["error_message"] = errorMessage
	}
	if state == models.UploadStateVerified {
		updateData["verified_at"] = time.Now().UTC()
	}

	var results []models.CatalogTemplate
	_, err := c.client.From(c.table).Update(updateData, "", "").Eq("template_id", templateID).ExecuteTo(&results)
	if err != nil {
		return fmt.Errorf("failed to update catalog record %s: %w", templateID, err)
	}
	c.logger.Infof("Catalog record %s moved to state %s", templateID, state)
	return nil
}

// SetThumbnail records the storage path of a template's thumbnail.
func (c *Catalog) SetThumbnail(templateID, thumbnailPath string) error {
	updateData := map[string]interface{}{
		"thumbnail_path": thumbnailPath,
		"updated_at":     time.Now().UTC(),
	}
	var results []models.CatalogTemplate
	_, err := c.client.From(c.table).Update(updateData, "", "").Eq("template_id", templateID).ExecuteTo(&results)
	if err != nil {
		return fmt.Errorf("failed to set thumbnail for catalog record %s: %w", templateID, err)
	}
	return nil
}

// GetRecord fetches one catalog row, or nil if the template is unknown.
func (c *Catalog) GetRecord(templateID string) (*models.CatalogTemplate, error) {
	var results []models.CatalogTemplate
	_, err := c.client.From(c.table).Select("*", "", false).Eq("template_id", templateID).ExecuteTo(&results)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog record %s: %w", templateID, err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// DeleteRecord removes a template's catalog row. Deleting an unknown id is
// not an error.
func (c *Catalog) DeleteRecord(templateID string) error {
	var results []models.CatalogTemplate
	_, err := c.client.From(c.table).Delete("", "").Eq("template_id", templateID).ExecuteTo(&results)
	if err != nil {
		return fmt.Errorf("failed to delete catalog record %s: %w", templateID, err)
	}
	c.logger.Infof("Deleted catalog record for template %s", templateID)
	return nil
}
