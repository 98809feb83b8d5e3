package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"holocard/template-gateway/models"
)

// requiredBackupFields must be present on every record in a backup bundle
// before any of it is accepted.
var requiredBackupFields = []string{"template_id", "document", "source_metadata"}

// BackupFormatError rejects a bundle the importer cannot accept: not a list,
// undecodable, or a record missing a required field. Distinct from store
// failures so callers can tell a bad bundle from a broken library.
type BackupFormatError struct {
	Reason string
}

func (e *BackupFormatError) Error() string { return e.Reason }

// ExportAll serializes the entire library into a portable backup bundle: a
// single JSON document whose top level is the ordered list of cached entries.
func (m *Manager) ExportAll(ctx context.Context) ([]byte, error) {
	entries, err := m.ListDownloaded(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.CachedTemplateEntry{}
	}
	bundle, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize backup bundle: %w", err)
	}
	m.logger.Infof("Exported %d cached templates", len(entries))
	return bundle, nil
}

// ImportAll restores a backup bundle into the library. Validation is
// all-or-nothing: if any record is missing a required field the whole import
// is rejected and the library is left untouched. Accepted bundles merge by
// upsert, so templates downloaded after the backup was taken survive the
// restore.
func (m *Manager) ImportAll(ctx context.Context, bundle []byte) (int, error) {
	var rawRecords []map[string]json.RawMessage
	if err := json.Unmarshal(bundle, &rawRecords); err != nil {
		return 0, &BackupFormatError{Reason: fmt.Sprintf("backup bundle is not a list of cached templates: %v", err)}
	}

	for i, record := range rawRecords {
		for _, field := range requiredBackupFields {
			value, ok := record[field]
			if !ok || string(value) == "null" || string(value) == `""` {
				return 0, &BackupFormatError{Reason: fmt.Sprintf("backup record %d is missing required field '%s'; nothing was imported", i+1, field)}
			}
		}
	}

	var incoming []models.CachedTemplateEntry
	if err := json.Unmarshal(bundle, &incoming); err != nil {
		return 0, &BackupFormatError{Reason: fmt.Sprintf("failed to decode backup bundle: %v", err)}
	}

	entries, err := m.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	for _, entry := range incoming {
		entries = upsert(entries, entry)
	}

	if err := m.store.Save(ctx, entries); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return 0, &CacheQuotaExceededError{}
		}
		return 0, err
	}
	m.logger.Infof("Imported %d cached templates from backup", len(incoming))
	return len(incoming), nil
}
