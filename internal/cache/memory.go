package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"holocard/template-gateway/models"
)

// MemoryStore is an in-memory Store with the same quota semantics as the
// SQLite backend. Used in tests and as a throwaway library for ephemeral
// deployments.
type MemoryStore struct {
	entries    []models.CachedTemplateEntry
	quotaBytes int64
}

// NewMemoryStore creates an empty in-memory store. quotaBytes <= 0 means
// unbounded.
func NewMemoryStore(quotaBytes int64) *MemoryStore {
	return &MemoryStore{quotaBytes: quotaBytes}
}

func (m *MemoryStore) Load(_ context.Context) ([]models.CachedTemplateEntry, error) {
	out := make([]models.CachedTemplateEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, entries []models.CachedTemplateEntry) error {
	var total int64
	for _, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal cache entry %s: %w", entry.TemplateID, err)
		}
		total += int64(len(payload))
	}
	if m.quotaBytes > 0 && total > m.quotaBytes {
		return ErrQuotaExceeded
	}
	m.entries = make([]models.CachedTemplateEntry, len(entries))
	copy(m.entries, entries)
	return nil
}

func (m *MemoryStore) Footprint(_ context.Context) (int64, error) {
	var total int64
	for _, entry := range m.entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			return 0, err
		}
		total += int64(len(payload))
	}
	return total, nil
}

func (m *MemoryStore) Close() error { return nil }
