package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"holocard/template-gateway/internal/serializer"
	"holocard/template-gateway/models"
)

// evictBatchSize is how many oldest-by-downloadedAt entries a quota-failed
// persist evicts before its single retry.
const evictBatchSize = 3

// DocumentFetcher pulls template document bytes from the remote store. The
// storage transfer service satisfies it.
type DocumentFetcher interface {
	FetchDocument(templateID string) ([]byte, error)
}

// Footprint reports the persisted library size for quota display.
type Footprint struct {
	Bytes         int64  `json:"bytes"`
	HumanReadable string `json:"human_readable"`
}

// Manager owns the client-local template library: it downloads documents into
// bounded durable storage, evicts by download age under quota pressure, and
// supports whole-library backup and restore.
//
// The read-modify-write cycle over the store has no internal locking.
// Mutating calls (Persist, Remove, ImportAll, DownloadTemplate) must be
// serialized by the caller, e.g. through a writequeue.Queue.
type Manager struct {
	store   Store
	fetcher DocumentFetcher
	ser     *serializer.Serializer
	logger  *logrus.Logger
}

// NewManager wires a cache manager over a store and a document fetcher.
func NewManager(store Store, fetcher DocumentFetcher, ser *serializer.Serializer, logger *logrus.Logger) *Manager {
	return &Manager{
		store:   store,
		fetcher: fetcher,
		ser:     ser,
		logger:  logger,
	}
}

// DownloadTemplate fetches a template document from the remote store,
// validates it, and upserts it into the local library. The document is not
// deserialized into a card here; that stays with the presentation layer.
func (m *Manager) DownloadTemplate(ctx context.Context, templateID string) (*models.CachedTemplateEntry, error) {
	data, err := m.fetcher.FetchDocument(templateID)
	if err != nil {
		return nil, err
	}

	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	if err := m.ser.Validate(doc); err != nil {
		return nil, fmt.Errorf("downloaded document failed validation: %w", err)
	}
	if !m.ser.CompatibleWithEngine(doc) {
		return nil, &serializer.SchemaError{
			Field: "compatibility",
			Reason: fmt.Sprintf("engine schema version %s is outside the document's range [%s, %s]",
				serializer.SchemaVersion, doc.Compatibility.MinSchemaVersion, doc.Compatibility.MaxSchemaVersion),
		}
	}

	entry := &models.CachedTemplateEntry{
		TemplateID:   templateID,
		Document:     *doc,
		DownloadedAt: time.Now().UTC(),
		SourceMetadata: models.SourceMetadata{
			Title:      doc.Metadata.Title,
			AuthorID:   doc.Metadata.Author.ID,
			AuthorName: doc.Metadata.Author.Name,
			Category:   doc.Metadata.Category,
			Version:    doc.Metadata.Version,
		},
	}

	if err := m.Persist(ctx, entry); err != nil {
		return nil, err
	}
	m.logger.Infof("Downloaded template %s into local library", templateID)
	return entry, nil
}

// Persist upserts entry into the library. On a quota-failed write it evicts
// the oldest entries by download time (a fixed batch) and retries exactly
// once; a second failure surfaces CacheQuotaExceededError. The store's
// transactional Save means a failed persist never leaves a half-written set.
func (m *Manager) Persist(ctx context.Context, entry *models.CachedTemplateEntry) error {
	if entry == nil || entry.TemplateID == "" {
		return fmt.Errorf("cache entry must have a template id")
	}

	entries, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	entries = upsert(entries, *entry)

	if err := m.store.Save(ctx, entries); err == nil {
		return nil
	} else if !errors.Is(err, ErrQuotaExceeded) {
		return err
	}

	// Quota wall: evict the oldest downloads (never the entry being
	// persisted) and retry once.
	survivors, evicted := evictOldest(entries, entry.TemplateID, evictBatchSize)
	m.logger.Warnf("Cache quota hit persisting %s; evicted %d oldest entries", entry.TemplateID, evicted)
	if err := m.store.Save(ctx, survivors); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return &CacheQuotaExceededError{Evicted: evicted}
		}
		return err
	}
	return nil
}

// ListDownloaded returns every entry in the library, oldest download first.
func (m *Manager) ListDownloaded(ctx context.Context) ([]models.CachedTemplateEntry, error) {
	entries, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DownloadedAt.Before(entries[j].DownloadedAt)
	})
	return entries, nil
}

// Get returns the cached entry for templateID, or nil if absent.
func (m *Manager) Get(ctx context.Context, templateID string) (*models.CachedTemplateEntry, error) {
	entries, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].TemplateID == templateID {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// IsDownloaded reports whether templateID is present in the library.
func (m *Manager) IsDownloaded(ctx context.Context, templateID string) (bool, error) {
	entry, err := m.Get(ctx, templateID)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// Remove deletes one entry, reporting whether anything was removed.
func (m *Manager) Remove(ctx context.Context, templateID string) (bool, error) {
	entries, err := m.store.Load(ctx)
	if err != nil {
		return false, err
	}
	kept := entries[:0]
	removed := false
	for _, e := range entries {
		if e.TemplateID == templateID {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return false, nil
	}
	if err := m.store.Save(ctx, kept); err != nil {
		return false, err
	}
	return true, nil
}

// StorageFootprint reports the persisted library size. Informational only.
func (m *Manager) StorageFootprint(ctx context.Context) (*Footprint, error) {
	bytes, err := m.store.Footprint(ctx)
	if err != nil {
		return nil, err
	}
	return &Footprint{
		Bytes:         bytes,
		HumanReadable: humanize.Bytes(uint64(bytes)),
	}, nil
}

// DecodeDocument decodes document bytes, failing closed: unknown fields are
// rejected rather than silently dropped.
func DecodeDocument(data []byte) (*models.TemplateDocument, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc models.TemplateDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode template document: %w", err)
	}
	return &doc, nil
}

// upsert replaces any entry sharing the new entry's template id, keeping at
// most one entry per id.
func upsert(entries []models.CachedTemplateEntry, entry models.CachedTemplateEntry) []models.CachedTemplateEntry {
	kept := entries[:0]
	for _, e := range entries {
		if e.TemplateID != entry.TemplateID {
			kept = append(kept, e)
		}
	}
	return append(kept, entry)
}

// evictOldest drops up to batch entries ordered by DownloadedAt, skipping
// keepID, and reports how many were evicted.
func evictOldest(entries []models.CachedTemplateEntry, keepID string, batch int) ([]models.CachedTemplateEntry, int) {
	sorted := make([]models.CachedTemplateEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].DownloadedAt.Before(sorted[j].DownloadedAt)
	})

	evictable := make(map[string]bool, batch)
	for _, e := range sorted {
		if len(evictable) == batch {
			break
		}
		if e.TemplateID == keepID {
			continue
		}
		evictable[e.TemplateID] = true
	}

	survivors := make([]models.CachedTemplateEntry, 0, len(entries))
	for _, e := range entries {
		if !evictable[e.TemplateID] {
			survivors = append(survivors, e)
		}
	}
	return survivors, len(evictable)
}
