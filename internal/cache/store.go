package cache

import (
	"context"
	"errors"
	"fmt"

	"holocard/template-gateway/models"
)

// ErrQuotaExceeded is returned by a Store when writing the set would exceed
// the configured quota. The manager reacts by evicting and retrying
// once.
var ErrQuotaExceeded = errors.New("cache store quota exceeded")

// CacheQuotaExceededError is surfaced to callers when a persist still does
// not fit after one eviction pass.
type CacheQuotaExceededError struct {
	Evicted int
}

func (e *CacheQuotaExceededError) Error() string {
	return fmt.Sprintf("local cache quota exceeded even after evicting %d entries", e.Evicted)
}

// Store is the durable backend for the local template library. The manager
// always reads the full set, mutates it in memory, and writes the full set
// back; Save must be atomic (all entries or none) and must return
// ErrQuotaExceeded when the set does not fit the quota.
//
// A Store is not required to be safe for concurrent writers; callers
// serialize mutations externally (see writequeue).
type Store interface {
	Load(ctx context.Context) ([]models.CachedTemplateEntry, error)
	Save(ctx context.Context, entries []models.CachedTemplateEntry) error
	// Footprint reports the persisted size in bytes.
	Footprint(ctx context.Context) (int64, error)
	Close() error
}
