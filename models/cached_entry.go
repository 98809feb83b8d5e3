package models

import (
	"time"
)

// SourceMetadata is the author/title snapshot stored next to a cached
// document so the library can be listed without re-parsing every document.
type SourceMetadata struct {
	Title      string `json:"title"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Category   string `json:"category"`
	Version    string `json:"version"`
}

// CachedTemplateEntry is one downloaded template in the client-local cache.
// The cache holds at most one entry per TemplateID (upsert semantics).
type CachedTemplateEntry struct {
	TemplateID     string           `json:"template_id"`
	Document       TemplateDocument `json:"document"`
	DownloadedAt   time.Time        `json:"downloaded_at"`
	SourceMetadata SourceMetadata   `json:"source_metadata"`
}
