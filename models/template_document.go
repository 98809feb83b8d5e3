package models

import (
	"encoding/json"
)

// ImageMode says whether an image's bytes travel inside the document or are
// represented by a URL resolved separately.
type ImageMode string

const (
	ImageModeEmbedded  ImageMode = "embedded"
	ImageModeReference ImageMode = "reference"
)

// ImageRef is the storage-facing representation of a card image.
// ContentHash is computed over the resolved bytes and is the integrity anchor
// used by the storage transfer service.
type ImageRef struct {
	Mode        ImageMode `json:"mode"`
	Data        string    `json:"data,omitempty"`        // base64 payload when Mode == embedded
	URL         string    `json:"url,omitempty"`         // resolved URL when Mode == reference
	FallbackURL string    `json:"fallbackUrl,omitempty"`
	ContentHash string    `json:"contentHash"`
}

// Author identifies the template's creator.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Rating is a snapshot of community rating at publish time.
type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// Remix carries the remix lineage flags for a template.
type Remix struct {
	IsRemix    bool `json:"isRemix"`
	AllowRemix bool `json:"allowRemix"`
}

// TemplateMetadata describes a template independent of its card payload.
// ID is stable across revisions of the same logical template; Version changes
// on every re-publish.
type TemplateMetadata struct {
	ID            string   `json:"id"`
	Version       string   `json:"version"`
	SchemaVersion string   `json:"schemaVersion"`
	Title         string   `json:"title"`
	Author        Author   `json:"author"`
	Category      string   `json:"category"`
	Tags          []string `json:"tags"`
	Rating        Rating   `json:"rating"`
	Remix         Remix    `json:"remix"`
}

// HolographicConfig holds the effect parameters a rendering engine needs to
// reproduce the card's holographic look. The gateway passes these through
// untouched.
type HolographicConfig struct {
	EffectType     string  `json:"effectType"`
	Intensity      float64 `json:"intensity"`
	AnimationSpeed float64 `json:"animationSpeed"`
}

// CardConfig is the visual configuration of a card inside a template.
// BackImage is optional; FrontImage is required by Validate.
type CardConfig struct {
	FrontImage  *ImageRef         `json:"frontImage,omitempty"`
	BackImage   *ImageRef         `json:"backImage,omitempty"`
	Holographic HolographicConfig `json:"holographic"`
}

// Layout carries positioned elements. The elements are opaque to this service:
// order is significant and the raw JSON is preserved byte-for-byte.
type Layout struct {
	Elements []json.RawMessage `json:"elements"`
}

// Compatibility declares the schema-version range a document is usable within.
type Compatibility struct {
	MinSchemaVersion string   `json:"minSchemaVersion"`
	MaxSchemaVersion string   `json:"maxSchemaVersion"`
	RequiredFeatures []string `json:"requiredFeatures"`
}

// TemplateDocument is the canonical, storage-portable description of a card.
// This is the shape that round-trips through the object store and the local
// cache.
type TemplateDocument struct {
	Metadata      TemplateMetadata           `json:"metadata"`
	CardConfig    CardConfig                 `json:"cardConfig"`
	Layout        Layout                     `json:"layout"`
	Variables     map[string]json.RawMessage `json:"variables,omitempty"`
	Compatibility Compatibility              `json:"compatibility"`
}
