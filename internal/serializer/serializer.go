package serializer

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"holocard/template-gateway/models"
)

// Schema versions supported by this engine build. Documents declare a
// compatibility range; the engine's SchemaVersion must fall inside it before
// deserialization proceeds.
const (
	SchemaVersion    = "1.2.0"
	MinSchemaVersion = "1.0.0"
)

// requiredFeatures is the fixed feature list stamped into every document this
// engine serializes.
var requiredFeatures = []string{"holographic-effects", "layout-elements", "variables"}

// Options control how Serialize resolves card images.
type Options struct {
	// EmbedImages keeps image bytes inside the document. When false,
	// ReferenceBaseURL must be set and images are written as reference URLs
	// under it.
	EmbedImages      bool
	ReferenceBaseURL string
}

// DefaultOptions embeds images, producing a fully self-contained document.
func DefaultOptions() Options {
	return Options{EmbedImages: true}
}

// Serializer converts in-memory cards to canonical template documents and
// back. It is a pure transformation layer: no network or disk I/O.
type Serializer struct{}

// New creates a Serializer.
func New() *Serializer {
	return &Serializer{}
}

// Serialize converts a card into a canonical TemplateDocument. The returned
// document always passes Validate. A fresh template id is generated from the
// card's category; re-publishing under an existing id is the caller's call,
// made by overwriting Metadata.ID afterwards.
func (s *Serializer) Serialize(card *models.Card, opts Options) (*models.TemplateDocument, error) {
	if card == nil {
		return nil, fmt.Errorf("card cannot be nil")
	}
	if !opts.EmbedImages && opts.ReferenceBaseURL == "" {
		return nil, fmt.Errorf("referenceBaseUrl is required when embedImages is false")
	}

	frontRef, err := resolveImage(card.FrontImage, "frontImage", opts)
	if err != nil {
		return nil, err
	}
	backRef, err := resolveImage(card.BackImage, "backImage", opts)
	if err != nil {
		return nil, err
	}

	doc := &models.TemplateDocument{
		Metadata: models.TemplateMetadata{
			ID:            generateTemplateID(card.Category),
			Version:       "1.0.0",
			SchemaVersion: SchemaVersion,
			Title:         card.Title,
			Author:        card.Author,
			Category:      card.Category,
			Tags:          card.Tags,
			Rating:        models.Rating{},
			Remix:         models.Remix{AllowRemix: true},
		},
		CardConfig: models.CardConfig{
			FrontImage:  frontRef,
			BackImage:   backRef,
			Holographic: card.Holographic,
		},
		Layout:    models.Layout{Elements: card.Elements},
		Variables: card.Variables,
		Compatibility: models.Compatibility{
			MinSchemaVersion: MinSchemaVersion,
			MaxSchemaVersion: SchemaVersion,
			RequiredFeatures: requiredFeatures,
		},
	}

	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("serialized document failed validation: %w", err)
	}
	return doc, nil
}

// Deserialize converts a validated TemplateDocument back into a card. Embedded
// image bytes are decoded; reference URLs pass through unresolved, fetching is
// the caller's responsibility.
func (s *Serializer) Deserialize(doc *models.TemplateDocument) (*models.Card, error) {
	if doc == nil {
		return nil, fmt.Errorf("document cannot be nil")
	}

	front, err := restoreImage(doc.CardConfig.FrontImage, "frontImage")
	if err != nil {
		return nil, err
	}
	back, err := restoreImage(doc.CardConfig.BackImage, "backImage")
	if err != nil {
		return nil, err
	}

	return &models.Card{
		Title:       doc.Metadata.Title,
		Author:      doc.Metadata.Author,
		Category:    doc.Metadata.Category,
		Tags:        doc.Metadata.Tags,
		FrontImage:  front,
		BackImage:   back,
		Holographic: doc.CardConfig.Holographic,
		Elements:    doc.Layout.Elements,
		Variables:   doc.Variables,
	}, nil
}

// Validate checks the document's required fields in a fixed order and returns
// a SchemaError naming the first one that fails. Checks run in this order:
// metadata.id, metadata.version, metadata.title, cardConfig.frontImage,
// cardConfig.holographic, version well-formedness, compatibility bounds.
func (s *Serializer) Validate(doc *models.TemplateDocument) error {
	if doc == nil {
		return &SchemaError{Field: "document", Reason: "is required"}
	}
	if doc.Metadata.ID == "" {
		return &SchemaError{Field: "metadata.id", Reason: "is required"}
	}
	if doc.Metadata.Version == "" {
		return &SchemaError{Field: "metadata.version", Reason: "is required"}
	}
	if doc.Metadata.Title == "" {
		return &SchemaError{Field: "metadata.title", Reason: "is required"}
	}
	if doc.CardConfig.FrontImage == nil {
		return &SchemaError{Field: "cardConfig.frontImage", Reason: "is required"}
	}
	if doc.CardConfig.Holographic.EffectType == "" {
		return &SchemaError{Field: "cardConfig.holographic", Reason: "effectType is required"}
	}
	if !IsValidSemVer(doc.Metadata.Version) {
		return &SchemaError{Field: "metadata.version", Reason: fmt.Sprintf("'%s' is not a valid MAJOR.MINOR.PATCH version", doc.Metadata.Version)}
	}
	if err := validateSemVerField("compatibility.minSchemaVersion", doc.Compatibility.MinSchemaVersion); err != nil {
		return err
	}
	if err := validateSemVerField("compatibility.maxSchemaVersion", doc.Compatibility.MaxSchemaVersion); err != nil {
		return err
	}
	if CompareSemVer(doc.Compatibility.MinSchemaVersion, doc.Compatibility.MaxSchemaVersion) > 0 {
		return &SchemaError{Field: "compatibility", Reason: "minSchemaVersion exceeds maxSchemaVersion"}
	}
	return nil
}

// CompatibleWithEngine reports whether this engine's schema version falls
// inside the document's declared compatibility range. Documents outside the
// range are rejected before deserialization.
func (s *Serializer) CompatibleWithEngine(doc *models.TemplateDocument) bool {
	min := doc.Compatibility.MinSchemaVersion
	max := doc.Compatibility.MaxSchemaVersion
	if !IsValidSemVer(min) || !IsValidSemVer(max) {
		return false
	}
	return CompareSemVer(min, SchemaVersion) <= 0 && CompareSemVer(SchemaVersion, max) <= 0
}

// CalculateHash returns a deterministic sha256 digest over the document's
// canonical byte form. Struct fields marshal in declaration order and Go
// sorts map keys during JSON encoding, so two structurally identical
// documents always hash identically regardless of construction order.
func (s *Serializer) CalculateHash(doc *models.TemplateDocument) (string, error) {
	canonical, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshalling document for hashing: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes digests raw content, used for per-image content hashes and for
// fingerprinting document bytes handed to the storage layer.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// resolveImage turns a card image into an ImageRef per the serialize options.
// The content hash always covers the resolved byte content: the raw bytes for
// images the card holds locally, or the reference URL's bytes identity when
// only a URL is known (the serializer performs no fetches).
func resolveImage(img *models.CardImage, slot string, opts Options) (*models.ImageRef, error) {
	if img == nil {
		return nil, nil
	}

	if len(img.Data) > 0 {
		hash := HashBytes(img.Data)
		if opts.EmbedImages {
			return &models.ImageRef{
				Mode:        models.ImageModeEmbedded,
				Data:        base64.StdEncoding.EncodeToString(img.Data),
				ContentHash: hash,
			}, nil
		}
		// Reference mode: bytes live under the base URL, addressed by content
		// hash so a re-publish of identical bytes reuses the same object.
		return &models.ImageRef{
			Mode:        models.ImageModeReference,
			URL:         fmt.Sprintf("%s/%s", strings.TrimSuffix(opts.ReferenceBaseURL, "/"), hash),
			FallbackURL: img.URL,
			ContentHash: hash,
		}, nil
	}

	if img.URL == "" {
		return nil, &MalformedImageRefError{Slot: slot, Reason: "image has neither data nor a URL"}
	}
	// URL-only images stay references; the hash covers the URL itself since
	// the serializer never fetches.
	return &models.ImageRef{
		Mode:        models.ImageModeReference,
		URL:         img.URL,
		ContentHash: HashBytes([]byte(img.URL)),
	}, nil
}

// restoreImage is the inverse of resolveImage.
func restoreImage(ref *models.ImageRef, slot string) (*models.CardImage, error) {
	if ref == nil {
		return nil, nil
	}
	switch ref.Mode {
	case models.ImageModeEmbedded:
		if ref.Data == "" {
			return nil, &MalformedImageRefError{Slot: slot, Reason: "embedded image has no data"}
		}
		data, err := base64.StdEncoding.DecodeString(ref.Data)
		if err != nil {
			return nil, &MalformedImageRefError{Slot: slot, Reason: fmt.Sprintf("embedded data is not valid base64: %v", err)}
		}
		return &models.CardImage{Data: data}, nil
	case models.ImageModeReference:
		if ref.URL == "" {
			return nil, &MalformedImageRefError{Slot: slot, Reason: "reference image has no URL"}
		}
		return &models.CardImage{URL: ref.URL}, nil
	default:
		return nil, &MalformedImageRefError{Slot: slot, Reason: fmt.Sprintf("unknown image mode '%s'", ref.Mode)}
	}
}

// generateTemplateID derives a fresh id from the card's category plus a
// unique suffix. Ids are never reused across serializations.
func generateTemplateID(category string) string {
	slug := strings.ToLower(strings.TrimSpace(category))
	slug = strings.ReplaceAll(slug, " ", "-")
	if slug == "" {
		slug = "general"
	}
	return fmt.Sprintf("tpl-%s-%s", slug, uuid.NewString())
}
