package models

import (
	"encoding/json"
)

// CardImage is an image as the presentation layer holds it: either raw bytes
// (an image the user composed locally) or a URL it has not fetched yet.
type CardImage struct {
	Data []byte `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Card is the in-memory card the presentation layer edits and renders. The
// gateway serializes it into a TemplateDocument for distribution and rebuilds
// it on the way back; it never interprets Layout elements or Variables.
type Card struct {
	Title       string                     `json:"title"`
	Author      Author                     `json:"author"`
	Category    string                     `json:"category"`
	Tags        []string                   `json:"tags"`
	FrontImage  *CardImage                 `json:"front_image,omitempty"`
	BackImage   *CardImage                 `json:"back_image,omitempty"`
	Holographic HolographicConfig          `json:"holographic"`
	Elements    []json.RawMessage          `json:"elements"`
	Variables   map[string]json.RawMessage `json:"variables,omitempty"`
}
