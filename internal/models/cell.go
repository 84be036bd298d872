package models

import "slices"

// SpanKind classifies a fragment of a rendered comment.
type SpanKind string

const (
	SpanText      SpanKind = "text"
	SpanQuote     SpanKind = "quote"
	SpanLink      SpanKind = "link"
	SpanSpoiler   SpanKind = "spoiler"
	SpanGreentext SpanKind = "greentext"
	SpanLineBreak SpanKind = "br"
)

// Span is one styled fragment of a comment.
type Span struct {
	Kind   SpanKind        `json:"kind"`
	Text   string          `json:"text,omitempty"`
	Target *PostDescriptor `json:"target,omitempty"` // SpanQuote only
	Href   string          `json:"href,omitempty"`   // SpanLink only
}

// ResolvedImage is an attachment with display decisions applied.
type ResolvedImage struct {
	Image
	DisplayURL string `json:"display_url"`
	Hidden     bool   `json:"hidden,omitempty"`
}

// RenderReadyCell is a post after markup parsing and presentation
// resolution, ready to be displayed as is.
type RenderReadyCell struct {
	Record      RawPostRecord    `json:"record"`
	Comment     []Span           `json:"comment,omitempty"`
	Subject     string           `json:"subject,omitempty"`
	Images      []ResolvedImage  `json:"images,omitempty"`
	Highlighted bool             `json:"highlighted,omitempty"`
	Quotes      []PostDescriptor `json:"quotes,omitempty"`
	FontSize    int              `json:"font_size,omitempty"`
	ContentHash [32]byte         `json:"content_hash"`
}

// Descriptor returns the identity of the underlying post.
func (c RenderReadyCell) Descriptor() PostDescriptor {
	return c.Record.Descriptor
}

// SameContent reports whether c and other would render identically.
func (c RenderReadyCell) SameContent(other RenderReadyCell) bool {
	return c.Record.Descriptor == other.Record.Descriptor && c.ContentHash == other.ContentHash
}

// Clone returns a deep copy of c.
func (c RenderReadyCell) Clone() RenderReadyCell {
	out := c
	out.Record = c.Record.Clone()
	out.Comment = slices.Clone(c.Comment)
	out.Images = slices.Clone(c.Images)
	out.Quotes = slices.Clone(c.Quotes)
	return out
}

// CellDescriptors returns the descriptor of every cell, in order.
func CellDescriptors(cells []RenderReadyCell) []PostDescriptor {
	out := make([]PostDescriptor, len(cells))
	for i := range cells {
		out[i] = cells[i].Record.Descriptor
	}
	return out
}
