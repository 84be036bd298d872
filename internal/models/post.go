package models

import (
	"slices"
	"time"
)

// Image is an attachment on a raw post.
type Image struct {
	Filename  string `json:"filename"`
	Extension string `json:"ext"`
	URL       string `json:"url"`
	ThumbURL  string `json:"thumb_url,omitempty"`
	Width     int    `json:"w,omitempty"`
	Height    int    `json:"h,omitempty"`
	Size      int64  `json:"fsize,omitempty"`
	Spoiler   bool   `json:"spoiler,omitempty"`
}

// PostFlags carries thread/post state markers.
type PostFlags struct {
	Sticky   bool `json:"sticky,omitempty"`
	Closed   bool `json:"closed,omitempty"`
	Archived bool `json:"archived,omitempty"`
	Deleted  bool `json:"deleted,omitempty"`
}

// RawPostRecord is a post as fetched from the board, before any rendering.
// Records are treated as immutable once constructed.
type RawPostRecord struct {
	Descriptor   PostDescriptor `json:"descriptor"`
	Name         string         `json:"name,omitempty"`
	Subject      string         `json:"subject,omitempty"`
	Comment      string         `json:"comment,omitempty"` // HTML markup
	Images       []Image        `json:"images,omitempty"`
	Flags        PostFlags      `json:"flags"`
	Replies      int            `json:"replies,omitempty"`     // OP only
	QuotedBy     int            `json:"quoted_by,omitempty"`   // posts quoting this one, from the reply index
	ImageReplies int            `json:"image_replies,omitempty"`
	PostedAt     time.Time      `json:"posted_at"`
	BumpedAt     time.Time      `json:"bumped_at,omitempty"`
	LastModified time.Time      `json:"last_modified,omitempty"`
}

// Clone returns a deep copy of r.
func (r RawPostRecord) Clone() RawPostRecord {
	out := r
	out.Images = slices.Clone(r.Images)
	return out
}

// Descriptors returns the descriptor of every record, in order.
func Descriptors(records []RawPostRecord) []PostDescriptor {
	out := make([]PostDescriptor, len(records))
	for i := range records {
		out[i] = records[i].Descriptor
	}
	return out
}

// IndexOf returns the position of desc in records or -1.
func IndexOf(records []RawPostRecord, desc PostDescriptor) int {
	for i := range records {
		if records[i].Descriptor == desc {
			return i
		}
	}
	return -1
}
