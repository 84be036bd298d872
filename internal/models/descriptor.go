package models

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDescriptor is the cause attached to descriptor validation failures.
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)

// PostDescriptor identifies a single post on a board.
//
// It is a comparable value type and is used directly as a map and cache key.
type PostDescriptor struct {
	Site     string `json:"site"`
	Board    string `json:"board"`
	ThreadNo int64  `json:"thread_no"`
	PostNo   int64  `json:"post_no"`
	SubNo    int64  `json:"sub_no,omitempty"`
}

// NewPostDescriptor builds a descriptor for post postNo in thread threadNo.
func NewPostDescriptor(site, board string, threadNo, postNo int64) PostDescriptor {
	return PostDescriptor{Site: site, Board: board, ThreadNo: threadNo, PostNo: postNo}
}

// ComparePosts orders descriptors by (thread, post, sub). Site and board
// break ties so the order stays total across boards.
func ComparePosts(a, b PostDescriptor) int {
	if c := cmp.Compare(a.ThreadNo, b.ThreadNo); c != 0 {
		return c
	}
	if c := cmp.Compare(a.PostNo, b.PostNo); c != 0 {
		return c
	}
	if c := cmp.Compare(a.SubNo, b.SubNo); c != 0 {
		return c
	}
	if c := strings.Compare(a.Site, b.Site); c != 0 {
		return c
	}
	return strings.Compare(a.Board, b.Board)
}

// Less reports whether p sorts before other.
func (p PostDescriptor) Less(other PostDescriptor) bool {
	return ComparePosts(p, other) < 0
}

// IsNewerThan reports whether p was posted after other in the same thread ordering.
func (p PostDescriptor) IsNewerThan(other PostDescriptor) bool {
	return ComparePosts(p, other) > 0
}

// IsOP reports whether the descriptor points at the thread's original post.
func (p PostDescriptor) IsOP() bool {
	return p.ThreadNo == p.PostNo && p.SubNo == 0
}

// IsZero reports whether the descriptor is unset.
func (p PostDescriptor) IsZero() bool {
	return p == PostDescriptor{}
}

// Chan returns the thread this post belongs to.
func (p PostDescriptor) Chan() ChanDescriptor {
	return ThreadDescriptor(p.Site, p.Board, p.ThreadNo)
}

func (p PostDescriptor) String() string {
	if p.SubNo != 0 {
		return fmt.Sprintf("%s/%s/%d/%d.%d", p.Site, p.Board, p.ThreadNo, p.PostNo, p.SubNo)
	}
	return fmt.Sprintf("%s/%s/%d/%d", p.Site, p.Board, p.ThreadNo, p.PostNo)
}

// Validate checks that every identity field is set.
func (p PostDescriptor) Validate() error {
	v := newValidation(p)
	v.RejectIf(strings.TrimSpace(p.Site) == "", "site", "is required")
	v.RejectIf(strings.TrimSpace(p.Board) == "", "board", "is required")
	v.RejectIf(p.ThreadNo <= 0, "thread_no", "must be positive, got %d", p.ThreadNo)
	v.RejectIf(p.PostNo <= 0, "post_no", "must be positive, got %d", p.PostNo)
	v.RejectIf(p.SubNo < 0, "sub_no", "must not be negative, got %d", p.SubNo)
	return v.Err()
}

// ChanKind distinguishes catalog and thread descriptors.
type ChanKind int

const (
	ChanCatalog ChanKind = iota + 1
	ChanThread
)

func (k ChanKind) String() string {
	switch k {
	case ChanCatalog:
		return "catalog"
	case ChanThread:
		return "thread"
	default:
		return "unknown"
	}
}

// ChanDescriptor is either a board catalog or a single thread.
// ThreadNo is zero for catalogs.
type ChanDescriptor struct {
	Kind     ChanKind `json:"kind"`
	Site     string   `json:"site"`
	Board    string   `json:"board"`
	ThreadNo int64    `json:"thread_no,omitempty"`
}

// CatalogDescriptor returns the catalog of a board.
func CatalogDescriptor(site, board string) ChanDescriptor {
	return ChanDescriptor{Kind: ChanCatalog, Site: site, Board: board}
}

// ThreadDescriptor returns a thread on a board.
func ThreadDescriptor(site, board string, threadNo int64) ChanDescriptor {
	return ChanDescriptor{Kind: ChanThread, Site: site, Board: board, ThreadNo: threadNo}
}

func (c ChanDescriptor) IsCatalog() bool { return c.Kind == ChanCatalog }

func (c ChanDescriptor) IsThread() bool { return c.Kind == ChanThread }

func (c ChanDescriptor) IsZero() bool { return c == ChanDescriptor{} }

// Catalog returns the catalog containing c. A catalog returns itself.
func (c ChanDescriptor) Catalog() ChanDescriptor {
	return CatalogDescriptor(c.Site, c.Board)
}

// Contains reports whether post is listed by c. A catalog lists only
// original posts of its board.
func (c ChanDescriptor) Contains(post PostDescriptor) bool {
	if c.Site != post.Site || c.Board != post.Board {
		return false
	}
	switch c.Kind {
	case ChanCatalog:
		return post.IsOP()
	case ChanThread:
		return post.ThreadNo == c.ThreadNo
	default:
		return false
	}
}

func (c ChanDescriptor) String() string {
	if c.Kind == ChanCatalog {
		return fmt.Sprintf("%s/%s/catalog", c.Site, c.Board)
	}
	return fmt.Sprintf("%s/%s/%d", c.Site, c.Board, c.ThreadNo)
}

// Validate checks the descriptor's shape.
func (c ChanDescriptor) Validate() error {
	v := newValidation(c)
	v.RejectIf(c.Kind != ChanCatalog && c.Kind != ChanThread, "kind", "is unknown (%d)", c.Kind)
	v.RejectIf(strings.TrimSpace(c.Site) == "", "site", "is required")
	v.RejectIf(strings.TrimSpace(c.Board) == "", "board", "is required")
	v.RejectIf(c.Kind == ChanThread && c.ThreadNo <= 0, "thread_no", "must be positive, got %d", c.ThreadNo)
	v.RejectIf(c.Kind == ChanCatalog && c.ThreadNo != 0, "thread_no", "must be zero for a catalog")
	return v.Err()
}
