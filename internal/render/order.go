package render

import (
	"slices"
	"sync"
	"time"

	"github.com/tOgg1/postview/internal/models"
)

// CatalogOrder selects how catalog threads are sorted.
type CatalogOrder string

const (
	OrderBump     CatalogOrder = "bump"
	OrderReplies  CatalogOrder = "replies"
	OrderCreation CatalogOrder = "creation"
)

// Sorter orders cells for display.
type Sorter struct {
	Catalog CatalogOrder
}

// SortThread returns cells in post order.
func (s Sorter) SortThread(cells []models.RenderReadyCell) []models.RenderReadyCell {
	out := slices.Clone(cells)
	slices.SortStableFunc(out, func(a, b models.RenderReadyCell) int {
		return models.ComparePosts(a.Record.Descriptor, b.Record.Descriptor)
	})
	return out
}

// SortCatalog returns catalog cells with stickies first, then by the
// configured order, newest first.
func (s Sorter) SortCatalog(cells []models.RenderReadyCell) []models.RenderReadyCell {
	out := slices.Clone(cells)
	slices.SortStableFunc(out, func(a, b models.RenderReadyCell) int {
		ra, rb := a.Record, b.Record
		if ra.Flags.Sticky != rb.Flags.Sticky {
			if ra.Flags.Sticky {
				return -1
			}
			return 1
		}
		switch s.Catalog {
		case OrderReplies:
			if ra.Replies != rb.Replies {
				return rb.Replies - ra.Replies
			}
		case OrderCreation:
			if !ra.PostedAt.Equal(rb.PostedAt) {
				return rb.PostedAt.Compare(ra.PostedAt)
			}
		default:
			ba, bb := bumpTime(ra), bumpTime(rb)
			if !ba.Equal(bb) {
				return bb.Compare(ba)
			}
		}
		return models.ComparePosts(rb.Descriptor, ra.Descriptor)
	})
	return out
}

func bumpTime(r models.RawPostRecord) time.Time {
	if r.BumpedAt.IsZero() {
		return r.PostedAt
	}
	return r.BumpedAt
}

// HiddenFilter drops hidden posts from displayed cell lists. Safe for
// concurrent use; Filter is called from pipeline workers.
type HiddenFilter struct {
	mu      sync.RWMutex
	hidden  map[models.PostDescriptor]struct{}
	cascade bool
}

// NewHiddenFilter creates a filter. With cascade set, posts quoting a
// hidden post are hidden too.
func NewHiddenFilter(cascade bool) *HiddenFilter {
	return &HiddenFilter{hidden: make(map[models.PostDescriptor]struct{}), cascade: cascade}
}

// Hide marks posts as hidden.
func (f *HiddenFilter) Hide(posts ...models.PostDescriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range posts {
		f.hidden[p] = struct{}{}
	}
}

// Unhide removes posts from the hidden set.
func (f *HiddenFilter) Unhide(posts ...models.PostDescriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range posts {
		delete(f.hidden, p)
	}
}

// IsHidden reports whether post is explicitly hidden.
func (f *HiddenFilter) IsHidden(post models.PostDescriptor) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.hidden[post]
	return ok
}

// Filter returns cells without hidden posts. Catalog filtering only applies
// to explicitly hidden threads.
func (f *HiddenFilter) Filter(chanDescriptor models.ChanDescriptor, cells []models.RenderReadyCell) []models.RenderReadyCell {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.hidden) == 0 {
		return cells
	}

	cascade := f.cascade && chanDescriptor.IsThread()
	// Replies are visited after the posts they quote in thread order, so a
	// single pass picks up chains.
	dropped := make(map[models.PostDescriptor]struct{})
	out := make([]models.RenderReadyCell, 0, len(cells))
	for _, cell := range cells {
		desc := cell.Record.Descriptor
		if _, ok := f.hidden[desc]; ok {
			dropped[desc] = struct{}{}
			continue
		}
		if cascade && quotesAny(cell.Quotes, f.hidden, dropped) {
			dropped[desc] = struct{}{}
			continue
		}
		out = append(out, cell)
	}
	return out
}

func quotesAny(quotes []models.PostDescriptor, sets ...map[models.PostDescriptor]struct{}) bool {
	for _, q := range quotes {
		for _, set := range sets {
			if _, ok := set[q]; ok {
				return true
			}
		}
	}
	return false
}
