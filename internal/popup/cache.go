package popup

import (
	"github.com/tOgg1/postview/internal/models"
)

type listEntry struct {
	chanDescriptor models.ChanDescriptor
	stamp          uint64
	cells          []models.RenderReadyCell
}

type cellEntry struct {
	chanDescriptor models.ChanDescriptor
	stamp          uint64
	cell           models.RenderReadyCell
}

// ViewModeCache remembers parsed results of visited view modes for one
// viewer. ReplyTo and RepliesFrom results are kept in two bounded LRUs
// keyed by target post; PostList cells are kept individually without
// bound. Entries are scoped to the ChanDescriptor they were stored under.
// Both IncludeSelf variants of a RepliesFrom share the slot of its target.
//
// ViewModeCache is not safe for concurrent use; its owning Controller
// serializes access.
type ViewModeCache struct {
	replyTo     *lru[models.PostDescriptor, listEntry]
	repliesFrom *lru[models.PostDescriptor, listEntry]
	postList    map[models.PostDescriptor]cellEntry
}

// NewViewModeCache creates a cache whose LRUs hold capacity targets each.
func NewViewModeCache(capacity int) *ViewModeCache {
	return &ViewModeCache{
		replyTo:     newLRU[models.PostDescriptor, listEntry](capacity),
		repliesFrom: newLRU[models.PostDescriptor, listEntry](capacity),
		postList:    make(map[models.PostDescriptor]cellEntry),
	}
}

func (c *ViewModeCache) lruFor(mode ViewMode) *lru[models.PostDescriptor, listEntry] {
	switch mode.(type) {
	case ReplyTo:
		return c.replyTo
	case RepliesFrom:
		return c.repliesFrom
	default:
		return nil
	}
}

// Lookup returns the cells last stored for mode under chanDescriptor. A
// PostList hits only when every listed post is cached.
func (c *ViewModeCache) Lookup(chanDescriptor models.ChanDescriptor, mode ViewMode) ([]models.RenderReadyCell, bool) {
	if m, ok := mode.(PostList); ok {
		out := make([]models.RenderReadyCell, 0, len(m.Posts))
		for _, desc := range m.Posts {
			entry, ok := c.postList[desc]
			if !ok || entry.chanDescriptor != chanDescriptor {
				return nil, false
			}
			out = append(out, entry.cell.Clone())
		}
		return out, true
	}

	cache := c.lruFor(mode)
	target, ok := Target(mode)
	if cache == nil || !ok {
		return nil, false
	}
	entry, ok := cache.peek(target)
	if !ok || entry.chanDescriptor != chanDescriptor {
		return nil, false
	}
	cache.get(target)
	return cloneCells(entry.cells), true
}

// Store records cells for mode. A store whose stamp is older than the
// entry already held is dropped. It reports whether anything was written.
func (c *ViewModeCache) Store(chanDescriptor models.ChanDescriptor, mode ViewMode, stamp uint64, cells []models.RenderReadyCell) bool {
	if _, ok := mode.(PostList); ok {
		wrote := false
		for _, cell := range cells {
			desc := cell.Descriptor()
			if prev, ok := c.postList[desc]; ok && prev.stamp > stamp {
				continue
			}
			c.postList[desc] = cellEntry{chanDescriptor: chanDescriptor, stamp: stamp, cell: cell.Clone()}
			wrote = true
		}
		return wrote
	}

	cache := c.lruFor(mode)
	target, ok := Target(mode)
	if cache == nil || !ok {
		return false
	}
	if prev, ok := cache.peek(target); ok && prev.stamp > stamp {
		return false
	}
	cache.put(target, listEntry{chanDescriptor: chanDescriptor, stamp: stamp, cells: cloneCells(cells)})
	return true
}

// EvictAll drops every cached result.
func (c *ViewModeCache) EvictAll() {
	c.replyTo.clear()
	c.repliesFrom.clear()
	clear(c.postList)
}

// CacheStats reports cache occupancy.
type CacheStats struct {
	ReplyTo     int
	RepliesFrom int
	PostList    int
}

// Len reports how many entries each structure holds.
func (c *ViewModeCache) Len() CacheStats {
	return CacheStats{
		ReplyTo:     c.replyTo.len(),
		RepliesFrom: c.repliesFrom.len(),
		PostList:    len(c.postList),
	}
}

func cloneCells(cells []models.RenderReadyCell) []models.RenderReadyCell {
	if cells == nil {
		return nil
	}
	out := make([]models.RenderReadyCell, len(cells))
	for i, cell := range cells {
		out[i] = cell.Clone()
	}
	return out
}
