package popup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/postview/internal/collection"
	"github.com/tOgg1/postview/internal/logging"
	"github.com/tOgg1/postview/internal/models"
)

// ErrNotReloadable is returned by Reload and Refresh. Popup views are
// projections of already loaded posts and cannot be reloaded on their own.
var ErrNotReloadable = errors.New("popup views cannot be reloaded")

// Parser resolves a small set of records synchronously.
type Parser interface {
	ParseAll(ctx context.Context, records []models.RawPostRecord, rctx models.RenderContext) ([]models.RenderReadyCell, error)
}

// RecordSource supplies raw posts.
type RecordSource interface {
	FetchMany(ctx context.Context, chanDescriptor models.ChanDescriptor, descs []models.PostDescriptor) ([]models.RawPostRecord, error)
}

// ReplyIndex lists the posts quoting a post.
type ReplyIndex interface {
	RepliesFrom(ctx context.Context, desc models.PostDescriptor) ([]models.PostDescriptor, error)
}

// ControllerConfig wires controllers to their collaborators.
type ControllerConfig struct {
	Parser        Parser
	Source        RecordSource
	Replies       ReplyIndex
	CacheCapacity int
	FontSize      int
}

func (c ControllerConfig) validate() error {
	if c.Parser == nil || c.Source == nil || c.Replies == nil {
		return errors.New("popup controller requires parser, source and reply index")
	}
	return nil
}

// Controller drives popup navigation for one viewer. Its methods may be
// called from any goroutine; navigation steps are serialized on an
// internal lock that is released while posts are fetched and parsed.
type Controller struct {
	key            ViewerKey
	chanDescriptor models.ChanDescriptor
	cfg            ControllerConfig
	state          *collection.State
	logger         zerolog.Logger

	mu    sync.Mutex
	stack NavigationStack
	cache *ViewModeCache
	clock uint64
}

func newController(key ViewerKey, chanDescriptor models.ChanDescriptor, cfg ControllerConfig) *Controller {
	logger := logging.WithViewer(logging.Component("popup"), string(key))
	return &Controller{
		key:            key,
		chanDescriptor: chanDescriptor,
		cfg:            cfg,
		state:          collection.New(),
		logger:         logging.WithChan(logger, chanDescriptor),
		cache:          NewViewModeCache(cfg.CacheCapacity),
	}
}

// Key returns the viewer key.
func (c *Controller) Key() ViewerKey { return c.key }

// Chan returns the thread or catalog the viewer is bound to.
func (c *Controller) Chan() models.ChanDescriptor { return c.chanDescriptor }

// State returns the collection the controller publishes into.
func (c *Controller) State() *collection.State { return c.state }

// OpenInitial discards any navigation history and shows mode.
func (c *Controller) OpenInitial(ctx context.Context, mode ViewMode) error {
	if err := checkMode(mode); err != nil {
		return err
	}
	c.mu.Lock()
	c.stack.Clear()
	c.stack.PushOrPromote(mode)
	c.mu.Unlock()

	c.logger.Debug().Str("mode", mode.String()).Msg("popup opened")
	return c.resolve(ctx, mode)
}

// Navigate pushes mode, or promotes it if already in the history, and shows it.
func (c *Controller) Navigate(ctx context.Context, mode ViewMode) error {
	if err := checkMode(mode); err != nil {
		return err
	}
	c.mu.Lock()
	promoted := c.stack.PushOrPromote(mode)
	depth := c.stack.Len()
	c.mu.Unlock()

	c.logger.Debug().Str("mode", mode.String()).Bool("promoted", promoted).Int("depth", depth).Msg("popup navigate")
	return c.resolve(ctx, mode)
}

// Back leaves the current view. It returns true and shows the previous
// view if there is one; otherwise the popup is closed and it returns false.
func (c *Controller) Back(ctx context.Context) (bool, error) {
	c.mu.Lock()
	mode, ok := c.stack.Pop()
	if !ok {
		c.state.Reset()
		c.mu.Unlock()
		c.logger.Debug().Msg("popup closed by back")
		return false, nil
	}
	c.mu.Unlock()

	return true, c.resolve(ctx, mode)
}

// Close empties the navigation history and closes the popup. Cached
// results are kept until the viewer is disposed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stack.Clear()
	c.state.Reset()
}

// Current returns the mode on display.
func (c *Controller) Current() (ViewMode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mode, ok := c.stack.Peek()
	if !ok {
		return nil, false
	}
	return cloneMode(mode), true
}

// Depth returns the navigation history depth.
func (c *Controller) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stack.Len()
}

// History returns the navigation history bottom to top.
func (c *Controller) History() []ViewMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stack.Modes()
}

// CacheStats reports cache occupancy.
func (c *Controller) CacheStats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Reload always fails with ErrNotReloadable.
func (c *Controller) Reload() error { return c.notReloadable("reload") }

// Refresh always fails with ErrNotReloadable.
func (c *Controller) Refresh() error { return c.notReloadable("refresh") }

func (c *Controller) notReloadable(op string) error {
	c.logger.Error().Str("op", op).Msg("popup view is not reloadable")
	return fmt.Errorf("%s: %w", op, ErrNotReloadable)
}

func (c *Controller) dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stack.Clear()
	c.cache.EvictAll()
	c.state.Reset()
}

// resolve shows mode from the cache, or fetches and parses its posts. The
// result is published only if mode is still on top once parsing finishes.
func (c *Controller) resolve(ctx context.Context, mode ViewMode) error {
	chanDescriptor := c.chanFor(mode)

	c.mu.Lock()
	c.clock++
	stamp := c.clock
	if cells, ok := c.lookupLocked(chanDescriptor, mode); ok {
		if c.isCurrentLocked(mode) {
			c.state.SetData(chanDescriptor, cells)
		}
		c.mu.Unlock()
		c.logger.Debug().Str("mode", mode.String()).Int("cells", len(cells)).Msg("popup cache hit")
		return nil
	}
	if c.isCurrentLocked(mode) {
		c.state.SetLoading(chanDescriptor)
	}
	c.mu.Unlock()

	cells, err := c.compute(ctx, chanDescriptor, mode)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Warn().Err(err).Str("mode", mode.String()).Msg("popup resolve failed")
		if c.isCurrentLocked(mode) {
			c.state.SetError(chanDescriptor, err)
		}
		return err
	}
	if !c.storeLocked(chanDescriptor, mode, stamp, cells) {
		// A newer resolve of the same mode got there first.
		c.logger.Debug().Str("mode", mode.String()).Uint64("stamp", stamp).Msg("popup result superseded")
		if newer, ok := c.lookupLocked(chanDescriptor, mode); ok {
			cells = newer
		}
	}
	if c.isCurrentLocked(mode) {
		c.state.SetData(chanDescriptor, cells)
	}
	c.logger.Debug().Str("mode", mode.String()).Int("cells", len(cells)).Uint64("stamp", stamp).Msg("popup resolved")
	return nil
}

// lookupLocked reads mode from the cache. RepliesFrom slots hold replies
// only; the target itself comes from its ReplyTo slot.
func (c *Controller) lookupLocked(chanDescriptor models.ChanDescriptor, mode ViewMode) ([]models.RenderReadyCell, bool) {
	m, ok := mode.(RepliesFrom)
	if !ok {
		return c.cache.Lookup(chanDescriptor, mode)
	}
	replies, ok := c.cache.Lookup(chanDescriptor, RepliesFrom{Target: m.Target})
	if !ok || !m.IncludeSelf {
		return replies, ok
	}
	self, ok := c.cache.Lookup(chanDescriptor, ReplyTo{Target: m.Target})
	if !ok {
		return nil, false
	}
	return append(self, replies...), true
}

// storeLocked caches cells for mode and reports whether every slot took
// the write.
func (c *Controller) storeLocked(chanDescriptor models.ChanDescriptor, mode ViewMode, stamp uint64, cells []models.RenderReadyCell) bool {
	m, ok := mode.(RepliesFrom)
	if !ok {
		return c.cache.Store(chanDescriptor, mode, stamp, cells)
	}
	replies := cells
	wrote := true
	if m.IncludeSelf {
		self := make([]models.RenderReadyCell, 0, 1)
		replies = make([]models.RenderReadyCell, 0, len(cells))
		for _, cell := range cells {
			if cell.Descriptor() == m.Target {
				self = append(self, cell)
			} else {
				replies = append(replies, cell)
			}
		}
		wrote = c.cache.Store(chanDescriptor, ReplyTo{Target: m.Target}, stamp, self)
	}
	return c.cache.Store(chanDescriptor, RepliesFrom{Target: m.Target}, stamp, replies) && wrote
}

func (c *Controller) compute(ctx context.Context, chanDescriptor models.ChanDescriptor, mode ViewMode) ([]models.RenderReadyCell, error) {
	descs, err := c.descriptorsFor(ctx, chanDescriptor, mode)
	if err != nil {
		return nil, err
	}
	if len(descs) == 0 {
		return []models.RenderReadyCell{}, nil
	}

	records, err := c.cfg.Source.FetchMany(ctx, chanDescriptor, descs)
	if err != nil {
		return nil, fmt.Errorf("fetch posts for %s: %w", mode, err)
	}

	rctx := models.RenderContext{IsCatalog: chanDescriptor.IsCatalog(), FontSize: c.cfg.FontSize}
	if target, ok := Target(mode); ok {
		rctx = rctx.WithHighlight(target)
	}
	cells, err := c.cfg.Parser.ParseAll(ctx, records, rctx)
	if err != nil {
		return nil, fmt.Errorf("parse posts for %s: %w", mode, err)
	}
	return cells, nil
}

func (c *Controller) descriptorsFor(ctx context.Context, chanDescriptor models.ChanDescriptor, mode ViewMode) ([]models.PostDescriptor, error) {
	switch m := mode.(type) {
	case ReplyTo:
		return []models.PostDescriptor{m.Target}, nil
	case RepliesFrom:
		replies, err := c.cfg.Replies.RepliesFrom(ctx, m.Target)
		if err != nil {
			return nil, fmt.Errorf("replies to %s: %w", m.Target, err)
		}
		replies = slices.DeleteFunc(slices.Clone(replies), func(d models.PostDescriptor) bool {
			return d == m.Target || !chanDescriptor.Contains(d)
		})
		slices.SortFunc(replies, models.ComparePosts)
		if m.IncludeSelf {
			replies = append([]models.PostDescriptor{m.Target}, replies...)
		}
		return replies, nil
	case PostList:
		return slices.Clone(m.Posts), nil
	default:
		return nil, fmt.Errorf("unknown view mode %T", mode)
	}
}

func (c *Controller) chanFor(mode ViewMode) models.ChanDescriptor {
	if m, ok := mode.(PostList); ok && !m.Chan.IsZero() {
		return m.Chan
	}
	return c.chanDescriptor
}

func (c *Controller) isCurrentLocked(mode ViewMode) bool {
	top, ok := c.stack.Peek()
	return ok && EqualModes(top, mode)
}
