package popup

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tOgg1/postview/internal/models"
)

// ViewerKey identifies one logical viewer (a screen showing a thread or
// catalog).
type ViewerKey string

// NewViewerKey returns a fresh random key.
func NewViewerKey() ViewerKey {
	return ViewerKey(uuid.NewString())
}

// Registry owns the controllers of all live viewers.
type Registry struct {
	cfg ControllerConfig

	mu      sync.Mutex
	viewers map[ViewerKey]*Controller
}

// NewRegistry creates a registry whose controllers share cfg.
func NewRegistry(cfg ControllerConfig) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Registry{cfg: cfg, viewers: make(map[ViewerKey]*Controller)}, nil
}

// GetOrCreate returns the controller for key, creating it bound to
// chanDescriptor on first use. An existing controller keeps its original
// chan.
func (r *Registry) GetOrCreate(key ViewerKey, chanDescriptor models.ChanDescriptor) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.viewers[key]; ok {
		return c
	}
	c := newController(key, chanDescriptor, r.cfg)
	r.viewers[key] = c
	return c
}

// Get returns the controller for key if it exists.
func (r *Registry) Get(key ViewerKey) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.viewers[key]
	return c, ok
}

// Dispose tears down the viewer: its history is cleared and its caches
// evicted. It reports whether the viewer existed.
func (r *Registry) Dispose(key ViewerKey) bool {
	r.mu.Lock()
	c, ok := r.viewers[key]
	delete(r.viewers, key)
	r.mu.Unlock()

	if ok {
		c.dispose()
		c.logger.Debug().Msg("viewer disposed")
	}
	return ok
}

// DisposeAll tears down every viewer.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	viewers := r.viewers
	r.viewers = make(map[ViewerKey]*Controller)
	r.mu.Unlock()

	for _, c := range viewers {
		c.dispose()
	}
}

// Len returns the number of live viewers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.viewers)
}
