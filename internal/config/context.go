package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tOgg1/postview/internal/models"
)

// Context is the CLI's current selection (board and optionally thread).
type Context struct {
	// Site is the selected site key.
	Site string `yaml:"site,omitempty"`
	// Board is the selected board code.
	Board string `yaml:"board,omitempty"`
	// ThreadNo is the selected thread, zero for the board catalog.
	ThreadNo int64 `yaml:"thread,omitempty"`
	// UpdatedAt is when the context was last modified.
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty returns true if no board is selected.
func (c *Context) IsEmpty() bool {
	return c.Board == ""
}

// HasThread returns true if a thread is selected.
func (c *Context) HasThread() bool {
	return c.Board != "" && c.ThreadNo > 0
}

// Clear removes all context.
func (c *Context) Clear() {
	c.Site = ""
	c.Board = ""
	c.ThreadNo = 0
	c.UpdatedAt = time.Now()
}

// SetBoard selects a board catalog. The thread selection is dropped.
func (c *Context) SetBoard(site, board string) {
	c.Site = site
	c.Board = board
	c.ThreadNo = 0
	c.UpdatedAt = time.Now()
}

// SetThread selects a thread on the current board.
func (c *Context) SetThread(threadNo int64) {
	c.ThreadNo = threadNo
	c.UpdatedAt = time.Now()
}

// Chan returns the selected catalog or thread.
func (c *Context) Chan() (models.ChanDescriptor, bool) {
	if c.IsEmpty() {
		return models.ChanDescriptor{}, false
	}
	if c.HasThread() {
		return models.ThreadDescriptor(c.Site, c.Board, c.ThreadNo), true
	}
	return models.CatalogDescriptor(c.Site, c.Board), true
}

// String returns a human-readable representation of the context.
func (c *Context) String() string {
	if c.IsEmpty() {
		return "(none)"
	}
	if c.HasThread() {
		return fmt.Sprintf("/%s/%d", c.Board, c.ThreadNo)
	}
	return fmt.Sprintf("/%s/", c.Board)
}

// ContextStore manages loading and saving context.
type ContextStore struct {
	path string
	mu   sync.RWMutex
}

// NewContextStore creates a new context store.
// If path is empty, uses the default path (~/.config/postview/context.yaml).
func NewContextStore(path string) *ContextStore {
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, ".config", "postview", "context.yaml")
	}
	return &ContextStore{path: path}
}

// Path returns the context file path.
func (s *ContextStore) Path() string {
	return s.path
}

// Load reads the context from disk.
// Returns an empty context if the file doesn't exist.
func (s *ContextStore) Load() (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := &Context{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ctx, nil
		}
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}

	if err := yaml.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("failed to parse context file: %w", err)
	}

	return ctx, nil
}

// Save writes the context to disk.
func (s *ContextStore) Save(ctx *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}

	data, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}

	return nil
}

// Clear removes the context file.
func (s *ContextStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove context file: %w", err)
	}
	return nil
}
