// Package config handles postview configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Catalog sort orders understood by the render sorter.
const (
	CatalogSortBump     = "bump"
	CatalogSortReplies  = "replies"
	CatalogSortCreation = "creation"
)

// Config is the root configuration structure for postview.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Parsing pipeline settings
	Parsing ParsingConfig `yaml:"parsing" mapstructure:"parsing"`

	// Popup navigation settings
	Popup PopupConfig `yaml:"popup" mapstructure:"popup"`

	// Render settings
	Render RenderConfig `yaml:"render" mapstructure:"render"`
}

// GlobalConfig contains global settings.
type GlobalConfig struct {
	// DataDir is where postview stores its data (default: ~/.local/share/postview).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/postview).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`

	// Site is the default site key used when a command does not name one.
	Site string `yaml:"site" mapstructure:"site"`
}

// DatabaseConfig contains post store settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// BusyTimeoutMs is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// ParsingConfig contains parsing pipeline settings.
type ParsingConfig struct {
	// InitialBatchSize is how many posts around the focus are parsed before first paint.
	InitialBatchSize int `yaml:"initial_batch_size" mapstructure:"initial_batch_size"`

	// LargeViewport doubles the initial batch size.
	LargeViewport bool `yaml:"large_viewport" mapstructure:"large_viewport"`

	// Workers is the chunk worker count. Zero means max(2, GOMAXPROCS).
	Workers int `yaml:"workers" mapstructure:"workers"`

	// StartedNotifyDelay is how long a remainder parse runs before "started" fires.
	StartedNotifyDelay time.Duration `yaml:"started_notify_delay" mapstructure:"started_notify_delay"`

	// ParseRepliesTo enables the backfill pass for quoted posts.
	ParseRepliesTo bool `yaml:"parse_replies_to" mapstructure:"parse_replies_to"`
}

// PopupConfig contains popup navigation settings.
type PopupConfig struct {
	// CacheCapacity bounds the reply-to and replies-from caches per viewer.
	CacheCapacity int `yaml:"cache_capacity" mapstructure:"cache_capacity"`
}

// RenderConfig contains cell rendering settings.
type RenderConfig struct {
	// FontSize is passed to the resolver as part of the render context.
	FontSize int `yaml:"font_size" mapstructure:"font_size"`

	// CatalogSort is the catalog order (bump, replies, creation).
	CatalogSort string `yaml:"catalog_sort" mapstructure:"catalog_sort"`

	// HideRepliesToHidden also hides posts quoting a hidden post.
	HideRepliesToHidden bool `yaml:"hide_replies_to_hidden" mapstructure:"hide_replies_to_hidden"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "postview"),
			ConfigDir: filepath.Join(homeDir, ".config", "postview"),
			Site:      "4chan",
		},
		Database: DatabaseConfig{
			Path:          "", // Will be set to DataDir/postview.db
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Parsing: ParsingConfig{
			InitialBatchSize:   16,
			StartedNotifyDelay: 125 * time.Millisecond,
			ParseRepliesTo:     true,
		},
		Popup: PopupConfig{
			CacheCapacity: 32,
		},
		Render: RenderConfig{
			FontSize:    14,
			CatalogSort: CatalogSortBump,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.BusyTimeoutMs < 0 {
		return fmt.Errorf("database.busy_timeout_ms must not be negative")
	}

	if c.Parsing.InitialBatchSize < 1 {
		return fmt.Errorf("parsing.initial_batch_size must be at least 1")
	}

	if c.Parsing.Workers < 0 {
		return fmt.Errorf("parsing.workers must not be negative")
	}

	if c.Parsing.StartedNotifyDelay < 0 {
		return fmt.Errorf("parsing.started_notify_delay must not be negative")
	}

	if c.Popup.CacheCapacity < 1 {
		return fmt.Errorf("popup.cache_capacity must be at least 1")
	}

	if c.Render.FontSize < 1 {
		return fmt.Errorf("render.font_size must be at least 1")
	}

	switch c.Render.CatalogSort {
	case CatalogSortBump, CatalogSortReplies, CatalogSortCreation:
		// ok
	default:
		return fmt.Errorf("render.catalog_sort must be one of bump, replies, creation")
	}

	return nil
}

// EffectiveBatchSize returns the initial batch size after the viewport adjustment.
func (p ParsingConfig) EffectiveBatchSize() int {
	if p.LargeViewport {
		return p.InitialBatchSize * 2
	}
	return p.InitialBatchSize
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "postview.db")
}
