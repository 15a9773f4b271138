// Package conf holds the testflow configuration: typed structs loaded from
// TOML via Viper, with defaults, validation, and an fsnotify-based watcher
// for hot reload.
package conf

// Config represents the core testflow configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Artifact ArtifactConfig `mapstructure:"artifact"`
	History  HistoryConfig  `mapstructure:"history"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the testflow HTTP server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	JSONLogs       bool     `mapstructure:"json_logs"`
}

// QueueConfig configures the work queue that carries execution instructions
// to the worker pool
type QueueConfig struct {
	// MaxInFlight bounds how many messages may be dequeued but unacked at
	// once. 0 = unbounded.
	MaxInFlight int `mapstructure:"max_in_flight"`

	// RedeliverAfterSeconds is how long a dequeued message may stay unacked
	// before it becomes eligible for redelivery (at-least-once).
	RedeliverAfterSeconds int `mapstructure:"redeliver_after_seconds"`
}

// ArtifactConfig configures screenshot artifact resolution
type ArtifactConfig struct {
	// BaseURL is prepended to artifact keys to form retrievable URLs
	BaseURL string `mapstructure:"base_url"`
}

// HistoryConfig configures the history query service
type HistoryConfig struct {
	// DefaultLimit is the page size used when a query supplies none
	DefaultLimit int `mapstructure:"default_limit"`
	// MaxLimit caps the page size a caller may request
	MaxLimit int `mapstructure:"max_limit"`
}

// DefaultServerPort is used when server.port is not configured
const DefaultServerPort = 8780
