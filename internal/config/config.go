// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the persistence backend: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// StorePath is the sqlite database file when store_driver is sqlite.
	StorePath string `koanf:"store_path"`

	// EventBufferSize bounds each subscriber's event channel.
	EventBufferSize int `koanf:"event_buffer_size"`

	// ReplaySize sets the per-channel replay ring depth.
	ReplaySize int `koanf:"replay_size"`

	// MatchLengthSeconds is the running time of a match.
	MatchLengthSeconds int `koanf:"match_length_seconds"`

	// AutoLoad loads the next unplayed match after each completion.
	AutoLoad bool `koanf:"auto_load"`

	// SeedFile optionally points at a JSON schedule loaded at startup.
	SeedFile string `koanf:"seed_file"`

	// CORSOrigins lists the origins allowed to call the API from a browser.
	// Empty means allow all, which suits a venue-local deployment.
	CORSOrigins []string `koanf:"cors_origins"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":8080",
		StoreDriver:        "memory",
		StorePath:          "refbox.db",
		EventBufferSize:    256,
		ReplaySize:         128,
		MatchLengthSeconds: 150,
		AutoLoad:           true,
	}
}
