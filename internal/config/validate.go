package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		return fmt.Errorf("feed.url must be a ws:// or wss:// URL, got %q", c.Feed.URL)
	}
	if c.Feed.ConnectTimeout <= 0 {
		return fmt.Errorf("feed.connect_timeout must be positive")
	}
	if c.Feed.BufferSize <= 0 {
		return fmt.Errorf("feed.buffer_size must be positive")
	}
	if c.Feed.ControlRate <= 0 {
		return fmt.Errorf("feed.control_rate must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}

	return nil
}
