package config

import "time"

// applyDefaults fills in zero-valued fields.
func (c *Config) applyDefaults() {
	if c.Feed.ConnectTimeout == 0 {
		c.Feed.ConnectTimeout = 10 * time.Second
	}
	if c.Feed.PingTimeout == 0 {
		c.Feed.PingTimeout = 60 * time.Second
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = 5 * time.Second
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = 1000
	}
	if c.Feed.ControlRate == 0 {
		c.Feed.ControlRate = 10
	}
	if c.Feed.ControlBurst == 0 {
		c.Feed.ControlBurst = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
