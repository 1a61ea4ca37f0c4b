// Package config loads the feed configuration from YAML with ${ENV}
// expansion, defaults, and validation.
package config

import "time"

// Config is the top-level configuration.
type Config struct {
	Feed    FeedConfig    `yaml:"feed"`
	Account AccountConfig `yaml:"account"`
	Symbols []string      `yaml:"symbols"`
	Log     LogConfig     `yaml:"log"`
}

// FeedConfig configures the WebSocket connection.
type FeedConfig struct {
	URL            string        `yaml:"url"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	BufferSize     int           `yaml:"buffer_size"`
	ControlRate    float64       `yaml:"control_rate"`
	ControlBurst   int           `yaml:"control_burst"`
}

// AccountConfig identifies the selected trading account.
type AccountConfig struct {
	No string `yaml:"no"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
