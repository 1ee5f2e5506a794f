package gateway

import "time"

// Config holds the HTTP gateway's own surface concerns: listen timeouts
// and the request-body cap. Everything else the gateway needs (cache,
// pipelines, admission, upstream client, IP gate) is wired in by
// pkg/app/wire.go and passed to New, not decoded here.
type Config struct {
	Bind            string        `yaml:"bind"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps a request body before it is parsed or scanned.
	// Zero means security.DefaultMaxMessageSize.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "0.0.0.0:11434"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	// WriteTimeout is intentionally left at zero (disabled) by default: a
	// streaming generation response can legitimately run far longer than
	// any fixed write deadline, and the idle-between-chunks timeout
	// (streamguard.Config.IdleTimeout) is what actually bounds a stalled
	// upstream.
}
