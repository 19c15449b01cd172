package config

import "time"

// GeneralConfig names the deployment.
type GeneralConfig struct {
	Name        string `mapstructure:"NAME"        json:"name"        validate:"required,min=1,max=60"`
	Description string `mapstructure:"DESCRIPTION" json:"description" validate:"omitempty,max=200"`
}

// WebConfig holds the report server settings.
type WebConfig struct {
	ListenAddr      string        `mapstructure:"LISTEN_ADDR"      json:"listen_addr"      validate:"required,listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"READ_TIMEOUT"     json:"read_timeout"     validate:"required,timeout_duration"`
	WriteTimeout    time.Duration `mapstructure:"WRITE_TIMEOUT"    json:"write_timeout"    validate:"required,timeout_duration"`
	IdleTimeout     time.Duration `mapstructure:"IDLE_TIMEOUT"     json:"idle_timeout"     validate:"required,reasonable_duration"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" json:"shutdown_timeout" validate:"required,timeout_duration"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"  json:"request_timeout"  validate:"required,timeout_duration"`
	DefaultColumns  []string      `mapstructure:"DEFAULT_COLUMNS"  json:"default_columns"  validate:"required,min=1,dive,column"`
}

// SessionConfig controls the per-browser session store.
type SessionConfig struct {
	TTL        time.Duration `mapstructure:"TTL"         json:"ttl"         validate:"required,reasonable_duration"`
	CookieName string        `mapstructure:"COOKIE_NAME" json:"cookie_name" validate:"required,max=64,excludesall=;0x2C"`
	Secure     bool          `mapstructure:"SECURE"      json:"secure"`
	Capacity   uint64        `mapstructure:"CAPACITY"    json:"capacity"    validate:"min=0,max=10000000"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"ENABLED"             json:"enabled"`
	RequestsPerSecond float64       `mapstructure:"REQUESTS_PER_SECOND" json:"requests_per_second" validate:"gt=0,max=10000"`
	Burst             int           `mapstructure:"BURST"               json:"burst"               validate:"min=1,max=10000"`
	IdleTTL           time.Duration `mapstructure:"IDLE_TTL"            json:"idle_ttl"            validate:"required,reasonable_duration"`
}
