package idempotency

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderIdempotencyKey is the request header carrying the client key
	HeaderIdempotencyKey = "Idempotency-Key"

	// HeaderReplayed marks responses served from a stored result
	HeaderReplayed = "Idempotent-Replayed"

	DefaultMaxKeyLength    = 255
	DefaultLockTimeout     = 5 * time.Minute
	DefaultRetentionPeriod = 24 * time.Hour
	DefaultMaxResponseSize = 1 << 20
)

// Config holds configuration for the idempotency middleware
type Config struct {
	ServiceName string
	Repository  Repository

	// RequireKey rejects mutating requests that carry no key. When false such
	// requests pass through untouched.
	RequireKey bool

	// OnlyMutating skips GET, HEAD and OPTIONS requests
	OnlyMutating bool

	// UserIDExtractor scopes keys per caller
	UserIDExtractor func(*gin.Context) string

	MaxKeyLength    int
	LockTimeout     time.Duration
	RetentionPeriod time.Duration
	MaxResponseSize int

	Metrics *Metrics
	Logger  *slog.Logger
}

// DefaultConfig returns a configuration with optional keys on mutating routes
func DefaultConfig(serviceName string, repository Repository) *Config {
	return &Config{
		ServiceName:     serviceName,
		Repository:      repository,
		OnlyMutating:    true,
		MaxKeyLength:    DefaultMaxKeyLength,
		LockTimeout:     DefaultLockTimeout,
		RetentionPeriod: DefaultRetentionPeriod,
		MaxResponseSize: DefaultMaxResponseSize,
	}
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
