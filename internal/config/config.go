// Package config assembles the service configuration from defaults, an
// optional YAML file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wms-platform/opname-service/internal/domain"
	"github.com/wms-platform/opname-service/internal/infrastructure/redis"
	"github.com/wms-platform/opname-service/pkg/kafka"
	"github.com/wms-platform/opname-service/pkg/mongodb"
	"github.com/wms-platform/opname-service/pkg/outbox"
	"github.com/wms-platform/opname-service/pkg/tracing"
)

const ServiceName = "opname-service"

// Config holds application configuration
type Config struct {
	ServerAddr  string `yaml:"serverAddr"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"logLevel"`

	MongoDB *mongodb.Config         `yaml:"mongodb"`
	Kafka   *kafka.Config           `yaml:"kafka"`
	Redis   *redis.Config           `yaml:"redis"`
	Tracing *tracing.Config         `yaml:"tracing"`
	Outbox  *outbox.PublisherConfig `yaml:"outbox"`
	Auth    AuthConfig              `yaml:"auth"`

	// ScanRateLimit throttles scan routes per caller, e.g. "600-M". Empty disables.
	ScanRateLimit string `yaml:"scanRateLimit"`
	// ExpectedStatuses are the unit statuses frozen into a snapshot
	ExpectedStatuses []string `yaml:"expectedStatuses"`
}

type AuthConfig struct {
	JWTSecret     string   `yaml:"jwtSecret"`
	JWTIssuer     string   `yaml:"jwtIssuer"`
	ApproverRoles []string `yaml:"approverRoles"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		ServerAddr:       ":8012",
		Environment:      "development",
		LogLevel:         "info",
		MongoDB:          mongodb.DefaultConfig(),
		Kafka:            kafka.DefaultConfig(),
		Redis:            redis.DefaultConfig(),
		Tracing:          tracing.DefaultConfig(ServiceName),
		Outbox:           outbox.DefaultPublisherConfig(),
		ScanRateLimit:    "600-M",
		ExpectedStatuses: []string{"available", "reserved"},
		Auth: AuthConfig{
			ApproverRoles: append([]string(nil), domain.DefaultApproverRoles...),
		},
	}
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE,
// then environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.merge(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) merge(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("SERVER_ADDR", &c.ServerAddr)
	str("ENVIRONMENT", &c.Environment)
	str("LOG_LEVEL", &c.LogLevel)
	str("MONGODB_URI", &c.MongoDB.URI)
	str("MONGODB_DATABASE", &c.MongoDB.Database)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("JWT_ISSUER", &c.Auth.JWTIssuer)
	list("APPROVER_ROLES", &c.Auth.ApproverRoles)
	list("EXPECTED_STATUSES", &c.ExpectedStatuses)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint)
	str("RATE_LIMIT", &c.ScanRateLimit)

	if v, ok := lookup("TRACING_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRACING_ENABLED: %w", err)
		}
		c.Tracing.Enabled = enabled
	}
	if v, ok := lookup("OUTBOX_POLL_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("OUTBOX_POLL_INTERVAL: %w", err)
		}
		c.Outbox.PollInterval = d
	}
	c.Tracing.Environment = c.Environment
	return nil
}

// Validate rejects configurations the service cannot start with
func (c *Config) Validate() error {
	if c.MongoDB.URI == "" || c.MongoDB.Database == "" {
		return fmt.Errorf("mongodb uri and database are required")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Auth.ApproverRoles) == 0 {
		return fmt.Errorf("at least one approver role is required")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
