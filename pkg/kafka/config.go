package kafka

import (
	"time"
)

// Config holds Kafka producer configuration
type Config struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"clientId"`

	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	RequiredAcks int           `yaml:"requiredAcks"` // 0: none, 1: leader, -1: all replicas
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Brokers:      []string{"localhost:9092"},
		ClientID:     "opname-service",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
		WriteTimeout: 10 * time.Second,
	}
}

// Topics used by the opname service
var Topics = struct {
	SessionEvents string
}{
	SessionEvents: "opname.sessions.events",
}
