package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/opname-service/pkg/logging"
	"github.com/wms-platform/opname-service/pkg/metrics"
	"github.com/wms-platform/opname-service/pkg/resilience"
)

// Config holds MongoDB connection configuration
type Config struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	MaxPoolSize    uint64        `yaml:"maxPoolSize"`
	MinPoolSize    uint64        `yaml:"minPoolSize"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
	AuthDB   string `yaml:"authDb"`

	// Transactions need a replica set (or a mongos).
	ReplicaSet string `yaml:"replicaSet"`
}

func DefaultConfig() *Config {
	return &Config{
		URI:            "mongodb://localhost:27017/?replicaSet=rs0",
		Database:       "opname",
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    100,
		MinPoolSize:    5,
	}
}

// Client wraps the driver client with tracing, metrics and a circuit breaker
// around transactions.
type Client struct {
	client   *mongo.Client
	database *mongo.Database
	config   *Config
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
	breaker  *resilience.CircuitBreaker
}

// NewClient connects, pings the primary and returns a ready client.
// Decimal values are stored as Decimal128 through the registry from NewRegistry.
func NewClient(ctx context.Context, config *Config, m *metrics.Metrics, logger *logging.Logger) (*Client, error) {
	clientOpts := options.Client().
		ApplyURI(config.URI).
		SetConnectTimeout(config.ConnectTimeout).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize).
		SetRegistry(NewRegistry())

	if config.Username != "" && config.Password != "" {
		clientOpts.SetAuth(options.Credential{
			Username:   config.Username,
			Password:   config.Password,
			AuthSource: config.AuthDB,
		})
	}
	if config.ReplicaSet != "" {
		clientOpts.SetReplicaSet(config.ReplicaSet)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return Wrap(client, config, m, logger), nil
}

// Wrap builds a Client around an already connected driver client.
func Wrap(client *mongo.Client, config *Config, m *metrics.Metrics, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig("mongodb"))
	}
	cbConfig := resilience.DefaultCircuitBreakerConfig("mongodb")
	cbConfig.MaxRequests = 5
	cbConfig.FailureThreshold = 5
	cbConfig.OnStateChange = func(name string, _, to gobreaker.State) {
		m.SetCircuitBreakerState(name, resilience.StateValue(to))
		if resilience.StateValue(to) == 2 {
			m.RecordCircuitBreakerTrip(name)
		}
	}

	return &Client{
		client:   client,
		database: client.Database(config.Database),
		config:   config,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("mongodb"),
		breaker:  resilience.NewCircuitBreaker(cbConfig, logger.Logger),
	}
}

func (c *Client) Database() *mongo.Database {
	return c.database
}

// Collection returns an instrumented collection handle
func (c *Client) Collection(name string) *Collection {
	return &Collection{
		coll:   c.database.Collection(name),
		name:   name,
		client: c,
	}
}

func (c *Client) Client() *mongo.Client {
	return c.client
}

func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "mongodb.ping", trace.WithAttributes(
		semconv.DBSystemMongoDB,
		semconv.DBNameKey.String(c.config.Database),
	))
	defer span.End()

	err := c.client.Ping(ctx, readpref.Primary())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// WithTransaction runs fn in a multi-document transaction. The driver retries
// fn on transient errors (write conflicts included), so fn must be safe to rerun.
// Only infrastructure failures count against the circuit breaker; errors
// produced by fn itself roll the transaction back and are returned as is.
func (c *Client) WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	ctx, span := c.tracer.Start(ctx, "mongodb.transaction", trace.WithAttributes(
		semconv.DBSystemMongoDB,
		semconv.DBNameKey.String(c.config.Database),
	))
	defer span.End()

	var callbackErr error
	_, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		session, err := c.client.StartSession()
		if err != nil {
			return nil, fmt.Errorf("failed to start session: %w", err)
		}
		defer session.EndSession(ctx)

		_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
			callbackErr = nil
			if err := fn(sessCtx); err != nil {
				callbackErr = err
				return nil, err
			}
			return nil, nil
		})
		if err != nil && callbackErr != nil && !IsUnavailable(callbackErr) {
			// Rolled back by the callback; not a dependency failure.
			return nil, nil
		}
		return nil, err
	})
	if err == nil {
		err = callbackErr
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// IsUnavailable reports whether err means the database could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	return strings.Contains(err.Error(), "server selection")
}
