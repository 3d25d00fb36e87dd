// Package testing starts throwaway infrastructure for integration tests.
package testing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongopkg "github.com/wms-platform/opname-service/pkg/mongodb"
)

const mongoImage = "mongo:6"

// MongoDBContainer is a single node replica set, so transactions work.
type MongoDBContainer struct {
	Container *mongodb.MongoDBContainer
	URI       string
}

func NewMongoDBContainer(ctx context.Context) (*MongoDBContainer, error) {
	container, err := mongodb.Run(ctx, mongoImage, mongodb.WithReplicaSet("rs0"))
	if err != nil {
		return nil, fmt.Errorf("failed to start mongodb container: %w", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &MongoDBContainer{Container: container, URI: uri}, nil
}

// Connect returns a driver client that uses the service's BSON registry
func (m *MongoDBContainer) Connect(ctx context.Context) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(m.URI).
		SetDirect(true).
		SetRegistry(mongopkg.NewRegistry())
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

func (m *MongoDBContainer) Close(ctx context.Context) error {
	return testcontainers.TerminateContainer(m.Container, testcontainers.StopContext(ctx))
}

// SkipIfShort skips container backed tests under -short
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}
