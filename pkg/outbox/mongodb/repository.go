package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongopkg "github.com/wms-platform/opname-service/pkg/mongodb"
	"github.com/wms-platform/opname-service/pkg/outbox"
)

const CollectionName = "outbox_events"

// publishedRetention keeps relayed events for a week
const publishedRetention = 7 * 24 * time.Hour

// OutboxRepository implements outbox.Repository on MongoDB
type OutboxRepository struct {
	collection *mongopkg.Collection
}

func NewOutboxRepository(client *mongopkg.Client) *OutboxRepository {
	return &OutboxRepository{collection: client.Collection(CollectionName)}
}

func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.Event) error {
	if len(events) == 0 {
		return nil
	}

	docs := make([]interface{}, len(events))
	for i, event := range events {
		docs[i] = event
	}
	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.Event, error) {
	filter := bson.M{
		"publishedAt": bson.M{"$exists": false},
		"retryCount":  bson.M{"$lt": outbox.DefaultMaxRetries},
	}
	opts := options.Find().
		SetSort(mongopkg.SortAscending("createdAt")).
		SetLimit(int64(limit))

	var events []*outbox.Event
	if err := r.collection.FindAll(ctx, filter, &events, opts); err != nil {
		return nil, fmt.Errorf("failed to find unpublished events: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": eventID},
		bson.M{"$set": bson.M{"publishedAt": mongopkg.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("event not found: %s", eventID)
	}
	return nil
}

func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": eventID},
		bson.M{
			"$inc": bson.M{"retryCount": 1},
			"$set": bson.M{"lastError": errorMsg},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("event not found: %s", eventID)
	}
	return nil
}

func (r *OutboxRepository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.Event, error) {
	var events []*outbox.Event
	err := r.collection.FindAll(ctx, bson.M{"aggregateId": aggregateID}, &events,
		options.Find().SetSort(mongopkg.SortAscending("createdAt")))
	if err != nil {
		return nil, fmt.Errorf("failed to find events by aggregate ID: %w", err)
	}
	return events, nil
}

// EnsureIndexes creates the relay and retention indexes
func (r *OutboxRepository) EnsureIndexes(ctx context.Context) error {
	return r.collection.CreateIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "publishedAt", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_publishedAt_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "aggregateId", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_aggregateId_createdAt"),
		},
		{
			// Unpublished events carry no publishedAt and are never expired.
			Keys: bson.D{{Key: "publishedAt", Value: 1}},
			Options: options.Index().
				SetName("idx_publishedAt_ttl").
				SetExpireAfterSeconds(int32(publishedRetention.Seconds())),
		},
	})
}
