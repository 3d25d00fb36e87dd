package idempotency

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongopkg "github.com/wms-platform/opname-service/pkg/mongodb"
)

const CollectionName = "idempotency_keys"

// MongoRepository implements Repository on MongoDB
type MongoRepository struct {
	collection *mongopkg.Collection
}

func NewMongoRepository(client *mongopkg.Client) *MongoRepository {
	return &MongoRepository{collection: client.Collection(CollectionName)}
}

// AcquireLock upserts key and returns the pre-existing entry when there was one.
func (r *MongoRepository) AcquireLock(ctx context.Context, key *Key) (*Key, bool, error) {
	filter := bson.M{"serviceId": key.ServiceID, "userId": key.UserID, "key": key.Key}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":                key.ID,
			"key":                key.Key,
			"serviceId":          key.ServiceID,
			"userId":             key.UserID,
			"requestPath":        key.RequestPath,
			"requestMethod":      key.RequestMethod,
			"requestFingerprint": key.RequestFingerprint,
			"lockedAt":           key.LockedAt,
			"createdAt":          key.CreatedAt,
			"expiresAt":          key.ExpiresAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before)

	var existing Key
	err := r.collection.FindOneAndUpdate(ctx, filter, update, &existing, opts)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return key, true, nil
	case mongopkg.IsDuplicateKey(err):
		// Lost an upsert race; the winner's document is now visible.
		if err := r.collection.FindOne(ctx, filter, &existing); err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	case err != nil:
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *MongoRepository) TakeOver(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"lockedAt": mongopkg.Now()}})
	return err
}

func (r *MongoRepository) StoreResponse(ctx context.Context, id primitive.ObjectID, code int, body []byte, headers map[string]string) error {
	update := bson.M{
		"$set": bson.M{
			"responseCode":    code,
			"responseBody":    body,
			"responseHeaders": headers,
			"completedAt":     mongopkg.Now(),
		},
		"$unset": bson.M{"lockedAt": ""},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

func (r *MongoRepository) ReleaseLock(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// EnsureIndexes creates the lookup index and the retention TTL
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	return r.collection.CreateIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "serviceId", Value: 1}, {Key: "userId", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_service_user_key"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_expires_at_ttl"),
		},
	})
}

var _ Repository = (*MongoRepository)(nil)
