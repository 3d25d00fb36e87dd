package idempotency

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Key is a stored idempotency key together with the response it produced
type Key struct {
	ID                 primitive.ObjectID `bson:"_id"`
	Key                string             `bson:"key"`
	ServiceID          string             `bson:"serviceId"`
	UserID             string             `bson:"userId,omitempty"`
	RequestPath        string             `bson:"requestPath"`
	RequestMethod      string             `bson:"requestMethod"`
	RequestFingerprint string             `bson:"requestFingerprint"`

	LockedAt *time.Time `bson:"lockedAt,omitempty"`

	ResponseCode    int               `bson:"responseCode,omitempty"`
	ResponseBody    []byte            `bson:"responseBody,omitempty"`
	ResponseHeaders map[string]string `bson:"responseHeaders,omitempty"`

	CreatedAt   time.Time  `bson:"createdAt"`
	CompletedAt *time.Time `bson:"completedAt,omitempty"`
	ExpiresAt   time.Time  `bson:"expiresAt"`
}

func (k *Key) IsCompleted() bool {
	return k.CompletedAt != nil
}

func (k *Key) IsLocked() bool {
	return k.LockedAt != nil && k.CompletedAt == nil
}

// Repository stores idempotency keys
type Repository interface {
	// AcquireLock inserts key if no (serviceId, userId, key) entry exists.
	// It returns the stored entry and whether this call created it.
	AcquireLock(ctx context.Context, key *Key) (*Key, bool, error)

	// TakeOver re-locks an entry whose previous holder went stale
	TakeOver(ctx context.Context, id primitive.ObjectID) error

	StoreResponse(ctx context.Context, id primitive.ObjectID, code int, body []byte, headers map[string]string) error

	// ReleaseLock drops the entry so the request can be retried with the same key
	ReleaseLock(ctx context.Context, id primitive.ObjectID) error
}
