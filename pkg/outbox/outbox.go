package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/opname-service/pkg/cloudevents"
)

// DefaultMaxRetries bounds delivery attempts per event
const DefaultMaxRetries = 10

// Event is a CloudEvent persisted next to the state change that produced it
// and relayed to Kafka afterwards.
type Event struct {
	ID            string          `bson:"_id" json:"id"`
	AggregateID   string          `bson:"aggregateId" json:"aggregateId"`
	AggregateType string          `bson:"aggregateType" json:"aggregateType"`
	EventType     string          `bson:"eventType" json:"eventType"`
	Topic         string          `bson:"topic" json:"topic"`
	Payload       json.RawMessage `bson:"payload" json:"payload"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
	PublishedAt   *time.Time      `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	RetryCount    int             `bson:"retryCount" json:"retryCount"`
	LastError     string          `bson:"lastError,omitempty" json:"lastError,omitempty"`
	MaxRetries    int             `bson:"maxRetries" json:"maxRetries"`
}

// NewEvent wraps a CloudEvent for the outbox
func NewEvent(aggregateID, aggregateType, topic string, ce *cloudevents.CloudEvent) (*Event, error) {
	payload, err := json.Marshal(ce)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     ce.Type,
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		MaxRetries:    DefaultMaxRetries,
	}, nil
}

// ShouldRetry reports whether the event is unpublished with retries left.
func (e *Event) ShouldRetry() bool {
	return e.PublishedAt == nil && e.RetryCount < e.MaxRetries
}

// ToCloudEvent decodes the stored payload
func (e *Event) ToCloudEvent() (*cloudevents.CloudEvent, error) {
	var ce cloudevents.CloudEvent
	if err := json.Unmarshal(e.Payload, &ce); err != nil {
		return nil, err
	}
	return &ce, nil
}

// Repository persists outbox events. SaveAll must honour a transaction carried
// by ctx.
type Repository interface {
	SaveAll(ctx context.Context, events []*Event) error
	FindUnpublished(ctx context.Context, limit int) ([]*Event, error)
	MarkPublished(ctx context.Context, eventID string) error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error
	FindByAggregateID(ctx context.Context, aggregateID string) ([]*Event, error)
}
