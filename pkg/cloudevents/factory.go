package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
)

type correlationKey struct{}

// ContextWithCorrelationID stores the id copied onto events created from ctx.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// EventFactory creates CloudEvents for a single source
type EventFactory struct {
	source string
}

func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent builds an event, copying correlation and W3C trace context from ctx.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *CloudEvent {
	event := &CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}

	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		event.CorrelationID = id
	}

	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	event.TraceParent = carrier.Get("traceparent")

	return event
}

// CreateSessionEvent builds an event whose subject is the session.
func (f *EventFactory) CreateSessionEvent(ctx context.Context, eventType, sessionID string, data interface{}) *CloudEvent {
	event := f.CreateEvent(ctx, eventType, "opname-session/"+sessionID, data)
	event.SessionID = sessionID
	return event
}
