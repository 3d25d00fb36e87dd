package mongodb

import (
	"context"
	"fmt"

	"github.com/wms-platform/opname-service/internal/domain"
	"github.com/wms-platform/opname-service/pkg/cloudevents"
	"github.com/wms-platform/opname-service/pkg/kafka"
)

const aggregateType = "OpnameSession"

var topic = kafka.Topics.SessionEvents

// toCloudEvent converts a domain event into its published envelope.
func toCloudEvent(ctx context.Context, factory *cloudevents.EventFactory, event domain.DomainEvent) (*cloudevents.CloudEvent, error) {
	var data interface{}
	switch e := event.(type) {
	case *domain.SessionCreatedEvent:
		data = cloudevents.SessionCreatedData{
			SessionID:   e.SessionID,
			SessionType: string(e.SessionType),
			CreatedBy:   e.CreatedBy,
			StartedAt:   e.StartedAt,
			Counters:    toEventCounters(e.Counters),
		}
	case *domain.SessionCompletedEvent:
		data = cloudevents.SessionCompletedData{
			SessionID:   e.SessionID,
			CompletedBy: e.CompletedBy,
			CompletedAt: e.CompletedAt,
			Counters:    toEventCounters(e.Counters),
		}
	case *domain.SessionLockedEvent:
		data = cloudevents.SessionLockedData{
			SessionID:  e.SessionID,
			ApprovedBy: e.ApprovedBy,
			ApprovedAt: e.ApprovedAt,
			LockedAt:   e.LockedAt,
			Counters:   toEventCounters(e.Counters),
		}
	default:
		return nil, fmt.Errorf("unsupported domain event %T", event)
	}

	ce := factory.CreateSessionEvent(ctx, event.EventType(), event.AggregateID(), data)
	ce.Time = event.OccurredAt().UTC()
	return ce, nil
}

func toEventCounters(c domain.Counters) cloudevents.Counters {
	return cloudevents.Counters{
		TotalExpected:     c.TotalExpected,
		TotalScanned:      c.TotalScanned,
		TotalMatch:        c.TotalMatch,
		TotalMissing:      c.TotalMissing,
		TotalUnregistered: c.TotalUnregistered,
	}
}
