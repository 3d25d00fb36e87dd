package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/opname-service/pkg/cloudevents"
	"github.com/wms-platform/opname-service/pkg/logging"
)

type fakeRepo struct {
	events    []*Event
	published []string
	retried   map[string]string

	// unfiltered returns every stored event from FindUnpublished
	unfiltered bool
}

func (r *fakeRepo) SaveAll(_ context.Context, events []*Event) error {
	r.events = append(r.events, events...)
	return nil
}

func (r *fakeRepo) FindUnpublished(_ context.Context, limit int) ([]*Event, error) {
	var out []*Event
	for _, e := range r.events {
		if (r.unfiltered || e.ShouldRetry()) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkPublished(_ context.Context, id string) error {
	r.published = append(r.published, id)
	return nil
}

func (r *fakeRepo) IncrementRetry(_ context.Context, id, msg string) error {
	if r.retried == nil {
		r.retried = map[string]string{}
	}
	r.retried[id] = msg
	return nil
}

func (r *fakeRepo) FindByAggregateID(_ context.Context, id string) ([]*Event, error) {
	return nil, nil
}

type fakeProducer struct {
	failType string
	sent     []string
}

func (p *fakeProducer) PublishEvent(_ context.Context, topic string, ce *cloudevents.CloudEvent) error {
	if ce.Type == p.failType {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, topic+":"+ce.Type)
	return nil
}

func newEvent(t *testing.T, eventType string) *Event {
	t.Helper()
	ce := cloudevents.NewEventFactory("/opname-service").CreateSessionEvent(context.Background(), eventType, "OPN-1", nil)
	e, err := NewEvent("OPN-1", "OpnameSession", "opname.sessions.events", ce)
	require.NoError(t, err)
	return e
}

func TestPublisher_ProcessEvents(t *testing.T) {
	created := newEvent(t, cloudevents.SessionCreated)
	locked := newEvent(t, cloudevents.SessionLocked)
	repo := &fakeRepo{events: []*Event{created, locked}}
	producer := &fakeProducer{failType: cloudevents.SessionLocked}

	p := NewPublisher(repo, producer, logging.New(logging.DefaultConfig("test")), nil, nil)
	p.processEvents(context.Background())

	assert.Equal(t, []string{"opname.sessions.events:opname.session.created"}, producer.sent)
	assert.Equal(t, []string{created.ID}, repo.published)
	assert.Contains(t, repo.retried[locked.ID], "broker unavailable")
	assert.Equal(t, map[string]int{"published": 1, "failed": 1}, p.Stats())
}

func TestPublisher_SkipsExhaustedAndPublishedEvents(t *testing.T) {
	exhausted := newEvent(t, cloudevents.SessionCreated)
	exhausted.RetryCount = exhausted.MaxRetries
	published := newEvent(t, cloudevents.SessionCompleted)
	now := time.Now().UTC()
	published.PublishedAt = &now
	pending := newEvent(t, cloudevents.SessionLocked)

	repo := &fakeRepo{events: []*Event{exhausted, published, pending}, unfiltered: true}
	producer := &fakeProducer{}
	p := NewPublisher(repo, producer, logging.New(logging.DefaultConfig("test")), nil, nil)
	p.processEvents(context.Background())

	assert.Equal(t, []string{"opname.sessions.events:opname.session.locked"}, producer.sent)
	assert.Equal(t, []string{pending.ID}, repo.published)
}

func TestEvent_RoundTripsCloudEvent(t *testing.T) {
	e := newEvent(t, cloudevents.SessionCompleted)

	ce, err := e.ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, cloudevents.SessionCompleted, ce.Type)
	assert.Equal(t, "OPN-1", ce.SessionID)
	assert.True(t, e.ShouldRetry())
}

func TestPublisher_StartStop(t *testing.T) {
	p := NewPublisher(&fakeRepo{}, &fakeProducer{}, logging.New(logging.DefaultConfig("test")), nil, nil)

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(context.Background()))

	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	assert.Error(t, p.Stop())
}
