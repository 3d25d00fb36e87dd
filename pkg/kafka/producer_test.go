package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/opname-service/pkg/cloudevents"
)

func headerMap(t *testing.T, event *cloudevents.CloudEvent) map[string]string {
	t.Helper()
	msg, err := NewMessage(event)
	require.NoError(t, err)

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return headers
}

func TestNewMessage_CarriesCloudEventHeaders(t *testing.T) {
	event := &cloudevents.CloudEvent{
		SpecVersion:     "1.0",
		Type:            cloudevents.SessionCompleted,
		Source:          "/opname-service",
		Subject:         "opname-session/OPN-9",
		ID:              "evt-1",
		Time:            time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		DataContentType: "application/json",
		SessionID:       "OPN-9",
		Data:            map[string]int{"totalScanned": 4},
	}

	msg, err := NewMessage(event)
	require.NoError(t, err)
	assert.Equal(t, "opname-session/OPN-9", string(msg.Key))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "opname.session.completed", body["type"])

	headers := headerMap(t, event)
	assert.Equal(t, "evt-1", headers["ce-id"])
	assert.Equal(t, "2026-01-02T03:04:05Z", headers["ce-time"])
	assert.Equal(t, "OPN-9", headers["ce-opnamesessionid"])
	_, hasCorrelation := headers["ce-correlationid"]
	assert.False(t, hasCorrelation)
}

type recordingPublisher struct {
	topics []string
	err    error
}

func (r *recordingPublisher) PublishEvent(_ context.Context, topic string, _ *cloudevents.CloudEvent) error {
	r.topics = append(r.topics, topic)
	return r.err
}

func TestInstrumentedProducer_PassesThroughErrors(t *testing.T) {
	inner := &recordingPublisher{err: errors.New("broker down")}
	p := NewInstrumentedProducer(inner, nil, nil)

	err := p.PublishEvent(context.Background(), Topics.SessionEvents, &cloudevents.CloudEvent{ID: "x", Type: cloudevents.SessionLocked})

	require.EqualError(t, err, "broker down")
	assert.Equal(t, []string{"opname.sessions.events"}, inner.topics)
}
