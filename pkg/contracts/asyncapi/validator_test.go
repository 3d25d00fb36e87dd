package asyncapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/opname-service/pkg/cloudevents"
)

func lockedEvent(t *testing.T, data cloudevents.SessionLockedData) []byte {
	t.Helper()
	ce := cloudevents.NewEventFactory("/opname-service").
		CreateSessionEvent(context.Background(), "opname.session.locked", data.SessionID, data)
	raw, err := json.Marshal(ce)
	require.NoError(t, err)
	return raw
}

func TestNewEventValidator(t *testing.T) {
	v, err := NewEventValidator("../../../docs/asyncapi.yaml", "opname")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"opname.session.created",
		"opname.session.completed",
		"opname.session.locked",
	}, v.SupportedEventTypes())
	assert.True(t, v.HasSchema("opname.session.locked"))
	assert.False(t, v.HasSchema("opname.scan.recorded"))
}

func TestValidateEventJSON(t *testing.T) {
	v, err := NewEventValidator("../../../docs/asyncapi.yaml", "opname")
	require.NoError(t, err)

	at := time.Date(2026, 3, 2, 17, 30, 0, 0, time.UTC)
	data := cloudevents.SessionLockedData{
		SessionID:  "OPN-1",
		ApprovedBy: "user-approver",
		ApprovedAt: at,
		LockedAt:   at,
		Counters:   cloudevents.Counters{TotalExpected: 3, TotalScanned: 2, TotalMatch: 2, TotalMissing: 1},
	}
	assert.NoError(t, v.ValidateEventJSON(lockedEvent(t, data)))

	data.ApprovedBy = ""
	assert.Error(t, v.ValidateEventJSON(lockedEvent(t, data)))

	assert.Error(t, v.ValidateEventJSON([]byte(`{"specversion":"1.0","id":"1","source":"/x","type":"opname.scan.recorded","data":{}}`)))
	assert.Error(t, v.ValidateEventJSON([]byte(`{"specversion":"0.3","id":"1","source":"/x","type":"opname.session.locked","data":{}}`)))
	assert.Error(t, v.ValidateEventJSON([]byte(`not json`)))
}

func TestRegisterSchema(t *testing.T) {
	v, err := NewEventValidatorFromBytes([]byte("asyncapi: 3.0.0\ncomponents:\n  schemas: {}\n"), "opname")
	require.NoError(t, err)
	assert.Empty(t, v.SupportedEventTypes())

	require.NoError(t, v.RegisterSchema("opname.audit.ran", []byte(`{"type":"object","required":["drifted"]}`)))
	assert.NoError(t, v.ValidateEventJSON([]byte(`{"specversion":"1.0","id":"1","source":"/x","type":"opname.audit.ran","data":{"drifted":0}}`)))
	assert.Error(t, v.ValidateEventJSON([]byte(`{"specversion":"1.0","id":"1","source":"/x","type":"opname.audit.ran","data":{}}`)))
}
