package openapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const specPath = "../../../docs/openapi.yaml"

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token")
	return req
}

func TestNewValidator(t *testing.T) {
	v, err := NewValidator(specPath)
	require.NoError(t, err)

	assert.Contains(t, v.Paths(), "/api/v1/opname/sessions")
	assert.Contains(t, v.Paths(), "/api/v1/opname/sessions/{sessionId}/lock")
	assert.NotNil(t, v.Document())

	_, err = NewValidator("missing.yaml")
	assert.Error(t, err)
}

func TestNewValidatorFromBytes(t *testing.T) {
	raw, err := os.ReadFile(specPath)
	require.NoError(t, err)
	v, err := NewValidatorFromBytes(raw)
	require.NoError(t, err)
	assert.Len(t, v.Paths(), 9)

	_, err = NewValidatorFromBytes([]byte("openapi: 3.0.3\ninfo: {}\n"))
	assert.Error(t, err)
}

func TestOperationID(t *testing.T) {
	v, err := NewValidator(specPath)
	require.NoError(t, err)

	cases := map[string]*http.Request{
		"createSession":        jsonRequest(http.MethodPost, "/api/v1/opname/sessions", `{}`),
		"getSession":           jsonRequest(http.MethodGet, "/api/v1/opname/sessions/OPN-1", ""),
		"recordBulkScan":       jsonRequest(http.MethodPost, "/api/v1/opname/sessions/OPN-1/scans/bulk", `{}`),
		"retractScan":          jsonRequest(http.MethodDelete, "/api/v1/opname/sessions/OPN-1/scans/SCN-1", ""),
		"resolveDiscrepancies": jsonRequest(http.MethodPut, "/api/v1/opname/sessions/OPN-1/discrepancies", `{}`),
		"verifyCounters":       jsonRequest(http.MethodGet, "/api/v1/opname/sessions/OPN-1/verification", ""),
	}
	for want, req := range cases {
		got, err := v.OperationID(req)
		require.NoError(t, err, want)
		assert.Equal(t, want, got)
	}

	_, err = v.OperationID(jsonRequest(http.MethodGet, "/api/v1/stock", ""))
	assert.Error(t, err)
}

func TestValidateRequest(t *testing.T) {
	v, err := NewValidator(specPath)
	require.NoError(t, err)

	req := jsonRequest(http.MethodPost, "/api/v1/opname/sessions", `{"sessionType":"closing","notes":"evening"}`)
	require.NoError(t, v.ValidateRequest(req))

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "closing")

	assert.Error(t, v.ValidateRequest(jsonRequest(http.MethodPost, "/api/v1/opname/sessions", `{"sessionType":"weekly"}`)))
	assert.Error(t, v.ValidateRequest(jsonRequest(http.MethodPost, "/api/v1/opname/sessions", `{}`)))
}

func TestValidateResponse(t *testing.T) {
	v, err := NewValidator(specPath)
	require.NoError(t, err)

	req := jsonRequest(http.MethodGet, "/api/v1/opname/sessions/OPN-1", "")
	header := http.Header{"Content-Type": []string{"application/json"}}

	incomplete := `{"sessionId":"OPN-1","sessionType":"adhoc","status":"draft"}`
	assert.Error(t, v.ValidateResponse(req, http.StatusOK, header, []byte(incomplete)))

	wrongStatus := `{"sessionId":"OPN-1","sessionType":"adhoc","status":"open","createdBy":"u","startedAt":"2026-03-02T09:00:00Z","updatedAt":"2026-03-02T09:00:00Z",
"counters":{"totalExpected":0,"totalScanned":0,"totalMatch":0,"totalMissing":0,"totalUnregistered":0}}`
	assert.Error(t, v.ValidateResponse(req, http.StatusOK, header, []byte(wrongStatus)))
}
