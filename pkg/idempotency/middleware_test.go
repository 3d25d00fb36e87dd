package idempotency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(repo Repository, calls *int32, status int) *gin.Engine {
	cfg := DefaultConfig("opname-service", repo)
	cfg.Metrics = NewMetrics("opname", prometheus.NewRegistry())

	r := gin.New()
	r.Use(Middleware(cfg))
	handler := func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.JSON(status, gin.H{"call": n})
	}
	r.POST("/sessions", handler)
	r.GET("/sessions", handler)
	return r
}

func do(r http.Handler, method, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/sessions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_ReplaysCompletedRequest(t *testing.T) {
	var calls int32
	r := newTestRouter(NewMemoryRepository(), &calls, http.StatusCreated)

	first := do(r, http.MethodPost, "create-1", `{"sessionType":"opening"}`)
	second := do(r, http.MethodPost, "create-1", `{"sessionType":"opening"}`)

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.Equal(t, int32(1), calls)
}

func TestMiddleware_ParameterMismatch(t *testing.T) {
	var calls int32
	r := newTestRouter(NewMemoryRepository(), &calls, http.StatusCreated)

	do(r, http.MethodPost, "create-1", `{"sessionType":"opening"}`)
	w := do(r, http.MethodPost, "create-1", `{"sessionType":"closing"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), CodeParameterMismatch)
	assert.Equal(t, int32(1), calls)
}

func TestMiddleware_NoKeyAndReadsPassThrough(t *testing.T) {
	var calls int32
	r := newTestRouter(NewMemoryRepository(), &calls, http.StatusOK)

	do(r, http.MethodPost, "", `{}`)
	do(r, http.MethodPost, "", `{}`)
	do(r, http.MethodGet, "read-1", "")
	do(r, http.MethodGet, "read-1", "")

	assert.Equal(t, int32(4), calls)
}

func TestMiddleware_InvalidKey(t *testing.T) {
	var calls int32
	r := newTestRouter(NewMemoryRepository(), &calls, http.StatusOK)

	w := do(r, http.MethodPost, "not a key!", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), CodeKeyInvalid)
	assert.Zero(t, calls)
}

func TestMiddleware_ServerErrorsStayRetryable(t *testing.T) {
	var calls int32
	r := newTestRouter(NewMemoryRepository(), &calls, http.StatusServiceUnavailable)

	do(r, http.MethodPost, "retry-1", `{}`)
	w := do(r, http.MethodPost, "retry-1", `{}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, w.Header().Get(HeaderReplayed))
	assert.Equal(t, int32(2), calls)
}

type stubRepository struct {
	acquire func(ctx context.Context, key *Key) (*Key, bool, error)
}

func (s *stubRepository) AcquireLock(ctx context.Context, key *Key) (*Key, bool, error) {
	return s.acquire(ctx, key)
}
func (s *stubRepository) TakeOver(context.Context, primitive.ObjectID) error { return nil }
func (s *stubRepository) StoreResponse(context.Context, primitive.ObjectID, int, []byte, map[string]string) error {
	return nil
}
func (s *stubRepository) ReleaseLock(context.Context, primitive.ObjectID) error { return nil }

func TestMiddleware_ConcurrentRequest(t *testing.T) {
	var calls int32
	repo := &stubRepository{acquire: func(_ context.Context, key *Key) (*Key, bool, error) {
		held := *key
		lockedAt := time.Now().UTC()
		held.LockedAt = &lockedAt
		return &held, false, nil
	}}
	r := newTestRouter(repo, &calls, http.StatusOK)

	w := do(r, http.MethodPost, "busy-1", `{}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), CodeConcurrentRequest)
	assert.Zero(t, calls)
}

func TestMiddleware_StorageUnavailable(t *testing.T) {
	var calls int32
	repo := &stubRepository{acquire: func(context.Context, *Key) (*Key, bool, error) {
		return nil, false, errors.New("server selection timeout")
	}}
	r := newTestRouter(repo, &calls, http.StatusOK)

	w := do(r, http.MethodPost, "down-1", `{}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), CodeStorageUnavailable)
}

func TestValidateKey(t *testing.T) {
	require.NoError(t, ValidateKey("abc-123_DEF", 0))
	assert.ErrorIs(t, ValidateKey("", 0), ErrKeyRequired)
	assert.ErrorIs(t, ValidateKey(strings.Repeat("a", 11), 10), ErrKeyTooLong)
	assert.ErrorIs(t, ValidateKey("a b", 0), ErrKeyInvalid)
}

func TestComputeFingerprint_CoversPath(t *testing.T) {
	a := ComputeFingerprint(http.MethodPost, "/sessions/1/scans", []byte(`{}`))
	b := ComputeFingerprint(http.MethodPost, "/sessions/2/scans", []byte(`{}`))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ComputeFingerprint(http.MethodPost, "/sessions/1/scans", []byte(`{}`)))
}
