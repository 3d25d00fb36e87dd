package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "github.com/wms-platform/opname-service/pkg/errors"
	"github.com/wms-platform/opname-service/pkg/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticVerifier struct {
	tokens map[string]*Principal
}

func (v staticVerifier) Verify(_ context.Context, token string) (*Principal, error) {
	if p, ok := v.tokens[token]; ok {
		return p, nil
	}
	return nil, errors.New("unknown token")
}

func newRouter() *gin.Engine {
	router := gin.New()
	Setup(router, DefaultConfig("test", logging.New(logging.DefaultConfig("test")).Logger))
	return router
}

func TestErrorResponder_RendersAppError(t *testing.T) {
	router := newRouter()
	router.GET("/boom", func(c *gin.Context) {
		NewErrorResponder(c, nil).RespondWithError(
			apperrors.ErrConflict("session has unresolved discrepancies").WithDetail("missing", "3"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	var body APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeConflict, body.Code)
	assert.Equal(t, "3", body.Details["missing"])
	assert.Equal(t, "req-42", body.RequestID)
	assert.Equal(t, "/boom", body.Path)
}

func TestErrorHandler_UnknownErrorsBecomeInternal(t *testing.T) {
	router := newRouter()
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("socket closed"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeInternalError)
}

func TestAuthenticate(t *testing.T) {
	verifier := staticVerifier{tokens: map[string]*Principal{
		"good": {ID: "u-1", Roles: []string{"staff"}},
	}}

	router := newRouter()
	router.GET("/me", Authenticate(verifier), func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		require.True(t, ok)
		c.String(http.StatusOK, p.ID)
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestContentType(t *testing.T) {
	router := newRouter()
	router.POST("/scans", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for contentType, want := range map[string]int{
		"application/json":          http.StatusNoContent,
		"text/plain; charset=utf-8": http.StatusNoContent,
		"application/xml":           http.StatusUnsupportedMediaType,
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/scans", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", contentType)
		router.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, contentType)
	}
}

func TestBodyLimit(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler(nil), BodyLimit(16))
	router.POST("/scans", func(c *gin.Context) {
		var req struct {
			IMEI string `json:"imei"`
		}
		if appErr := BindAndValidate(c, &req); appErr != nil {
			_ = c.Error(appErr)
			return
		}
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name          string
		body          string
		unknownLength bool
		want          int
	}{
		{name: "within limit", body: `{"imei":"1"}`, want: http.StatusNoContent},
		{name: "declared over limit", body: `{"imei":"123456789012345"}`, want: http.StatusRequestEntityTooLarge},
		{name: "streamed over limit", body: `{"imei":"123456789012345"}`, unknownLength: true, want: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/scans", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.unknownLength {
				req.ContentLength = -1
			}
			router.ServeHTTP(w, req)
			require.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want == http.StatusRequestEntityTooLarge {
				var body APIErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, apperrors.CodePayloadTooLarge, body.Code)
			}
		})
	}
}

func TestTracing_SpanAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	router := gin.New()
	router.Use(Tracing("test"))
	router.POST("/sessions/:sessionId/scans", func(c *gin.Context) {
		AddSpanAttributes(c, map[string]interface{}{"opname.scan_result": "match", "opname.bulk.lines": 3})
		c.Status(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sessions/OPN-1/scans", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "OPN-1", attrs["opname.session_id"].AsString())
	assert.Equal(t, "match", attrs["opname.scan_result"].AsString())
	assert.Equal(t, int64(3), attrs["opname.bulk.lines"].AsInt64())
	assert.Equal(t, "POST /sessions/:sessionId/scans", spans[0].Name())
}

func TestRateLimit(t *testing.T) {
	limit, err := RateLimit("2-M")
	require.NoError(t, err)

	router := newRouter()
	router.GET("/limited", limit, func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	_, err = RateLimit("lots")
	assert.Error(t, err)
}

func TestBindAndValidate(t *testing.T) {
	type body struct {
		Action string `json:"action" binding:"required,action_code"`
	}

	router := newRouter()
	router.POST("/bind", func(c *gin.Context) {
		var b body
		if appErr := BindAndValidate(c, &b); appErr != nil {
			NewErrorResponder(c, nil).RespondWithAppError(appErr)
			return
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bind", strings.NewReader(`{"action":"Sold Store"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"action":"must be a lowercase action code"`)
}

func TestValidateStruct_IMEITag(t *testing.T) {
	type scan struct {
		IMEI string `json:"imei" binding:"required,imei" validate:"required,imei"`
	}

	assert.Nil(t, ValidateStruct(scan{IMEI: "356938035643809"}))

	appErr := ValidateStruct(scan{IMEI: "35693803\x0056438"})
	require.NotNil(t, appErr)
	assert.Equal(t, "must be at most 64 printable characters", appErr.Details["imei"])

	appErr = ValidateStruct(scan{IMEI: strings.Repeat("9", 65)})
	require.NotNil(t, appErr)
}
