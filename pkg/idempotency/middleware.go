package idempotency

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/wms-platform/opname-service/pkg/errors"
	"github.com/wms-platform/opname-service/pkg/middleware"
)

// Error codes rendered by the middleware
const (
	CodeKeyRequired        = "IDEMPOTENCY_KEY_REQUIRED"
	CodeKeyInvalid         = "IDEMPOTENCY_KEY_INVALID"
	CodeParameterMismatch  = "IDEMPOTENCY_PARAMETER_MISMATCH"
	CodeConcurrentRequest  = "IDEMPOTENCY_CONCURRENT_REQUEST"
	CodeStorageUnavailable = "IDEMPOTENCY_STORAGE_UNAVAILABLE"
)

// responseWriter tees the handler's output so it can be stored
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware replays the stored response for a repeated Idempotency-Key and
// rejects reuse of a key with different request parameters.
func Middleware(config *Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.OnlyMutating && !isMutatingMethod(c.Request.Method) {
			c.Next()
			return
		}

		key := NormalizeKey(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			if config.RequireKey {
				middleware.AbortWithAppError(c, errors.NewAppError(CodeKeyRequired, ErrKeyRequired.Error(), http.StatusBadRequest))
				return
			}
			c.Next()
			return
		}
		if err := ValidateKey(key, config.MaxKeyLength); err != nil {
			middleware.AbortWithAppError(c, errors.NewAppError(CodeKeyInvalid, err.Error(), http.StatusBadRequest))
			return
		}

		process(c, config, key)
	}
}

func process(c *gin.Context, config *Config, key string) {
	ctx := c.Request.Context()
	log := config.logger().With("key", key, "service", config.ServiceName, "path", c.Request.URL.Path)

	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			appErr := middleware.PayloadTooLarge(err)
			if appErr == nil {
				appErr = errors.ErrBadRequest("failed to read request body")
			}
			middleware.AbortWithAppError(c, appErr)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
	}
	fingerprint := ComputeFingerprint(c.Request.Method, c.Request.URL.Path, body)

	userID := ""
	if config.UserIDExtractor != nil {
		userID = config.UserIDExtractor(c)
	}

	now := time.Now().UTC()
	candidate := &Key{
		ID:                 primitive.NewObjectID(),
		Key:                key,
		ServiceID:          config.ServiceName,
		UserID:             userID,
		RequestPath:        c.Request.URL.Path,
		RequestMethod:      c.Request.Method,
		RequestFingerprint: fingerprint,
		LockedAt:           &now,
		CreatedAt:          now,
		ExpiresAt:          now.Add(config.RetentionPeriod),
	}

	stored, isNew, err := config.Repository.AcquireLock(ctx, candidate)
	if err != nil {
		log.Error("Failed to acquire idempotency lock", "error", err)
		config.Metrics.recordStorageError(config.ServiceName, "acquire_lock")
		middleware.AbortWithAppError(c, errors.NewAppError(CodeStorageUnavailable, "idempotency storage is temporarily unavailable", http.StatusServiceUnavailable).Wrap(err))
		return
	}

	if !isNew {
		if stored.RequestFingerprint != fingerprint {
			log.Warn("Idempotency parameter mismatch")
			config.Metrics.record(config.ServiceName, c.Request.Method, "mismatch")
			middleware.AbortWithAppError(c, errors.NewAppError(CodeParameterMismatch,
				"request parameters differ from the original request with this idempotency key", http.StatusUnprocessableEntity))
			return
		}

		if stored.IsCompleted() {
			log.Info("Idempotency cache hit", "statusCode", stored.ResponseCode)
			config.Metrics.record(config.ServiceName, c.Request.Method, "hit")
			for k, v := range stored.ResponseHeaders {
				c.Header(k, v)
			}
			c.Header(HeaderReplayed, "true")
			contentType := stored.ResponseHeaders["Content-Type"]
			if contentType == "" {
				contentType = "application/json; charset=utf-8"
			}
			c.Data(stored.ResponseCode, contentType, stored.ResponseBody)
			c.Abort()
			return
		}

		if stored.IsLocked() && time.Since(*stored.LockedAt) < config.LockTimeout {
			log.Warn("Concurrent idempotency request", "lockAge", time.Since(*stored.LockedAt))
			config.Metrics.record(config.ServiceName, c.Request.Method, "concurrent")
			middleware.AbortWithAppError(c, errors.NewAppError(CodeConcurrentRequest,
				"a request with this idempotency key is currently being processed", http.StatusConflict))
			return
		}

		log.Info("Stale idempotency lock, taking over")
		if err := config.Repository.TakeOver(ctx, stored.ID); err != nil {
			config.Metrics.recordStorageError(config.ServiceName, "take_over")
			middleware.AbortWithAppError(c, errors.NewAppError(CodeStorageUnavailable, "idempotency storage is temporarily unavailable", http.StatusServiceUnavailable).Wrap(err))
			return
		}
	}

	config.Metrics.record(config.ServiceName, c.Request.Method, "miss")

	writer := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
	c.Writer = writer
	c.Next()

	status := writer.Status()
	if status >= http.StatusInternalServerError {
		// Failed attempts stay retryable under the same key.
		if err := config.Repository.ReleaseLock(ctx, stored.ID); err != nil {
			log.Error("Failed to release idempotency lock", "error", err)
			config.Metrics.recordStorageError(config.ServiceName, "release_lock")
		}
		return
	}

	responseBody := writer.body.Bytes()
	if len(responseBody) > config.MaxResponseSize {
		log.Warn("Response too large to cache", "size", len(responseBody), "maxSize", config.MaxResponseSize)
		responseBody = []byte(fmt.Sprintf(`{"code":"RESPONSE_NOT_CACHED","message":"response too large to cache","size":%d}`, len(responseBody)))
	}

	if err := config.Repository.StoreResponse(ctx, stored.ID, status, responseBody, extractResponseHeaders(c)); err != nil {
		log.Error("Failed to store idempotency response", "error", err)
		config.Metrics.recordStorageError(config.ServiceName, "store_response")
	}
}

func isMutatingMethod(method string) bool {
	return method == http.MethodPost ||
		method == http.MethodPut ||
		method == http.MethodPatch ||
		method == http.MethodDelete
}

func extractResponseHeaders(c *gin.Context) map[string]string {
	headers := make(map[string]string)
	for k, v := range c.Writer.Header() {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return headers
}
