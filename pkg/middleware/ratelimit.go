package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/wms-platform/opname-service/pkg/errors"
)

// RateLimit throttles requests per authenticated caller, falling back to the
// client IP. rate uses the limiter format, e.g. "600-M".
func RateLimit(rate string) (gin.HandlerFunc, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", rate, err)
	}

	instance := limiter.New(memory.NewStore(), parsed)

	return mgin.NewMiddleware(instance,
		mgin.WithKeyGetter(func(c *gin.Context) string {
			if p, ok := GetPrincipal(c); ok {
				return "actor:" + p.ID
			}
			return "ip:" + c.ClientIP()
		}),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			AbortWithAppError(c, errors.ErrRateLimitExceeded())
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			AbortWithAppError(c, errors.NewAppError(errors.CodeInternalError, "rate limiter failure", http.StatusInternalServerError).Wrap(err))
		}),
	), nil
}
