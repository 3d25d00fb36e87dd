package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/opname-service/pkg/logging"
)

// ContextKeyPrincipal holds the authenticated caller in the gin context
const ContextKeyPrincipal = "principal"

// Principal is an authenticated caller as reported by the identity provider.
type Principal struct {
	ID    string
	Name  string
	Roles []string
}

// TokenVerifier turns a bearer token into a Principal.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// Authenticate requires a valid bearer token on every request it guards.
func Authenticate(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			NewErrorResponder(c, nil).RespondUnauthorized("missing bearer token")
			return
		}

		principal, err := verifier.Verify(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			NewErrorResponder(c, nil).RespondUnauthorized("invalid token")
			return
		}

		c.Set(ContextKeyPrincipal, principal)
		c.Request = c.Request.WithContext(logging.ContextWithUserID(c.Request.Context(), principal.ID))
		c.Next()
	}
}

// GetPrincipal returns the caller set by Authenticate
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(ContextKeyPrincipal)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok && p != nil
}
