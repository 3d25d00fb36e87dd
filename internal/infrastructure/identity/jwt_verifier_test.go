package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier("s3cret", "backoffice")

	token, err := v.Issue("user-7", "Store Manager", []string{"approver"}, time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-7", p.ID)
	assert.Equal(t, "Store Manager", p.Name)
	assert.Equal(t, []string{"approver"}, p.Roles)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier("s3cret", "backoffice")

	expired, err := v.Issue("user-7", "", nil, -time.Minute)
	require.NoError(t, err)
	otherKey, err := NewJWTVerifier("other", "backoffice").Issue("user-7", "", nil, time.Hour)
	require.NoError(t, err)
	otherIssuer, err := NewJWTVerifier("s3cret", "elsewhere").Issue("user-7", "", nil, time.Hour)
	require.NoError(t, err)
	noSubject, err := v.Issue("", "", nil, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-7"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      expired,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"no subject":   noSubject,
		"alg none":     none,
		"garbage":      "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
