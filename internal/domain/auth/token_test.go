package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenIssuer_RequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer("")
	assert.Error(t, err)
}

func TestTokenIssuer_IssueClaims(t *testing.T) {
	issuer, err := NewTokenIssuer("server-secret")
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer.now = fixedClock(now)

	tests := []struct {
		name   string
		active bool
		days   int
	}{
		{name: "second factor active", active: true, days: 30},
		{name: "second factor inactive", active: false, days: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issued, err := issuer.Issue("desktop", tt.active)
			require.NoError(t, err)
			assert.Equal(t, tt.days, issued.ExpiresInDays)

			claims := jwt.MapClaims{}
			parsed, _, err := jwt.NewParser().ParseUnverified(issued.Token, claims)
			require.NoError(t, err)
			assert.Equal(t, "HS384", parsed.Method.Alg())

			data, _ := claims["data"].(string)
			assert.GreaterOrEqual(t, len(data), 50)
			assert.LessOrEqual(t, len(data), 100)
			assert.Equal(t, "desktop", claims["platform"])

			exp, err := claims.GetExpirationTime()
			require.NoError(t, err)
			assert.Equal(t, now.Add(time.Duration(tt.days)*24*time.Hour).Unix(), exp.Unix())

			assert.NoError(t, issuer.Verify(issued.Token))
		})
	}
}

func TestTokenIssuer_TokensAreUnique(t *testing.T) {
	issuer, err := NewTokenIssuer("server-secret")
	require.NoError(t, err)

	a, err := issuer.Issue("desktop", false)
	require.NoError(t, err)
	b, err := issuer.Issue("desktop", false)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, b.Token)
}

func TestTokenIssuer_VerifyRejects(t *testing.T) {
	issuer, err := NewTokenIssuer("server-secret")
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer.now = fixedClock(now)

	issued, err := issuer.Issue("mobile", false)
	require.NoError(t, err)

	other, err := NewTokenIssuer("another-secret")
	require.NoError(t, err)
	other.now = issuer.now
	assert.Error(t, other.Verify(issued.Token), "wrong key")

	issuer.now = fixedClock(now.Add(4 * 24 * time.Hour))
	assert.Error(t, issuer.Verify(issued.Token), "expired")

	hs256, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	issuer.now = fixedClock(now)
	assert.Error(t, issuer.Verify(hs256), "wrong algorithm")

	assert.Error(t, issuer.Verify(strings.Repeat("x", 20)))
}
