package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"panel-server-go/internal/utils"
)

const (
	sessionDaysWithSecondFactor = 30
	sessionDaysDefault          = 3
)

// TokenIssuer signs admin session tokens with HS384.
type TokenIssuer struct {
	secretKey []byte
	now       func() time.Time
}

// IssuedToken is a freshly signed session token and its lifetime.
type IssuedToken struct {
	Token         string
	ExpiresInDays int
}

// NewTokenIssuer builds an issuer using the server secret.
func NewTokenIssuer(secretKey string) (*TokenIssuer, error) {
	if secretKey == "" {
		return nil, errors.New("token secret is empty")
	}
	return &TokenIssuer{secretKey: []byte(secretKey), now: time.Now}, nil
}

// Issue signs a token for platform carrying a random 50-100 character payload.
// It lives 30 days when the second factor is active and 3 days otherwise.
func (ti *TokenIssuer) Issue(platform string, secondFactorActive bool) (IssuedToken, error) {
	data, err := utils.RandomString(50, 100)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("generate token payload: %w", err)
	}

	days := sessionDaysDefault
	if secondFactorActive {
		days = sessionDaysWithSecondFactor
	}

	now := ti.now()
	claims := jwt.MapClaims{
		"data":     data,
		"platform": platform,
		"iat":      now.Unix(),
		"exp":      now.Add(time.Duration(days) * 24 * time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString(ti.secretKey)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return IssuedToken{Token: signed, ExpiresInDays: days}, nil
}

// Verify checks the signature, algorithm and expiry of token.
func (ti *TokenIssuer) Verify(token string) error {
	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) {
		return ti.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS384.Alg()}),
		jwt.WithTimeFunc(ti.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return errors.New("invalid token")
	}
	return nil
}
