package auth

import (
	"encoding/base32"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"panel-server-go/internal/domain/auth/model"
)

const (
	totpPeriod = 30
	totpSkew   = 1
)

// TOTPVerifier generates enrollment secrets and checks time-based one-time codes.
type TOTPVerifier struct {
	issuer string
	now    func() time.Time
}

// NewTOTPVerifier builds a verifier labelling enrollments with issuer.
func NewTOTPVerifier(issuer string) *TOTPVerifier {
	if issuer == "" {
		issuer = "panel"
	}
	return &TOTPVerifier{issuer: issuer, now: time.Now}
}

// Enrollment is a pending second factor: the secret and its otpauth:// URI.
type Enrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// GenerateSecret creates a fresh random secret for username.
func (v *TOTPVerifier) GenerateSecret(username string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.issuer,
		AccountName: username,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// BuildEnrollmentURI renders the otpauth:// URI for an existing secret.
func (v *TOTPVerifier) BuildEnrollmentURI(username, issuer, secret string) (string, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(strings.TrimRight(secret, "=")))
	if err != nil {
		return "", err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: username,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		Secret:      raw,
	})
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// Verify reports whether code is valid for secret in the current or an adjacent step.
func (v *TOTPVerifier) Verify(code, secret string) bool {
	if code == "" || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, v.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// SecondFactorPolicy decides whether the second factor may be turned off.
type SecondFactorPolicy interface {
	AllowDeactivation(cred model.AdminCredential, code string) bool
}

// PermissiveDeactivation lets an authenticated admin turn the second factor
// off without presenting a code.
type PermissiveDeactivation struct{}

func (PermissiveDeactivation) AllowDeactivation(model.AdminCredential, string) bool { return true }

// CodeRequiredDeactivation only allows deactivation with a currently valid code.
type CodeRequiredDeactivation struct {
	Verifier *TOTPVerifier
}

func (p CodeRequiredDeactivation) AllowDeactivation(cred model.AdminCredential, code string) bool {
	return p.Verifier != nil && p.Verifier.Verify(code, cred.TwoFactorSecret)
}
