package model

import "errors"

// ErrNotInitialized is returned by a credential store that holds no record yet.
var ErrNotInitialized = errors.New("admin credential not initialized")

// AdminCredential is the single persisted admin identity document.
type AdminCredential struct {
	Username            string            `json:"username"`
	Password            string            `json:"password"`
	Retries             int               `json:"retries"`
	LastAttemptAt       int64             `json:"lastlogon"`
	LastIP              string            `json:"lastip"`
	LastAddress         string            `json:"lastaddr"`
	Platform            string            `json:"platform"`
	Tokens              map[string]string `json:"tokens"`
	Token               string            `json:"token"`
	TwoFactorSecret     string            `json:"twoFactorSecret"`
	TwoFactorActivated  bool              `json:"twoFactorActivated"`
	IsTwoFactorChecking bool              `json:"isTwoFactorChecking"`
}

// document mirrors AdminCredential on the wire and also accepts the legacy
// misspelled activation flag written by older panels.
type document struct {
	AdminCredential
	LegacyActivated bool `json:"twoFactorActived,omitempty"`
}

// Complete reports whether both username and password are present.
func (c AdminCredential) Complete() bool {
	return c.Username != "" && c.Password != ""
}

// IsFactoryDefault reports the admin/admin pair that must never be served.
func (c AdminCredential) IsFactoryDefault() bool {
	return c.Username == "admin" && c.Password == "admin"
}

// Clone returns a copy with its own token map.
func (c AdminCredential) Clone() AdminCredential {
	out := c
	if c.Tokens != nil {
		out.Tokens = make(map[string]string, len(c.Tokens))
		for k, v := range c.Tokens {
			out.Tokens[k] = v
		}
	}
	return out
}

// Patch lists every field a write may touch. A nil field keeps the stored
// value; a non-nil field overwrites it, so a pointer to "" clears it.
// Tokens sets individual platform keys and leaves the others alone.
type Patch struct {
	Username            *string
	Password            *string
	Retries             *int
	LastAttemptAt       *int64
	LastIP              *string
	LastAddress         *string
	Platform            *string
	Tokens              map[string]string
	Token               *string
	TwoFactorSecret     *string
	TwoFactorActivated  *bool
	IsTwoFactorChecking *bool
}

// Apply merges p into c and returns the result. c is not modified.
func (p Patch) Apply(c AdminCredential) AdminCredential {
	out := c.Clone()
	setString(&out.Username, p.Username)
	setString(&out.Password, p.Password)
	if p.Retries != nil {
		out.Retries = *p.Retries
	}
	if p.LastAttemptAt != nil {
		out.LastAttemptAt = *p.LastAttemptAt
	}
	setString(&out.LastIP, p.LastIP)
	setString(&out.LastAddress, p.LastAddress)
	setString(&out.Platform, p.Platform)
	if len(p.Tokens) > 0 {
		if out.Tokens == nil {
			out.Tokens = make(map[string]string, len(p.Tokens))
		}
		for k, v := range p.Tokens {
			out.Tokens[k] = v
		}
	}
	setString(&out.Token, p.Token)
	setString(&out.TwoFactorSecret, p.TwoFactorSecret)
	if p.TwoFactorActivated != nil {
		out.TwoFactorActivated = *p.TwoFactorActivated
	}
	if p.IsTwoFactorChecking != nil {
		out.IsTwoFactorChecking = *p.IsTwoFactorChecking
	}
	return out
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// String, Int, Int64 and Bool build Patch field values.
func String(v string) *string { return &v }
func Int(v int) *int          { return &v }
func Int64(v int64) *int64    { return &v }
func Bool(v bool) *bool       { return &v }

// LoginStatus is the outcome recorded for one login attempt.
type LoginStatus string

const (
	LoginSuccess LoginStatus = "success"
	LoginFail    LoginStatus = "fail"
)

// LoginLogEntry is one audit record of a login attempt.
type LoginLogEntry struct {
	ID        uint        `json:"id"`
	Timestamp int64       `json:"timestamp"`
	IP        string      `json:"ip"`
	Address   string      `json:"address"`
	Platform  string      `json:"platform"`
	Status    LoginStatus `json:"status"`
}

// NotificationInfo is the saved notification channel. Type selects the channel,
// the remaining keys are channel specific.
type NotificationInfo struct {
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields,omitempty"`
}

// LogRemoveFrequency is the retention, in days, for task logs. Zero disables removal.
type LogRemoveFrequency struct {
	Frequency int `json:"frequency"`
}

// Logger provides the minimal logging contract required by the auth domain.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}
