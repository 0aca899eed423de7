package model

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no client matches a lookup.
	ErrNotFound = errors.New("open client not found")
	// ErrInvalidClient is returned when a client_id/client_secret pair matches no client.
	ErrInvalidClient = errors.New("client_id或client_secret有误")
)

// Token is one bearer token issued to a client.
type Token struct {
	Value      string `json:"value"`
	Expiration int64  `json:"expiration"`
}

// Client is a registered programmatic caller.
type Client struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	Scopes       []string  `json:"scopes"`
	Command      string    `json:"command,omitempty"`
	Schedule     string    `json:"schedule,omitempty"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Tokens       []Token   `json:"tokens"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasToken reports whether value is among the client's issued tokens.
func (c Client) HasToken(value string) (Token, bool) {
	for _, t := range c.Tokens {
		if t.Value == value {
			return t, true
		}
	}
	return Token{}, false
}

// Redacted returns a copy safe for listing: the issued tokens are dropped.
func (c Client) Redacted() Client {
	out := c
	out.Tokens = []Token{}
	return out
}

// Descriptor carries the caller-editable client fields.
type Descriptor struct {
	Name     string   `json:"name"`
	Scopes   []string `json:"scopes"`
	Command  string   `json:"command,omitempty"`
	Schedule string   `json:"schedule,omitempty"`
}
