package httptransport

import (
	"context"
	"errors"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"

	"panel-server-go/internal/domain/auth"
	openmodel "panel-server-go/internal/domain/open/model"
	"panel-server-go/internal/utils"
)

const (
	// ContextOpenClient is the gin context key of the authenticated open client.
	ContextOpenClient = "openClient"
	privateAddress    = "内网IP"
)

// Authorizer checks admin session tokens.
type Authorizer interface {
	Authorize(ctx context.Context, token, platform string) error
}

// TokenValidator resolves open-client tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (openmodel.Client, error)
}

// RequestInfo describes the caller of c for the login flows.
func RequestInfo(c *gin.Context) auth.RequestContext {
	ip := c.ClientIP()
	return auth.RequestContext{
		IP:       ip,
		Address:  addressOf(ip),
		Platform: utils.DetectPlatform(c.GetHeader("User-Agent")),
	}
}

// addressOf labels private and loopback addresses. Public addresses get no label.
func addressOf(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() {
		return privateAddress
	}
	return ""
}

// BearerToken extracts the token from the Authorization header, falling back
// to the token query parameter used by websocket clients.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
			return strings.TrimSpace(header[7:])
		}
		return strings.TrimSpace(header)
	}
	return c.Query("token")
}

// AdminAuth admits requests carrying the admin token of the caller's platform.
func AdminAuth(authorizer Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			AbortUnauthorized(c)
			return
		}
		platform := utils.DetectPlatform(c.GetHeader("User-Agent"))
		if err := authorizer.Authorize(c.Request.Context(), token, platform); err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				_ = c.Error(err)
			}
			AbortUnauthorized(c)
			return
		}
		c.Next()
	}
}

// OpenAuth admits requests carrying a token issued to an open client.
func OpenAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			AbortUnauthorized(c)
			return
		}
		client, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			AbortUnauthorized(c)
			return
		}
		c.Set(ContextOpenClient, client)
		c.Next()
	}
}
