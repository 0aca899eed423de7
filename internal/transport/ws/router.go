package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"panel-server-go/internal/platform/observability"
)

// Logger is the tagged logging contract used by the websocket transport.
type Logger interface {
	InfoTag(tag string, msg string, args ...any)
	WarnTag(tag string, msg string, args ...any)
	ErrorTag(tag string, msg string, args ...any)
}

// Router upgrades HTTP requests to websocket sessions registered in the hub.
type Router struct {
	hub    *Hub
	logger Logger

	upgrader *websocket.Upgrader
}

// RouterOptions configures the websocket router.
type RouterOptions struct {
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
}

// NewRouter constructs a websocket router.
func NewRouter(hub *Hub, logger Logger, opts RouterOptions) *Router {
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	upgrader := &websocket.Upgrader{
		HandshakeTimeout: timeout,
		CheckOrigin:      opts.CheckOrigin,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	return &Router{
		hub:      hub,
		logger:   logger,
		upgrader: upgrader,
	}
}

// Handle upgrades the HTTP connection and launches a new websocket session.
// The session outlives the request, so it is rooted in a fresh context.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	spanCtx, spanEnd := observability.StartSpan(req.Context(), "transport.websocket", "handle")
	var spanErr error
	defer func() {
		spanEnd(spanErr)
	}()

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		spanErr = err
		observability.RecordMetric(spanCtx, "websocket.upgrade.error", 1, map[string]string{
			"component": "transport.websocket",
		})
		if r.logger != nil {
			r.logger.ErrorTag("WebSocket", "握手失败: %v", err)
		}
		return
	}

	wsConn := NewConnection(uuid.NewString(), conn)
	session := NewSession(contextWithoutRequest(spanCtx), wsConn, r.logger)
	r.hub.Register(session)
	if r.logger != nil {
		r.logger.InfoTag("WebSocket", "建立连接 id=%s remote=%s", session.ID(), req.RemoteAddr)
	}

	go session.Run(func(runErr error) {
		r.hub.Unregister(session.ID())
		if runErr != nil && r.logger != nil {
			r.logger.WarnTag("WebSocket", "会话 %s 异常结束: %v", session.ID(), runErr)
		}
	})
}

func isNormalClose(err error) bool {
	if errors.Is(err, ErrSessionShutdown) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
