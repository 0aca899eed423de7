package ws

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"panel-server-go/internal/domain/eventbus"
)

const textMessage = websocket.TextMessage

// Hub tracks the connected panel clients and fans system messages out to them.
type Hub struct {
	logger   Logger
	sessions sync.Map // map[string]*Session
}

// NewHub builds a fresh session hub.
func NewHub(logger Logger) *Hub {
	return &Hub{
		logger: logger,
	}
}

// Register adds a new session to the hub.
func (h *Hub) Register(session *Session) {
	if session == nil {
		return
	}
	h.sessions.Store(session.ID(), session)
}

// Unregister removes the session from the hub.
func (h *Hub) Unregister(id string) {
	if id == "" {
		return
	}
	h.sessions.Delete(id)
}

// Broadcast sends msg to every session. Sessions that fail the write are dropped.
func (h *Hub) Broadcast(msg eventbus.SystemMessageData) {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		if h.logger != nil {
			h.logger.ErrorTag("WebSocket", "编码系统消息失败: %v", err)
		}
		return
	}

	h.sessions.Range(func(key, value any) bool {
		session, ok := value.(*Session)
		if !ok {
			return true
		}
		if err := session.Send(payload); err != nil {
			if h.logger != nil {
				h.logger.WarnTag("WebSocket", "推送到 %s 失败: %v", session.ID(), err)
			}
			session.Close(err)
			h.sessions.Delete(key)
		}
		return true
	})
}

// CloseAll terminates all active sessions.
func (h *Hub) CloseAll(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}

	h.sessions.Range(func(key, value any) bool {
		if session, ok := value.(*Session); ok {
			session.Close(reason)
		}
		h.sessions.Delete(key)
		return true
	})
}

// SweepIdle closes sessions silent for longer than timeout and pings the
// rest. It returns how many sessions were closed.
func (h *Hub) SweepIdle(timeout time.Duration) int {
	closed := 0
	h.sessions.Range(func(key, value any) bool {
		session, ok := value.(*Session)
		if !ok {
			return true
		}
		if session.conn.IsStale(timeout) {
			if h.logger != nil {
				h.logger.InfoTag("WebSocket", "会话 %s 空闲超时，最后活跃于 %s", session.ID(), session.conn.LastActive().Format(time.DateTime))
			}
			session.Close(ErrSessionIdle)
			h.sessions.Delete(key)
			closed++
			return true
		}
		if err := session.conn.Ping(); err != nil {
			if h.logger != nil {
				h.logger.WarnTag("WebSocket", "向 %s 发送心跳失败: %v", session.ID(), err)
			}
			session.Close(err)
			h.sessions.Delete(key)
			closed++
		}
		return true
	})
	return closed
}

// RunIdleSweep runs SweepIdle every interval until ctx is done.
func (h *Hub) RunIdleSweep(ctx context.Context, interval, timeout time.Duration) {
	if interval <= 0 {
		interval = PingInterval
	}
	if timeout <= 0 {
		timeout = IdleTimeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.SweepIdle(timeout)
		}
	}
}

// Count exposes the number of active websocket connections.
func (h *Hub) Count() int {
	n := 0
	h.sessions.Range(func(key, value any) bool {
		n++
		return true
	})
	return n
}
