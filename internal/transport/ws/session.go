package ws

import (
	"context"
	"sync/atomic"
)

// Session is one subscribed panel client. Clients only listen, so the read
// loop just waits for the peer to go away.
type Session struct {
	conn   *Connection
	logger Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	closed atomic.Bool
}

// NewSession constructs a managed websocket session.
func NewSession(parent context.Context, conn *Connection, logger Logger) *Session {
	sessionCtx, cancel := context.WithCancelCause(parent)
	return &Session{
		conn:   conn,
		logger: logger,
		ctx:    sessionCtx,
		cancel: cancel,
	}
}

// Context returns the session context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// ID exposes the session identifier.
func (s *Session) ID() string {
	return s.conn.ID()
}

// Send writes one text frame.
func (s *Session) Send(data []byte) error {
	return s.conn.WriteMessage(textMessage, data)
}

// Run reads until the peer disconnects and invokes onDone once exiting.
func (s *Session) Run(onDone func(error)) {
	var runErr error
	defer func() {
		s.Close(runErr)
		if onDone != nil {
			onDone(runErr)
		}
	}()

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if !isNormalClose(err) && s.ctx.Err() == nil {
				runErr = err
			}
			return
		}
	}
}

// Close terminates the session.
func (s *Session) Close(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel(reason)
	if err := s.conn.Close(); err != nil && s.logger != nil {
		s.logger.WarnTag("WebSocket", "会话 %s 关闭连接失败: %v", s.ID(), err)
	}
}
