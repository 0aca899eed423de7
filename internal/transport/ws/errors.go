package ws

import "errors"

var (
	// ErrSessionShutdown is emitted when the server requests a session shutdown.
	ErrSessionShutdown = errors.New("websocket session shutdown")
	// ErrSessionIdle closes a session whose client stopped answering pings.
	ErrSessionIdle = errors.New("websocket session idle")
)
