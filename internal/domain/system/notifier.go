package system

import (
	"context"
	"fmt"
	"sync"

	"panel-server-go/internal/domain/auth/model"
)

// SettingsLoader reads the saved notification channel.
type SettingsLoader interface {
	NotificationMode(ctx context.Context) (model.NotificationInfo, error)
}

// LogNotifier delivers notifications to the server log through the saved
// channel type. Channel specific delivery plugs in behind the same methods.
type LogNotifier struct {
	settings SettingsLoader
	logger   Logger

	mu   sync.Mutex
	sent int
}

// NewLogNotifier creates a notifier. settings may be nil before storage is ready.
func NewLogNotifier(settings SettingsLoader, logger Logger) *LogNotifier {
	return &LogNotifier{settings: settings, logger: logger}
}

// Bind sets the source of the saved channel once Settings exists.
func (n *LogNotifier) Bind(settings SettingsLoader) {
	n.mu.Lock()
	n.settings = settings
	n.mu.Unlock()
}

// Notify sends a message through the saved channel. Without a channel the
// message is dropped.
func (n *LogNotifier) Notify(ctx context.Context, title, content string) error {
	n.mu.Lock()
	settings := n.settings
	n.mu.Unlock()
	if settings == nil {
		return nil
	}
	info, err := settings.NotificationMode(ctx)
	if err != nil {
		return err
	}
	if info.Type == "" {
		return nil
	}
	n.deliver(info, title, content)
	return nil
}

// TestNotify sends a message through info without saving it.
func (n *LogNotifier) TestNotify(_ context.Context, info model.NotificationInfo, title, content string) error {
	if info.Type == "" {
		return fmt.Errorf("notification type required")
	}
	n.deliver(info, title, content)
	return nil
}

func (n *LogNotifier) deliver(info model.NotificationInfo, title, content string) {
	n.mu.Lock()
	n.sent++
	n.mu.Unlock()
	n.logger.Info("[%s] %s: %s", info.Type, title, content)
}

// Sent reports how many messages were delivered.
func (n *LogNotifier) Sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent
}
