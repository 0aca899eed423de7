package eventbus

import (
	"context"
	"fmt"
	"time"
)

// Notifier delivers a titled message through the configured notification channel.
type Notifier interface {
	Notify(ctx context.Context, title, content string) error
}

// Logger is the printf-style logger used by the handlers.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// LoginNotice renders the user-visible text of a login event.
func LoginNotice(data LoginEventData) string {
	outcome := "登录成功"
	if !data.Success {
		outcome = "登录失败"
	}
	when := time.UnixMilli(data.Timestamp).Format("2006-01-02 15:04:05")
	return fmt.Sprintf("你于%s在 %s %s端 %s，ip地址 %s", when, data.Address, data.Platform, outcome, data.IP)
}

// SetupEventHandlers subscribes the login notifier. Each login event is sent
// to notifier and echoed to the panel socket as a system message.
func SetupEventHandlers(bus *AsyncEventBus, notifier Notifier, logger Logger) error {
	return bus.Subscribe(EventAuthLogin, func(data LoginEventData) {
		content := LoginNotice(data)
		if notifier != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := notifier.Notify(ctx, "登录通知", content); err != nil && logger != nil {
				logger.Warn("登录通知发送失败: %v", err)
			}
		}
		// the bus holds its lock while a synchronous handler runs, so re-publishing must be queued
		bus.PublishAsync(EventSystemMessage, SystemMessageData{Type: MessageLoginNotice, Message: content})
		if logger != nil {
			logger.Info("%s", content)
		}
	})
}
