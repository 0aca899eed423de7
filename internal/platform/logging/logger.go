package logging

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

func (l *Logger) log(level slog.Level, msg string, fields ...any) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var attrs []slog.Attr
	if len(fields) > 0 && fields[0] != nil {
		if fieldsMap, ok := fields[0].(map[string]any); ok {
			keys := make([]string, 0, len(fieldsMap))
			for k := range fieldsMap {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				attrs = append(attrs, slog.Any(k, fieldsMap[k]))
			}
		} else {
			attrs = append(attrs, slog.Any("fields", fields[0]))
		}
	}

	ctx := context.Background()
	l.jsonLogger.LogAttrs(ctx, level, msg, attrs...)
	l.textLogger.LogAttrs(ctx, level, msg, attrs...)
}

func containsFormatPlaceholders(s string) bool {
	return strings.Contains(s, "%")
}

func (l *Logger) emit(level slog.Level, msg string, args ...any) {
	if l == nil || level < l.level {
		return
	}
	if len(args) > 0 && containsFormatPlaceholders(msg) {
		l.log(level, fmt.Sprintf(msg, args...))
		return
	}
	l.log(level, msg, args...)
}

// Debug 记录调试级别日志
func (l *Logger) Debug(msg string, args ...any) { l.emit(slog.LevelDebug, msg, args...) }

// Info 记录信息级别日志
func (l *Logger) Info(msg string, args ...any) { l.emit(slog.LevelInfo, msg, args...) }

// Warn 记录警告级别日志
func (l *Logger) Warn(msg string, args ...any) { l.emit(slog.LevelWarn, msg, args...) }

// Error 记录错误级别日志
func (l *Logger) Error(msg string, args ...any) { l.emit(slog.LevelError, msg, args...) }

// InfoFields 记录带结构化字段的信息日志，msg 不做格式化
func (l *Logger) InfoFields(msg string, fields map[string]any) {
	l.emitFields(slog.LevelInfo, msg, fields)
}

// WarnFields 记录带结构化字段的警告日志，msg 不做格式化
func (l *Logger) WarnFields(msg string, fields map[string]any) {
	l.emitFields(slog.LevelWarn, msg, fields)
}

func (l *Logger) emitFields(level slog.Level, msg string, fields map[string]any) {
	if l == nil || level < l.level {
		return
	}
	if len(fields) == 0 {
		l.log(level, msg)
		return
	}
	l.log(level, msg, fields)
}

// FormatLog 构造带单一分类标签的日志消息，例如 FormatLog("引导", "服务已启动") -> "[引导] 服务已启动"。
// message 已以 "[" 开头时原样返回。
func FormatLog(tag, message string) string {
	tag = strings.TrimSpace(tag)
	message = strings.TrimSpace(message)
	if tag == "" || strings.HasPrefix(message, "[") {
		return message
	}
	return fmt.Sprintf("[%s] %s", tag, message)
}

// DebugTag 记录带分类标签的调试日志
func (l *Logger) DebugTag(tag, msg string, args ...any) {
	l.emit(slog.LevelDebug, FormatLog(tag, msg), args...)
}

// InfoTag 记录带分类标签的信息日志
func (l *Logger) InfoTag(tag, msg string, args ...any) {
	l.emit(slog.LevelInfo, FormatLog(tag, msg), args...)
}

// WarnTag 记录带分类标签的警告日志
func (l *Logger) WarnTag(tag, msg string, args ...any) {
	l.emit(slog.LevelWarn, FormatLog(tag, msg), args...)
}

// ErrorTag 记录带分类标签的错误日志
func (l *Logger) ErrorTag(tag, msg string, args ...any) {
	l.emit(slog.LevelError, FormatLog(tag, msg), args...)
}

// Tagged is a Logger bound to a single tag. It satisfies the printf-style
// logger interfaces used by the domain packages.
type Tagged struct {
	parent *Logger
	tag    string
}

// WithTag returns a view of l that prefixes every message with tag.
func (l *Logger) WithTag(tag string) *Tagged {
	return &Tagged{parent: l, tag: tag}
}

func (t *Tagged) Debug(format string, args ...any) { t.parent.DebugTag(t.tag, format, args...) }
func (t *Tagged) Info(format string, args ...any)  { t.parent.InfoTag(t.tag, format, args...) }
func (t *Tagged) Warn(format string, args ...any)  { t.parent.WarnTag(t.tag, format, args...) }
func (t *Tagged) Error(format string, args ...any) { t.parent.ErrorTag(t.tag, format, args...) }
