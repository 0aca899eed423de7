package observability

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config captures observability toggles.
type Config struct {
	Enabled bool
	// Registerer receives the panel collectors. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// ShutdownFunc allows callers to tear down any observability exporters.
type ShutdownFunc func(context.Context) error

var (
	loggerMu             sync.RWMutex
	instrumentationLog   *slog.Logger
	instrumentationState Config
)

func currentLogger() (*slog.Logger, Config) {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return instrumentationLog, instrumentationState
}

// Setup installs the span logger and registers the panel metrics.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	loggerMu.Lock()
	instrumentationLog = logger
	instrumentationState = cfg
	loggerMu.Unlock()

	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var unregister func()
	if cfg.Enabled {
		var err error
		unregister, err = registerCollectors(reg)
		if err != nil {
			return nil, err
		}
	}

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBSERVABILITY] 指标已启用")
		} else {
			logger.InfoContext(ctx, "[OBSERVABILITY] 已禁用")
		}
	}

	return func(context.Context) error {
		if unregister != nil {
			unregister()
		}
		loggerMu.Lock()
		instrumentationLog = nil
		instrumentationState = Config{}
		loggerMu.Unlock()
		return nil
	}, nil
}
