package observability

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	loginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panel",
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts by result code.",
	}, []string{"code"})

	openTokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panel",
		Subsystem: "open",
		Name:      "token_requests_total",
		Help:      "Open client token requests by outcome.",
	}, []string{"outcome"})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panel",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method and status.",
	}, []string{"method", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "panel",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{loginAttempts, openTokensIssued, httpRequests, httpDuration}
}

func registerCollectors(reg prometheus.Registerer) (func(), error) {
	var registered []prometheus.Collector
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			for _, r := range registered {
				reg.Unregister(r)
			}
			return nil, err
		}
		registered = append(registered, c)
	}
	return func() {
		for _, r := range registered {
			reg.Unregister(r)
		}
	}, nil
}

// ObserveLogin counts a login or second-factor login by its result code.
func ObserveLogin(code int) {
	loginAttempts.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ObserveOpenToken counts an open-client token request.
func ObserveOpenToken(granted bool) {
	outcome := "granted"
	if !granted {
		outcome = "rejected"
	}
	openTokensIssued.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one finished HTTP request.
func ObserveHTTP(method string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
