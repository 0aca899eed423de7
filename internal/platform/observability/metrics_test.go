package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	shutdown, err := Setup(context.Background(), Config{Enabled: true, Registerer: reg}, nil)
	require.NoError(t, err)
	defer shutdown(context.Background())

	before := testutil.ToFloat64(loginAttempts.WithLabelValues("410"))
	ObserveLogin(410)
	assert.Equal(t, before+1, testutil.ToFloat64(loginAttempts.WithLabelValues("410")))

	beforeRejected := testutil.ToFloat64(openTokensIssued.WithLabelValues("rejected"))
	ObserveOpenToken(false)
	assert.Equal(t, beforeRejected+1, testutil.ToFloat64(openTokensIssued.WithLabelValues("rejected")))

	ObserveHTTP("GET", 200, 5*time.Millisecond)
	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["panel_auth_login_attempts_total"])
	assert.True(t, names["panel_http_requests_total"])
	assert.True(t, names["panel_http_request_duration_seconds"])
}

func TestSetup_DisabledSkipsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	shutdown, err := Setup(context.Background(), Config{Enabled: false, Registerer: reg}, nil)
	require.NoError(t, err)
	defer shutdown(context.Background())

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestStartSpan_NoLoggerIsNoop(t *testing.T) {
	ctx, end := StartSpan(context.Background(), "auth", "login")
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() { end(nil) })
}

func decodeRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		records = append(records, rec)
	}
	return records
}

func TestStartSpan_CarriesDomainAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	shutdown, err := Setup(context.Background(), Config{Registerer: prometheus.NewRegistry()}, logger)
	require.NoError(t, err)
	defer shutdown(context.Background())
	buf.Reset()

	ctx, end := StartSpan(context.Background(), "auth", "login", slog.String("platform", "open"))
	id := SpanID(ctx)
	require.NotEmpty(t, id)

	childCtx, endChild := StartSpan(ctx, "open", "issue_token")
	assert.NotEqual(t, id, SpanID(childCtx))
	endChild(errors.New("bad secret"), slog.Bool("granted", false))
	end(nil, slog.Int("code", 200))

	records := decodeRecords(t, &buf)
	require.Len(t, records, 4)

	start := records[0]
	assert.Equal(t, "obs span start", start["msg"])
	assert.Equal(t, "open", start["platform"])
	assert.Equal(t, id, start["span_id"])

	child := records[2]
	assert.Equal(t, "ERROR", child["level"])
	assert.Equal(t, id, child["parent_id"])
	assert.Equal(t, false, child["granted"])
	assert.Equal(t, "bad secret", child["error"])

	last := records[3]
	assert.Equal(t, "obs span end", last["msg"])
	assert.Equal(t, "open", last["platform"])
	assert.Equal(t, float64(200), last["code"])
	assert.NotContains(t, last, "parent_id")
}

func TestRecordMetric_TagsCurrentSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	shutdown, err := Setup(context.Background(), Config{Registerer: prometheus.NewRegistry()}, logger)
	require.NoError(t, err)
	defer shutdown(context.Background())

	ctx, end := StartSpan(context.Background(), "http.server", "/api/user/login")
	buf.Reset()
	RecordMetric(ctx, "http.requests", 1, map[string]string{"status": "200"})
	end(nil)

	records := decodeRecords(t, &buf)
	require.NotEmpty(t, records)
	assert.Equal(t, "obs metric", records[0]["msg"])
	assert.Equal(t, SpanID(ctx), records[0]["span_id"])
	assert.Equal(t, "200", records[0]["status"])
	assert.Empty(t, SpanID(context.Background()))
}
