package recorder

//go:generate mockgen -source=recorder.go -destination=mocks/mocks.go -package=mocks Sink

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
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/metrics"
	"audittrail/pkg/platform/audit/recorder/mocks"
	"audittrail/pkg/platform/audit/store/memory"
)

const firefoxOnLinux = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"

func newEvent(t *testing.T) *audit.Event {
	t.Helper()
	user, err := audit.NewUserContext(42, "jdoe", "jdoe@example.com", "Jane Doe", []string{"teacher"},
		audit.WithIPAddress("192.168.1.10"), audit.WithUserAgent(firefoxOnLinux))
	require.NoError(t, err)
	event, err := audit.FolderDeleted(user, 8, "Archive", nil, audit.WithSessionID("sess-1"))
	require.NoError(t, err)
	return event
}

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func TestRecorder_SyncSavesAndLogs(t *testing.T) {
	store := memory.New()
	var buf bytes.Buffer
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	rec := New(store, WithLogger(jsonLogger(&buf)), WithMetrics(m))

	event := newEvent(t)
	rec.Record(context.Background(), event)

	require.True(t, event.HasID())
	total, err := store.CountTotal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.EventsPersisted.WithLabelValues("high")))

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "WARN", line["level"], "high risk events log at warn")
	assert.Equal(t, event.Description(), line["msg"])
	assert.Equal(t, "audit", line["log_type"])
	assert.Equal(t, "folder_deleted", line["event_type"])
	assert.Equal(t, "high", line["risk_level"])
	assert.Equal(t, "folder:8", line["resource"])
	assert.Equal(t, "192.168.1.10", line["ip_address"])
	assert.Equal(t, "sess-1", line["session_id"])
	assert.Contains(t, line["device"], "Firefox")
}

func TestRecorder_SinkFailureIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	sink.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("database is down"))

	var buf bytes.Buffer
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	rec := New(sink, WithLogger(jsonLogger(&buf)), WithMetrics(m))

	assert.NotPanics(t, func() { rec.Record(context.Background(), newEvent(t)) })
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.PersistFailures.WithLabelValues("high")))

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "ERROR", lines[0]["level"])
	assert.Equal(t, "database is down", lines[0]["error"])
	assert.Equal(t, "audit", lines[0]["log_type"])
}

func TestRecorder_NilEventIsIgnored(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	New(sink).Record(context.Background(), nil)
}

func TestRecorder_AsyncDrainsOnClose(t *testing.T) {
	store := memory.New()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	rec := New(store, WithAsyncBuffer(10), WithMetrics(m))

	for range 5 {
		rec.Record(context.Background(), newEvent(t))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rec.Close(ctx))
	require.NoError(t, rec.Close(ctx), "close is idempotent")

	total, err := store.CountTotal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Equal(t, 5.0, promtestutil.ToFloat64(m.EventsEnqueued))
	assert.Zero(t, promtestutil.ToFloat64(m.EventsDropped))
}

func TestRecorder_AsyncIgnoresCallerCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	saved := make(chan error, 1)
	sink.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ *audit.Event) error {
		saved <- ctx.Err()
		return nil
	})

	rec := New(sink, WithAsyncBuffer(1))
	ctx, cancel := context.WithCancel(context.Background())
	rec.Record(ctx, newEvent(t))
	cancel()

	require.NoError(t, rec.Close(context.Background()))
	assert.NoError(t, <-saved)
}

func TestRecorder_AsyncQueuesACopy(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	release := make(chan struct{})
	saved := make(chan *audit.Event, 1)
	sink.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e *audit.Event) error {
		<-release
		e.SetID(99)
		saved <- e
		return nil
	})

	rec := New(sink, WithAsyncBuffer(1))
	event := newEvent(t)
	rec.Record(context.Background(), event)

	event.AddDetail("reason", "cleanup")
	close(release)
	require.NoError(t, rec.Close(context.Background()))

	stored := <-saved
	assert.NotSame(t, event, stored)
	assert.False(t, event.HasID(), "the caller's event is never touched by the worker")
	assert.NotContains(t, stored.Details(), "reason")
	assert.Equal(t, event.EventType(), stored.EventType())
	assert.Equal(t, event.Description(), stored.Description())
}

func TestRecorder_FullBufferDrops(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	first := sink.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, *audit.Event) error {
		close(started)
		<-release
		return nil
	})
	sink.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil).After(first)

	var buf bytes.Buffer
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	rec := New(sink, WithAsyncBuffer(1), WithLogger(jsonLogger(&buf)), WithMetrics(m))

	rec.Record(context.Background(), newEvent(t))
	<-started
	rec.Record(context.Background(), newEvent(t))
	rec.Record(context.Background(), newEvent(t))
	close(release)

	require.NoError(t, rec.Close(context.Background()))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.EventsDropped))
	assert.Contains(t, buf.String(), "audit buffer full")
}

func TestRecorder_RecordAfterCloseDrops(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	rec := New(sink, WithAsyncBuffer(4), WithMetrics(m))
	require.NoError(t, rec.Close(context.Background()))

	rec.Record(context.Background(), newEvent(t))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.EventsDropped))
}
