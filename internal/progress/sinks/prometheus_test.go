package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/research-scraper/internal/progress"
	"github.com/JakeFAU/research-scraper/internal/scraper"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	base := progress.Event{RunID: "r1", TaskID: "t1", TS: now, Site: "example.com"}
	fetching := base
	fetching.Stage = progress.StageFetching
	fetched := base
	fetched.Stage = progress.StageFetched
	fetched.HTTPStatus = 200
	fetched.Bytes = 1024
	fetched.Dur = 200 * time.Millisecond

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{fetching, fetching, fetched}))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.inFlight))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.stages.WithLabelValues("fetching")))
	assert.InDelta(t, 1.0, testutil.ToFloat64(sink.fetchTotal.WithLabelValues("example.com", "2xx")), 1e-9)
	assert.InDelta(t, 1024.0, testutil.ToFloat64(sink.fetchBytes.WithLabelValues("example.com")), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(sink.fetchDuration, "scraper_fetch_duration_seconds"))

	done := base
	done.Stage = progress.StageDone
	done.Status = scraper.StatusOK
	done.Dur = time.Second
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{done, done}))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.inFlight))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.taskRuntime, "scraper_task_runtime_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkWritesFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	evt := progress.Event{
		RunID:  "r1",
		TaskID: "t1",
		Stage:  progress.StageDone,
		Status: scraper.StatusTimeout,
		Note:   "3 attempts",
		TS:     time.Now(),
	}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{evt}))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "t1", fields["task_id"])
	assert.Equal(t, "timeout", fields["status"])
	assert.Equal(t, "3 attempts", fields["note"])
	assert.NotContains(t, fields, "bytes")
}
