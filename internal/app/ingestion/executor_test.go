package ingestion

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
)

type stubMonitor struct {
	level PressureLevel
}

func (m *stubMonitor) Sample(context.Context) MemorySample {
	return MemorySample{Level: m.level}
}

func (m *stubMonitor) Peak() uint64 { return 0 }

func newTestExecutor(dec *stubDecoder, mat *fakeMaterializer, mon memorySampler) *BatchExecutor {
	return NewBatchExecutor(dec, mat, mon, testLogger(), noop.NewTracerProvider().Tracer("test"), nil)
}

func TestProcessBatchAllSucceed(t *testing.T) {
	dec := &stubDecoder{header: []string{"title", "content"}, rows: makeRows(25)}
	mat := &fakeMaterializer{}
	exec := newTestExecutor(dec, mat, &stubMonitor{level: PressureGood})

	result, err := exec.ProcessBatch(context.Background(), uuid.New(), 10)
	require.NoError(t, err)

	assert.Equal(t, 10, result.Pulled())
	assert.Equal(t, 10, result.Created())
	assert.Zero(t, result.Skipped())
	assert.Zero(t, result.Errored())
	assert.False(t, result.Finished(), "the source still has rows")
	assert.Equal(t, 10, result.Processed())
}

func TestProcessBatchExhaustsSource(t *testing.T) {
	dec := &stubDecoder{header: []string{"title", "content"}, rows: makeRows(4)}
	mat := &fakeMaterializer{}
	exec := newTestExecutor(dec, mat, &stubMonitor{level: PressureGood})

	result, err := exec.ProcessBatch(context.Background(), uuid.New(), 10)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Pulled())
	assert.Equal(t, 4, result.Created())
	assert.True(t, result.Finished())
}

func TestProcessBatchEmptySourceFinishesImmediately(t *testing.T) {
	dec := &stubDecoder{header: []string{"title", "content"}}
	exec := newTestExecutor(dec, &fakeMaterializer{}, &stubMonitor{level: PressureGood})

	result, err := exec.ProcessBatch(context.Background(), uuid.New(), 10)
	require.NoError(t, err)

	assert.Zero(t, result.Pulled())
	assert.True(t, result.Finished())
}

func TestProcessBatchSkipsDuplicates(t *testing.T) {
	dec := &stubDecoder{header: []string{"title", "content"}, rows: makeRows(10)}
	mat := &fakeMaterializer{fn: func(rec ingestion.Record) error {
		if rec.Line()%2 == 0 {
			return ingestion.NewDuplicateError(rec.Get("title"))
		}
		return nil
	}}
	exec := newTestExecutor(dec, mat, &stubMonitor{level: PressureGood})

	result, err := exec.ProcessBatch(context.Background(), uuid.New(), 10)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Created())
	assert.Equal(t, 5, result.Skipped())
	assert.Zero(t, result.Errored())
}

func TestProcessBatchRecordsStructuredErrors(t *testing.T) {
	dec := &stubDecoder{header: []string{"title", "content"}, rows: makeRows(10)}
	mat := &fakeMaterializer{fn: func(rec ingestion.Record) error {
		if rec.Line() == 3 {
			return ingestion.NewValidationError("title is required")
		}
		return nil
	}}
	exec := newTestExecutor(dec, mat, &stubMonitor{level: PressureGood})

	result, err := exec.ProcessBatch(context.Background(), uuid.New(), 10)
	require.NoError(t, err)

	require.Len(t, result.Errors(), 1)
	re := result.Errors()[0]
	assert.Equal(t, 3, re.Line)
	assert.Contains(t, re.Message, "title is required")
	assert.Equal(t, []string{"title 2", "content 2"}, re.Sample)
}

func TestProcessBatchCircuitBreaker(t *testing.T) {
	dec := &stubDecoder{header: []string{"title", "content"}, rows: makeRows(50)}
	mat := &fakeMaterializer{fn: func(ingestion.Record) error {
		return ingestion.NewSinkError(fmt.Errorf("insert failed"))
	}}
	exec := newTestExecutor(dec, mat, &stubMonitor{level: PressureGood})

	result, err := exec.ProcessBatch(context.Background(), uuid.New(), 10)
	require.NoError(t, err)

	// Errors stop the batch once they exceed half its size, leaving the
	// remaining rows unread for the next batch.
	assert.Equal(t, 6, result.Pulled())
	assert.Equal(t, 6, result.Errored())
	assert.False(t, result.Finished())
	assert.Equal(t, 6, dec.idx, "unread rows stay in the decoder")
}

func TestProcessBatchStopsEarlyOnCriticalPressure(t *testing.T) {
	dec := &stubDecoder{header: []string{"title", "content"}, rows: makeRows(20)}
	mat := &fakeMaterializer{}
	exec := newTestExecutor(dec, mat, &stubMonitor{level: PressureCritical})

	result, err := exec.ProcessBatch(context.Background(), uuid.New(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created(), "partial batch completion is a valid outcome")
	assert.Equal(t, 1, result.Pulled())
	assert.False(t, result.Finished())
}
