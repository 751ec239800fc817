package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zvdy/dbpulse/src/config"
	"github.com/zvdy/dbpulse/src/db"
	"github.com/zvdy/dbpulse/src/models"
)

func newTestLogger() *logrus.Logger {
	log, _ := logtest.NewNullLogger()
	return log
}

// memState is an in-memory db.StateStore
type memState struct {
	mu     sync.Mutex
	values map[string]string
	puts   int
	err    error
}

func newMemState() *memState {
	return &memState{values: make(map[string]string)}
}

func (m *memState) GetState(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memState) PutState(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type captureEvaluator struct {
	calls   int
	windows [][]models.Metric
}

func (c *captureEvaluator) Evaluate(ctx context.Context, m models.Metric, window []models.Metric, cfg config.MonitorConfig) {
	c.calls++
	c.windows = append(c.windows, window)
}

func newTestRecorder(t *testing.T, cfg config.MonitorConfig, state db.StateStore) (*Recorder, *fixedClock) {
	t.Helper()
	clock := &fixedClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRecorder(cfg, state, newTestLogger(), time.Hour, 0)
	r.SetClock(clock.Now)
	return r, clock
}

func input(op string, durationMs float64, success bool) models.MetricInput {
	return models.MetricInput{
		Operation:  op,
		Store:      "store",
		Table:      "products",
		DurationMs: durationMs,
		QueryType:  models.QueryTypeSelect,
		Success:    success,
	}
}

func TestRecorder_RecordMetric(t *testing.T) {
	r, clock := newTestRecorder(t, config.DefaultMonitorConfig(), nil)

	m := r.RecordMetric(context.Background(), input("get", 12.5, true))

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, clock.Now(), m.Timestamp)
	assert.Equal(t, 12.5, m.DurationMs)
	require.Len(t, r.Snapshot(), 1)
	assert.Equal(t, m, r.Snapshot()[0])
}

func TestRecorder_DisabledIsNoop(t *testing.T) {
	cfg := config.DefaultMonitorConfig()
	cfg.Enabled = false
	state := newMemState()
	r, _ := newTestRecorder(t, cfg, state)

	r.RecordMetric(context.Background(), input("get", 1, true))

	assert.Empty(t, r.Snapshot())
	assert.Zero(t, state.puts)
}

func TestRecorder_TruncatesOldest(t *testing.T) {
	cfg := config.DefaultMonitorConfig()
	cfg.MaxStoredMetrics = 3
	r, _ := newTestRecorder(t, cfg, nil)

	for _, op := range []string{"a", "b", "c", "d", "e"} {
		r.RecordMetric(context.Background(), input(op, 1, true))
	}

	log := r.Snapshot()
	require.Len(t, log, 3)
	assert.Equal(t, "c", log[0].Operation)
	assert.Equal(t, "e", log[2].Operation)
}

func TestRecorder_SetConfigShrinksLog(t *testing.T) {
	r, _ := newTestRecorder(t, config.DefaultMonitorConfig(), nil)
	for i := 0; i < 10; i++ {
		r.RecordMetric(context.Background(), input("get", 1, true))
	}

	cfg := r.Config()
	cfg.MaxStoredMetrics = 4
	r.SetConfig(cfg)

	assert.Len(t, r.Snapshot(), 4)
}

func TestRecorder_MeasureOperation_Success(t *testing.T) {
	r, _ := newTestRecorder(t, config.DefaultMonitorConfig(), nil)

	err := r.MeasureOperation(context.Background(), "load", "store", "sales", models.QueryTypeSelect,
		func(ctx context.Context) error { return nil })

	require.NoError(t, err)
	log := r.Snapshot()
	require.Len(t, log, 1)
	assert.True(t, log[0].Success)
	assert.Equal(t, "load", log[0].Operation)
	assert.Equal(t, "sales", log[0].Table)
	assert.Empty(t, log[0].ErrorMessage)
}

func TestRecorder_MeasureOperation_ReturnsOriginalError(t *testing.T) {
	r, _ := newTestRecorder(t, config.DefaultMonitorConfig(), nil)
	boom := errors.New("disk full")

	err := r.MeasureOperation(context.Background(), "save", "store", "sales", models.QueryTypeInsert,
		func(ctx context.Context) error { return boom })

	assert.Same(t, boom, err)
	log := r.Snapshot()
	require.Len(t, log, 1)
	assert.False(t, log[0].Success)
	assert.Equal(t, "disk full", log[0].ErrorMessage)
}

func TestRecorder_MeasureOperation_RecordsPanic(t *testing.T) {
	r, _ := newTestRecorder(t, config.DefaultMonitorConfig(), nil)

	assert.PanicsWithValue(t, "bad state", func() {
		_ = r.MeasureOperation(context.Background(), "save", "store", "sales", models.QueryTypeInsert,
			func(ctx context.Context) error { panic("bad state") })
	})

	log := r.Snapshot()
	require.Len(t, log, 1)
	assert.False(t, log[0].Success)
	assert.Equal(t, "bad state", log[0].ErrorMessage)
}

func TestMeasure_ReturnsValue(t *testing.T) {
	r, _ := newTestRecorder(t, config.DefaultMonitorConfig(), nil)

	n, err := Measure(context.Background(), r, "count", "store", "products", models.QueryTypeSelect,
		func(ctx context.Context) (int, error) { return 7, nil })

	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Len(t, r.Snapshot(), 1)
}

func TestRecorder_EvaluatorGetsRecentWindow(t *testing.T) {
	r, clock := newTestRecorder(t, config.DefaultMonitorConfig(), nil)
	ev := &captureEvaluator{}
	r.SetEvaluator(ev)
	ctx := context.Background()

	r.RecordMetric(ctx, input("old", 1, true))
	clock.Advance(10 * time.Minute)
	r.RecordMetric(ctx, input("new1", 1, true))
	clock.Advance(time.Minute)
	r.RecordMetric(ctx, input("new2", 1, true))

	require.Equal(t, 3, ev.calls)
	last := ev.windows[2]
	require.Len(t, last, 2)
	assert.Equal(t, "new1", last[0].Operation)
	assert.Equal(t, "new2", last[1].Operation)
}

func TestRecorder_CleanupDropsOldMetrics(t *testing.T) {
	r, clock := newTestRecorder(t, config.DefaultMonitorConfig(), nil)
	ctx := context.Background()

	var hookCutoff time.Time
	r.OnCleanup(func(cutoff time.Time) { hookCutoff = cutoff })

	r.RecordMetric(ctx, input("old", 1, true))
	clock.Advance(6 * 24 * time.Hour)
	r.RecordMetric(ctx, input("recent", 1, true))
	clock.Advance(2 * 24 * time.Hour)

	dropped := r.Cleanup(ctx)

	assert.Equal(t, 1, dropped)
	log := r.Snapshot()
	require.Len(t, log, 1)
	assert.Equal(t, "recent", log[0].Operation)
	assert.Equal(t, clock.Now().Add(-MaxMetricAge), hookCutoff)
}

func TestRecorder_PersistAndLoad(t *testing.T) {
	state := newMemState()
	r, _ := newTestRecorder(t, config.DefaultMonitorConfig(), state)
	ctx := context.Background()

	r.RecordMetric(ctx, input("get", 3, true))
	r.RecordMetric(ctx, input("scan", 9, false))
	require.Contains(t, state.values, db.KeyMetrics)

	restored, _ := newTestRecorder(t, config.DefaultMonitorConfig(), state)
	restored.Load(ctx)

	assert.Equal(t, r.Snapshot(), restored.Snapshot())
}

func TestRecorder_LoadCorruptSnapshot(t *testing.T) {
	state := newMemState()
	state.values[db.KeyMetrics] = "{not json"
	r, _ := newTestRecorder(t, config.DefaultMonitorConfig(), state)

	r.Load(context.Background())

	assert.Empty(t, r.Snapshot())
}

func TestRecorder_PersistFailureIsNotPropagated(t *testing.T) {
	state := newMemState()
	state.err = errors.New("read-only")
	r, _ := newTestRecorder(t, config.DefaultMonitorConfig(), state)

	m := r.RecordMetric(context.Background(), input("get", 1, true))

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, 1, state.puts)
	assert.Len(t, r.Snapshot(), 1)
}

func TestRecorder_PersistThrottled(t *testing.T) {
	state := newMemState()
	r := NewRecorder(config.DefaultMonitorConfig(), state, newTestLogger(), time.Hour, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r.RecordMetric(ctx, input("get", 1, true))
	}
	assert.Equal(t, 1, state.puts)

	r.Persist(ctx)
	assert.Equal(t, 2, state.puts)
}

func TestRecorder_StartStopsOnCancel(t *testing.T) {
	r := NewRecorder(config.DefaultMonitorConfig(), nil, newTestLogger(), 10*time.Millisecond, 0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}
