package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zvdy/dbpulse/src/config"
	"github.com/zvdy/dbpulse/src/db"
	"github.com/zvdy/dbpulse/src/metrics"
	"github.com/zvdy/dbpulse/src/models"
)

const (
	// MaxMetricAge is the age cutoff of the metric log
	MaxMetricAge = 7 * 24 * time.Hour

	// AlertWindow is the trailing window handed to the evaluator
	AlertWindow = 5 * time.Minute
)

// Evaluator inspects each recorded metric together with the recent window
type Evaluator interface {
	Evaluate(ctx context.Context, m models.Metric, window []models.Metric, cfg config.MonitorConfig)
}

// Recorder keeps the bounded in-memory metric log
type Recorder struct {
	mu      sync.Mutex
	metrics []models.Metric
	cfg     config.MonitorConfig

	state     db.StateStore
	evaluator Evaluator
	limiter   *rate.Limiter
	log       *logrus.Logger
	interval  time.Duration
	onCleanup []func(cutoff time.Time)

	now func() time.Time
}

// NewRecorder creates a Recorder. persistEvery throttles snapshot writes on
// the record path; zero persists on every record.
func NewRecorder(cfg config.MonitorConfig, state db.StateStore, log *logrus.Logger, cleanupInterval, persistEvery time.Duration) *Recorder {
	limit := rate.Inf
	if persistEvery > 0 {
		limit = rate.Every(persistEvery)
	}
	return &Recorder{
		metrics:  make([]models.Metric, 0),
		cfg:      cfg,
		state:    state,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log,
		interval: cleanupInterval,
		now:      time.Now,
	}
}

// SetClock replaces the time source
func (r *Recorder) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// SetEvaluator attaches the alert evaluator
func (r *Recorder) SetEvaluator(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluator = e
}

// OnCleanup registers a hook run after each cleanup pass with the age cutoff
func (r *Recorder) OnCleanup(fn func(cutoff time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCleanup = append(r.onCleanup, fn)
}

// Config returns the current runtime options
func (r *Recorder) Config() config.MonitorConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// SetConfig replaces the runtime options, truncating the log if the
// maximum shrank
func (r *Recorder) SetConfig(cfg config.MonitorConfig) {
	r.mu.Lock()
	r.cfg = cfg
	r.truncateLocked()
	r.mu.Unlock()
}

// RecordMetric appends a metric. Persistence is best effort.
func (r *Recorder) RecordMetric(ctx context.Context, in models.MetricInput) models.Metric {
	r.mu.Lock()
	cfg := r.cfg
	if !cfg.Enabled {
		r.mu.Unlock()
		return models.Metric{}
	}

	now := r.now()
	m := models.Metric{
		ID:           uuid.NewString(),
		Operation:    in.Operation,
		Store:        in.Store,
		Table:        in.Table,
		DurationMs:   in.DurationMs,
		RecordCount:  in.RecordCount,
		QueryType:    in.QueryType,
		Timestamp:    now,
		Success:      in.Success,
		ErrorMessage: in.ErrorMessage,
	}
	r.metrics = append(r.metrics, m)
	r.truncateLocked()
	size := len(r.metrics)
	window := r.windowLocked(now.Add(-AlertWindow))
	evaluator := r.evaluator
	r.mu.Unlock()

	metrics.MetricLogSize.Set(float64(size))
	if cfg.CollectDetailedStats {
		metrics.OperationDuration.WithLabelValues(string(m.QueryType), m.Table).Observe(m.DurationMs / 1000)
		metrics.OperationsTotal.WithLabelValues(string(m.QueryType), m.Table, strconv.FormatBool(m.Success)).Inc()
	}

	if evaluator != nil {
		evaluator.Evaluate(ctx, m, window, cfg)
	}

	if r.limiter.Allow() {
		r.Persist(ctx)
	}
	return m
}

// MeasureOperation runs fn and records exactly one metric for it. The error
// returned by fn is returned unchanged; a panic is recorded as a failure and
// re-raised.
func (r *Recorder) MeasureOperation(ctx context.Context, op, store, table string, qt models.QueryType, fn func(ctx context.Context) error) (err error) {
	start := time.Now()
	defer func() {
		in := models.MetricInput{
			Operation:  op,
			Store:      store,
			Table:      table,
			DurationMs: float64(time.Since(start).Microseconds()) / 1000,
			QueryType:  qt,
		}
		if p := recover(); p != nil {
			in.ErrorMessage = fmt.Sprint(p)
			r.RecordMetric(ctx, in)
			panic(p)
		}
		in.Success = err == nil
		if err != nil {
			in.ErrorMessage = err.Error()
		}
		r.RecordMetric(ctx, in)
	}()
	return fn(ctx)
}

// Measure is MeasureOperation for functions returning a value
func Measure[T any](ctx context.Context, r *Recorder, op, store, table string, qt models.QueryType, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.MeasureOperation(ctx, op, store, table, qt, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Snapshot returns a copy of the metric log
func (r *Recorder) Snapshot() []models.Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Metric, len(r.metrics))
	copy(out, r.metrics)
	return out
}

// Now returns the recorder's current time
func (r *Recorder) Now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now()
}

// Start runs the periodic cleanup until ctx is cancelled
func (r *Recorder) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("Metric recorder cleanup loop started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Metric recorder cleanup loop stopped")
			return
		case <-ticker.C:
			r.Cleanup(ctx)
		}
	}
}

// Cleanup drops metrics past the age cutoff, runs the cleanup hooks and
// persists. It returns the number of dropped metrics.
func (r *Recorder) Cleanup(ctx context.Context) int {
	r.mu.Lock()
	cutoff := r.now().Add(-MaxMetricAge)
	kept := r.metrics[:0]
	for _, m := range r.metrics {
		if !m.Timestamp.Before(cutoff) {
			kept = append(kept, m)
		}
	}
	dropped := len(r.metrics) - len(kept)
	r.metrics = kept
	r.truncateLocked()
	hooks := append([]func(time.Time){}, r.onCleanup...)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(cutoff)
	}

	if dropped > 0 {
		r.log.Debugf("Dropped %d metrics older than %s", dropped, cutoff.Format(time.RFC3339))
	}
	r.Persist(ctx)
	return dropped
}

// Persist writes the metric log to the state store. Failures are logged.
func (r *Recorder) Persist(ctx context.Context) {
	if r.state == nil {
		return
	}
	data, err := json.Marshal(r.Snapshot())
	if err != nil {
		r.log.Warnf("Failed to encode metric snapshot: %v", err)
		return
	}
	if err := r.state.PutState(ctx, db.KeyMetrics, string(data)); err != nil {
		r.log.Warnf("Failed to persist metric snapshot: %v", err)
	}
}

// Load restores the metric log from the state store. A missing or corrupt
// snapshot leaves the log empty.
func (r *Recorder) Load(ctx context.Context) {
	if r.state == nil {
		return
	}
	raw, ok, err := r.state.GetState(ctx, db.KeyMetrics)
	if err != nil {
		r.log.Warnf("Failed to load metric snapshot: %v", err)
		return
	}
	if !ok {
		return
	}

	var loaded []models.Metric
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		r.log.Warnf("Discarding corrupt metric snapshot: %v", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-MaxMetricAge)
	r.metrics = r.metrics[:0]
	for _, m := range loaded {
		if !m.Timestamp.Before(cutoff) {
			r.metrics = append(r.metrics, m)
		}
	}
	r.truncateLocked()
	r.log.Infof("Restored %d metrics from snapshot", len(r.metrics))
}

func (r *Recorder) truncateLocked() {
	limit := r.cfg.MaxStoredMetrics
	if limit > 0 && len(r.metrics) > limit {
		excess := len(r.metrics) - limit
		r.metrics = append(r.metrics[:0], r.metrics[excess:]...)
	}
}

func (r *Recorder) windowLocked(since time.Time) []models.Metric {
	var window []models.Metric
	for _, m := range r.metrics {
		if !m.Timestamp.Before(since) {
			window = append(window, m)
		}
	}
	return window
}
