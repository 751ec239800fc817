// Package monitor wires the recorder, alert engine and analyzers around one
// observed store and exposes the operations used by the API and the CLI.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zvdy/dbpulse/src/analyzer"
	"github.com/zvdy/dbpulse/src/collector"
	"github.com/zvdy/dbpulse/src/config"
	"github.com/zvdy/dbpulse/src/db"
	"github.com/zvdy/dbpulse/src/models"
)

// Options configures a Monitor
type Options struct {
	Monitor config.MonitorConfig
	Metrics config.MetricsConfig
	// Random drives the simulated estimators and is shared by all of them;
	// it must be safe for concurrent use. nil uses the global source.
	Random    analyzer.Random
	Templates []analyzer.QueryTemplate
	// Clock defaults to time.Now
	Clock func() time.Time
}

// Monitor is the performance monitor of one store
type Monitor struct {
	raw   db.Store
	store *db.InstrumentedStore
	state db.StateStore

	recorder *collector.Recorder
	usage    *collector.UsageCollector
	alerts   *analyzer.AlertEngine
	stats    *analyzer.StatsAggregator
	queries  *analyzer.QueryPatternAnalyzer
	advisor  *analyzer.IndexAdvisor
	planner  *analyzer.ArchivePlanner
	executor *analyzer.ArchiveExecutor

	scanInterval    time.Duration
	cleanupInterval time.Duration
	log             *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Monitor around store. Operations on Store() are recorded.
// When store also implements db.StateStore or db.ArchiveJournal, monitor
// state and archiving runs are persisted through it.
func New(store db.Store, opts Options, log *logrus.Logger) *Monitor {
	state, _ := store.(db.StateStore)
	journal, _ := store.(db.ArchiveJournal)

	cleanup := opts.Metrics.CleanupInterval
	if cleanup <= 0 {
		cleanup = time.Hour
	}
	scan := opts.Metrics.AlertScanInterval
	if scan <= 0 {
		scan = time.Minute
	}

	m := &Monitor{
		raw:             store,
		state:           state,
		recorder:        collector.NewRecorder(opts.Monitor, state, log, cleanup, opts.Metrics.PersistInterval),
		alerts:          analyzer.NewAlertEngine(state, log),
		stats:           analyzer.NewStatsAggregator(),
		advisor:         analyzer.NewIndexAdvisor(log, opts.Random),
		planner:         analyzer.NewArchivePlanner(),
		executor:        analyzer.NewArchiveExecutor(journal, log, opts.Random),
		scanInterval:    scan,
		cleanupInterval: cleanup,
		log:             log,
	}
	m.store = db.Instrument(store, m.recorder)
	m.queries = analyzer.NewQueryPatternAnalyzer(m.store, log, opts.Random, opts.Templates)
	m.usage = collector.NewUsageCollector(m.store, log, opts.Random)

	if opts.Clock != nil {
		m.recorder.SetClock(opts.Clock)
		m.alerts.SetClock(opts.Clock)
		m.advisor.SetClock(opts.Clock)
		m.planner.SetClock(opts.Clock)
		m.executor.SetClock(opts.Clock)
		m.usage.SetClock(opts.Clock)
	}

	m.recorder.SetEvaluator(m.alerts)
	m.recorder.OnCleanup(func(cutoff time.Time) {
		if n := m.alerts.Purge(context.Background(), cutoff); n > 0 {
			m.log.Debugf("Purged %d alerts older than %s", n, cutoff.Format(time.RFC3339))
		}
	})
	m.executor.SetEnabled(opts.Monitor.Enabled)
	return m
}

// Store returns the instrumented store
func (m *Monitor) Store() db.Store {
	return m.store
}

// Load restores persisted metrics, alerts, config and archiving status.
// Missing or corrupt snapshots fall back to defaults.
func (m *Monitor) Load(ctx context.Context) {
	if m.state == nil {
		return
	}

	if raw, ok, err := m.state.GetState(ctx, db.KeyConfig); err != nil {
		m.log.Warnf("Failed to load monitor config: %v", err)
	} else if ok {
		cfg := m.recorder.Config()
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			m.log.Warnf("Discarding corrupt monitor config: %v", err)
		} else if err := cfg.Validate(); err != nil {
			m.log.Warnf("Discarding invalid monitor config: %v", err)
		} else {
			m.recorder.SetConfig(cfg)
			m.executor.SetEnabled(cfg.Enabled)
		}
	}

	m.recorder.Load(ctx)
	m.alerts.Load(ctx)

	if raw, ok, err := m.state.GetState(ctx, db.KeyArchiving); err != nil {
		m.log.Warnf("Failed to load archiving status: %v", err)
	} else if ok {
		var status models.SmartArchivingStatus
		if err := json.Unmarshal([]byte(raw), &status); err != nil {
			m.log.Warnf("Discarding corrupt archiving status: %v", err)
		} else {
			status.IsEnabled = m.recorder.Config().Enabled
			m.executor.Restore(status)
		}
	}
}

// Start launches the cleanup and alert scan loops. They stop on Close or
// when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.recorder.Start(ctx)
	}()
	go func() {
		defer m.wg.Done()
		m.scanLoop(ctx)
	}()

	m.log.WithFields(logrus.Fields{
		"store":            m.raw.Name(),
		"cleanup_interval": m.cleanupInterval.String(),
		"scan_interval":    m.scanInterval.String(),
	}).Info("Monitor started")
}

func (m *Monitor) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(m.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cfg := m.recorder.Config()
			if !cfg.Enabled {
				continue
			}
			if n := m.alerts.Scan(ctx, m.recorder.Snapshot(), cfg); n > 0 {
				m.log.Debugf("Alert scan raised %d alerts", n)
			}
		}
	}
}

// Close stops the background loops and persists the final state. The
// store itself is left open.
func (m *Monitor) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		m.wg.Wait()
	}

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	m.recorder.Persist(ctx)
	m.alerts.Persist(ctx)
	m.persistArchiving(ctx)
	m.log.Info("Monitor stopped")
	return nil
}

// RecordMetric records one operation
func (m *Monitor) RecordMetric(ctx context.Context, in models.MetricInput) models.Metric {
	return m.recorder.RecordMetric(ctx, in)
}

// MeasureOperation runs fn and records its duration and outcome. The error
// of fn is returned unchanged.
func (m *Monitor) MeasureOperation(ctx context.Context, op, store, table string, qt models.QueryType, fn func(ctx context.Context) error) error {
	return m.recorder.MeasureOperation(ctx, op, store, table, qt, fn)
}

// Stats aggregates the metric log as of now
func (m *Monitor) Stats() models.PerformanceStats {
	cfg := m.recorder.Config()
	return m.stats.Compute(m.recorder.Snapshot(), m.recorder.Now(), cfg.SlowQueryThresholdMs)
}

// Metrics returns a copy of the metric log
func (m *Monitor) Metrics() []models.Metric {
	return m.recorder.Snapshot()
}

// Alerts returns all alerts, oldest first
func (m *Monitor) Alerts() []models.Alert {
	return m.alerts.Alerts()
}

// ResolveAlert marks an alert as resolved
func (m *Monitor) ResolveAlert(ctx context.Context, id string) error {
	return m.alerts.Resolve(ctx, id)
}

// ClearResolvedAlerts drops resolved alerts
func (m *Monitor) ClearResolvedAlerts(ctx context.Context) int {
	return m.alerts.ClearResolved(ctx)
}

// Config returns the runtime options
func (m *Monitor) Config() config.MonitorConfig {
	return m.recorder.Config()
}

// UpdateConfig applies a partial update and persists the result
func (m *Monitor) UpdateConfig(ctx context.Context, patch config.MonitorPatch) (config.MonitorConfig, error) {
	next, err := m.recorder.Config().Apply(patch)
	if err != nil {
		return m.recorder.Config(), fmt.Errorf("update config: %w", err)
	}
	m.recorder.SetConfig(next)
	m.executor.SetEnabled(next.Enabled)

	if m.state != nil {
		data, err := json.Marshal(next)
		if err != nil {
			m.log.Warnf("Failed to encode monitor config: %v", err)
		} else if err := m.state.PutState(ctx, db.KeyConfig, string(data)); err != nil {
			m.log.Warnf("Failed to persist monitor config: %v", err)
		}
	}

	m.log.WithFields(logrus.Fields{
		"enabled":        next.Enabled,
		"slow_query_ms":  next.SlowQueryThresholdMs,
		"max_stored":     next.MaxStoredMetrics,
		"detailed_stats": next.CollectDetailedStats,
	}).Info("Monitor config updated")
	return next, nil
}

// AnalyzeAndRecommend derives query patterns from the store and ranks
// index recommendations for them
func (m *Monitor) AnalyzeAndRecommend(ctx context.Context) (models.AnalysisResult, error) {
	patterns, err := m.queries.Patterns(ctx)
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("analyze query patterns: %w", err)
	}
	return m.advisor.Recommend(patterns), nil
}

// RecommendationSummary condenses the latest index analysis
func (m *Monitor) RecommendationSummary() models.RecommendationSummary {
	return m.advisor.Summary()
}

// PerformSmartArchiving samples the store, plans archiving rules and
// applies the top ranked ones
func (m *Monitor) PerformSmartArchiving(ctx context.Context) (models.SmartArchiveResult, error) {
	if !m.recorder.Config().Enabled {
		return models.SmartArchiveResult{
			AppliedRules:    make([]models.ArchivingRule, 0),
			Recommendations: []string{"Monitoring is disabled"},
		}, nil
	}

	patterns, err := m.usage.Collect(ctx)
	if err != nil {
		return models.SmartArchiveResult{}, fmt.Errorf("collect usage patterns: %w", err)
	}
	rules := m.planner.Plan(patterns)
	result := m.executor.Execute(ctx, len(patterns), rules)
	m.persistArchiving(ctx)
	return result, nil
}

// SmartArchivingStatus reports the state of the archiving loop
func (m *Monitor) SmartArchivingStatus() models.SmartArchivingStatus {
	return m.executor.Status()
}

// Ping checks the observed store
func (m *Monitor) Ping(ctx context.Context) error {
	return m.raw.Ping(ctx)
}

// PoolStats returns connection pool statistics when the store has a pool
func (m *Monitor) PoolStats() (map[string]interface{}, bool) {
	if p, ok := m.raw.(interface{ PoolStats() map[string]interface{} }); ok {
		return p.PoolStats(), true
	}
	return nil, false
}

func (m *Monitor) persistArchiving(ctx context.Context) {
	if m.state == nil {
		return
	}
	data, err := json.Marshal(m.executor.Status())
	if err != nil {
		m.log.Warnf("Failed to encode archiving status: %v", err)
		return
	}
	if err := m.state.PutState(ctx, db.KeyArchiving, string(data)); err != nil {
		m.log.Warnf("Failed to persist archiving status: %v", err)
	}
}
