package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zvdy/dbpulse/src/config"
	"github.com/zvdy/dbpulse/src/db"
	"github.com/zvdy/dbpulse/src/metrics"
	"github.com/zvdy/dbpulse/src/models"
)

const (
	// DedupWindow is how long an unresolved alert suppresses repeats of itself
	DedupWindow = 10 * time.Minute

	// ScanWindow is the trailing window of the rolling alert scan
	ScanWindow = 5 * time.Minute

	// FrequencyWindow is the window the per-table operation count is taken over
	FrequencyWindow = time.Minute

	minErrorRateSample = 10
	criticalSlowMs     = 1000
	criticalErrorRate  = 20.0
)

const errorRateMessage = "High error rate detected in data operations"

// AlertEngine raises operational alerts from recorded metrics
type AlertEngine struct {
	mu     sync.Mutex
	alerts []*models.Alert
	state  db.StateStore
	log    *logrus.Logger
	now    func() time.Time
}

// NewAlertEngine creates a new AlertEngine instance
func NewAlertEngine(state db.StateStore, log *logrus.Logger) *AlertEngine {
	return &AlertEngine{
		alerts: make([]*models.Alert, 0),
		state:  state,
		log:    log,
		now:    time.Now,
	}
}

// SetClock replaces the time source
func (ae *AlertEngine) SetClock(now func() time.Time) {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	ae.now = now
}

// Evaluate checks a freshly recorded metric. window holds the metrics of
// the last five minutes, the new one included.
func (ae *AlertEngine) Evaluate(ctx context.Context, m models.Metric, window []models.Metric, cfg config.MonitorConfig) {
	if alert := ae.slowQueryAlert(m, cfg.AlertThresholds); alert != nil {
		ae.raise(ctx, alert)
	}
	if alert := ae.errorRateAlert(window, cfg.AlertThresholds); alert != nil {
		ae.raise(ctx, alert)
	}
}

// Scan is the rolling check over the metric log. It returns the number of
// alerts raised.
func (ae *AlertEngine) Scan(ctx context.Context, log []models.Metric, cfg config.MonitorConfig) int {
	now := ae.clock()
	window := since(log, now.Add(-ScanWindow))

	raised := 0
	if alert := ae.errorRateAlert(window, cfg.AlertThresholds); alert != nil && ae.raise(ctx, alert) {
		raised++
	}
	for _, alert := range ae.highFrequencyAlerts(since(window, now.Add(-FrequencyWindow)), cfg.AlertThresholds) {
		if ae.raise(ctx, alert) {
			raised++
		}
	}
	return raised
}

func (ae *AlertEngine) slowQueryAlert(m models.Metric, t config.AlertThresholds) *models.Alert {
	if m.DurationMs <= t.SlowQueryMs {
		return nil
	}

	severity := models.AlertSeverityHigh
	if m.DurationMs > criticalSlowMs {
		severity = models.AlertSeverityCritical
	}

	alert := models.NewAlert(
		models.AlertTypeSlowQuery,
		severity,
		fmt.Sprintf("Slow query detected: %s on %s", m.Operation, m.Table),
		m.Timestamp,
	)
	alert.Details["durationMs"] = m.DurationMs
	alert.Details["thresholdMs"] = t.SlowQueryMs
	alert.Details["operation"] = m.Operation
	alert.Details["table"] = m.Table
	alert.Details["store"] = m.Store
	alert.AddRecommendation("Check for a missing index on the filtered columns")
	alert.AddRecommendation("Reduce the number of records read per call")
	alert.AddRecommendation("Consider archiving old records of this table")
	return alert
}

func (ae *AlertEngine) errorRateAlert(window []models.Metric, t config.AlertThresholds) *models.Alert {
	if len(window) < minErrorRateSample {
		return nil
	}

	failed := 0
	for _, m := range window {
		if !m.Success {
			failed++
		}
	}
	rate := float64(failed) / float64(len(window)) * 100
	if rate <= t.ErrorRatePercent {
		return nil
	}

	severity := models.AlertSeverityHigh
	if rate > criticalErrorRate {
		severity = models.AlertSeverityCritical
	}

	alert := models.NewAlert(models.AlertTypeErrorRate, severity, errorRateMessage, ae.clock())
	alert.Details["errorRate"] = rate
	alert.Details["failed"] = failed
	alert.Details["total"] = len(window)
	alert.AddRecommendation("Review the error messages of the failing operations")
	alert.AddRecommendation("Check the integrity of the local data store")
	return alert
}

func (ae *AlertEngine) highFrequencyAlerts(window []models.Metric, t config.AlertThresholds) []*models.Alert {
	if t.HighFrequencyPerMinute <= 0 {
		return nil
	}

	counts := make(map[string]int)
	var order []string
	for _, m := range window {
		if _, seen := counts[m.Table]; !seen {
			order = append(order, m.Table)
		}
		counts[m.Table]++
	}

	var alerts []*models.Alert
	for _, table := range order {
		count := counts[table]
		if count <= t.HighFrequencyPerMinute {
			continue
		}
		severity := models.AlertSeverityMedium
		if count >= 2*t.HighFrequencyPerMinute {
			severity = models.AlertSeverityHigh
		}
		alert := models.NewAlert(
			models.AlertTypeHighFrequency,
			severity,
			fmt.Sprintf("High operation frequency on %s", table),
			ae.clock(),
		)
		alert.Details["table"] = table
		alert.Details["perMinute"] = count
		alert.Details["threshold"] = t.HighFrequencyPerMinute
		alert.AddRecommendation("Cache frequently read records")
		alert.AddRecommendation("Batch repeated writes")
		alerts = append(alerts, alert)
	}
	return alerts
}

// raise stores alert unless an unresolved alert of the same kind was raised
// within DedupWindow. Suppressed alerts are dropped without trace.
func (ae *AlertEngine) raise(ctx context.Context, alert *models.Alert) bool {
	ae.mu.Lock()
	for _, existing := range ae.alerts {
		if existing.Resolved || !existing.SameKind(alert) {
			continue
		}
		if alert.Timestamp.Sub(existing.Timestamp) < DedupWindow && existing.Timestamp.Sub(alert.Timestamp) < DedupWindow {
			ae.mu.Unlock()
			metrics.AlertsSuppressed.WithLabelValues(string(alert.Type)).Inc()
			return false
		}
	}
	alert.ID = uuid.NewString()
	ae.alerts = append(ae.alerts, alert)
	ae.mu.Unlock()

	metrics.AlertsRaised.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
	ae.log.WithFields(logrus.Fields{
		"type":     alert.Type,
		"severity": alert.Severity,
	}).Warn(alert.Message)

	ae.persist(ctx)
	return true
}

// Alerts returns a copy of all alerts, oldest first
func (ae *AlertEngine) Alerts() []models.Alert {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	out := make([]models.Alert, 0, len(ae.alerts))
	for _, a := range ae.alerts {
		out = append(out, *a)
	}
	return out
}

// Resolve marks an alert as resolved
func (ae *AlertEngine) Resolve(ctx context.Context, id string) error {
	ae.mu.Lock()
	var found bool
	for _, a := range ae.alerts {
		if a.ID == id {
			a.Resolve()
			found = true
			break
		}
	}
	ae.mu.Unlock()

	if !found {
		return fmt.Errorf("resolve %s: %w", id, models.ErrAlertNotFound)
	}
	ae.persist(ctx)
	return nil
}

// ClearResolved drops resolved alerts and returns how many were dropped
func (ae *AlertEngine) ClearResolved(ctx context.Context) int {
	n := ae.filter(func(a *models.Alert) bool { return !a.Resolved })
	if n > 0 {
		ae.persist(ctx)
	}
	return n
}

// Purge drops alerts raised before cutoff
func (ae *AlertEngine) Purge(ctx context.Context, cutoff time.Time) int {
	n := ae.filter(func(a *models.Alert) bool { return !a.Timestamp.Before(cutoff) })
	if n > 0 {
		ae.persist(ctx)
	}
	return n
}

func (ae *AlertEngine) filter(keep func(*models.Alert) bool) int {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	kept := ae.alerts[:0]
	for _, a := range ae.alerts {
		if keep(a) {
			kept = append(kept, a)
		}
	}
	dropped := len(ae.alerts) - len(kept)
	ae.alerts = kept
	return dropped
}

func (ae *AlertEngine) persist(ctx context.Context) {
	if ae.state == nil {
		return
	}
	data, err := json.Marshal(ae.Alerts())
	if err != nil {
		ae.log.Warnf("Failed to encode alerts: %v", err)
		return
	}
	if err := ae.state.PutState(ctx, db.KeyAlerts, string(data)); err != nil {
		ae.log.Warnf("Failed to persist alerts: %v", err)
	}
}

// Persist writes the alert list to the state store
func (ae *AlertEngine) Persist(ctx context.Context) {
	ae.persist(ctx)
}

// Load restores alerts from the state store. A missing or corrupt snapshot
// leaves the list empty.
func (ae *AlertEngine) Load(ctx context.Context) {
	if ae.state == nil {
		return
	}
	raw, ok, err := ae.state.GetState(ctx, db.KeyAlerts)
	if err != nil {
		ae.log.Warnf("Failed to load alerts: %v", err)
		return
	}
	if !ok {
		return
	}

	var loaded []models.Alert
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		ae.log.Warnf("Discarding corrupt alert snapshot: %v", err)
		return
	}

	ae.mu.Lock()
	defer ae.mu.Unlock()
	ae.alerts = make([]*models.Alert, 0, len(loaded))
	for i := range loaded {
		a := loaded[i]
		if a.Details == nil {
			a.Details = make(map[string]interface{})
		}
		ae.alerts = append(ae.alerts, &a)
	}
}

func (ae *AlertEngine) clock() time.Time {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return ae.now()
}

func since(log []models.Metric, cutoff time.Time) []models.Metric {
	var out []models.Metric
	for _, m := range log {
		if !m.Timestamp.Before(cutoff) {
			out = append(out, m)
		}
	}
	return out
}
