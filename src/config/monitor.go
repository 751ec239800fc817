package config

import "fmt"

// AlertThresholds are the limits the alert engine evaluates against
type AlertThresholds struct {
	SlowQueryMs            float64 `yaml:"slow_query_ms" json:"slowQueryMs"`
	ErrorRatePercent       float64 `yaml:"error_rate_percent" json:"errorRatePercent"`
	HighFrequencyPerMinute int     `yaml:"high_frequency_per_minute" json:"highFrequencyPerMinute"`
}

// MonitorConfig holds the runtime options of the monitor. It is persisted
// in the store and can be changed while running.
type MonitorConfig struct {
	Enabled              bool            `yaml:"enabled" json:"enabled"`
	SlowQueryThresholdMs float64         `yaml:"slow_query_threshold_ms" json:"slowQueryThresholdMs"`
	MaxStoredMetrics     int             `yaml:"max_stored_metrics" json:"maxStoredMetrics"`
	AlertThresholds      AlertThresholds `yaml:"alert_thresholds" json:"alertThresholds"`
	// AutoOptimize is reserved; nothing acts on it.
	AutoOptimize         bool `yaml:"auto_optimize" json:"autoOptimize"`
	CollectDetailedStats bool `yaml:"collect_detailed_stats" json:"collectDetailedStats"`
}

// DefaultMonitorConfig returns the default runtime options
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:              true,
		SlowQueryThresholdMs: 500,
		MaxStoredMetrics:     1000,
		AlertThresholds: AlertThresholds{
			SlowQueryMs:            500,
			ErrorRatePercent:       5,
			HighFrequencyPerMinute: 100,
		},
		AutoOptimize:         false,
		CollectDetailedStats: true,
	}
}

// Validate checks the runtime options
func (m MonitorConfig) Validate() error {
	if m.SlowQueryThresholdMs < 0 {
		return fmt.Errorf("monitor: slow query threshold must not be negative")
	}
	if m.MaxStoredMetrics < 1 {
		return fmt.Errorf("monitor: max stored metrics must be at least 1, got %d", m.MaxStoredMetrics)
	}
	if m.AlertThresholds.ErrorRatePercent < 0 || m.AlertThresholds.ErrorRatePercent > 100 {
		return fmt.Errorf("monitor: error rate threshold out of range: %.1f", m.AlertThresholds.ErrorRatePercent)
	}
	return nil
}

// AlertThresholdsPatch is a partial update of AlertThresholds
type AlertThresholdsPatch struct {
	SlowQueryMs            *float64 `json:"slowQueryMs,omitempty"`
	ErrorRatePercent       *float64 `json:"errorRatePercent,omitempty"`
	HighFrequencyPerMinute *int     `json:"highFrequencyPerMinute,omitempty"`
}

// MonitorPatch is a partial update of MonitorConfig. Nil fields are left unchanged.
type MonitorPatch struct {
	Enabled              *bool                 `json:"enabled,omitempty"`
	SlowQueryThresholdMs *float64              `json:"slowQueryThresholdMs,omitempty"`
	MaxStoredMetrics     *int                  `json:"maxStoredMetrics,omitempty"`
	AlertThresholds      *AlertThresholdsPatch `json:"alertThresholds,omitempty"`
	AutoOptimize         *bool                 `json:"autoOptimize,omitempty"`
	CollectDetailedStats *bool                 `json:"collectDetailedStats,omitempty"`
}

// Apply returns a copy of m with the patch applied. Setting the slow query
// threshold also moves the slow query alert threshold unless the patch sets
// that one explicitly.
func (m MonitorConfig) Apply(p MonitorPatch) (MonitorConfig, error) {
	out := m
	if p.Enabled != nil {
		out.Enabled = *p.Enabled
	}
	if p.SlowQueryThresholdMs != nil {
		out.SlowQueryThresholdMs = *p.SlowQueryThresholdMs
		out.AlertThresholds.SlowQueryMs = *p.SlowQueryThresholdMs
	}
	if p.MaxStoredMetrics != nil {
		out.MaxStoredMetrics = *p.MaxStoredMetrics
	}
	if t := p.AlertThresholds; t != nil {
		if t.SlowQueryMs != nil {
			out.AlertThresholds.SlowQueryMs = *t.SlowQueryMs
		}
		if t.ErrorRatePercent != nil {
			out.AlertThresholds.ErrorRatePercent = *t.ErrorRatePercent
		}
		if t.HighFrequencyPerMinute != nil {
			out.AlertThresholds.HighFrequencyPerMinute = *t.HighFrequencyPerMinute
		}
	}
	if p.AutoOptimize != nil {
		out.AutoOptimize = *p.AutoOptimize
	}
	if p.CollectDetailedStats != nil {
		out.CollectDetailedStats = *p.CollectDetailedStats
	}

	if err := out.Validate(); err != nil {
		return m, err
	}
	return out, nil
}
