package models

import "time"

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	AlertSeverityCritical AlertSeverity = "CRITICAL"
	AlertSeverityHigh     AlertSeverity = "HIGH"
	AlertSeverityMedium   AlertSeverity = "MEDIUM"
	AlertSeverityLow      AlertSeverity = "LOW"
)

// AlertType represents the type of alert
type AlertType string

const (
	AlertTypeSlowQuery     AlertType = "SLOW_QUERY"
	AlertTypeHighFrequency AlertType = "HIGH_FREQUENCY"
	AlertTypeErrorRate     AlertType = "ERROR_RATE"
	AlertTypeMemoryUsage   AlertType = "MEMORY_USAGE"
)

// Alert represents a raised operational notice
type Alert struct {
	ID              string                 `json:"id"`
	Type            AlertType              `json:"type"`
	Severity        AlertSeverity          `json:"severity"`
	Message         string                 `json:"message"`
	Details         map[string]interface{} `json:"details,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
	Resolved        bool                   `json:"resolved"`
	Recommendations []string               `json:"recommendations"`
}

// NewAlert creates a new unresolved Alert
func NewAlert(alertType AlertType, severity AlertSeverity, message string, at time.Time) *Alert {
	return &Alert{
		Type:            alertType,
		Severity:        severity,
		Message:         message,
		Timestamp:       at,
		Details:         make(map[string]interface{}),
		Recommendations: make([]string, 0),
	}
}

// Resolve marks the alert as resolved
func (a *Alert) Resolve() {
	a.Resolved = true
}

// AddRecommendation adds a recommended action to the alert
func (a *Alert) AddRecommendation(action string) {
	a.Recommendations = append(a.Recommendations, action)
}

// SameKind reports whether two alerts share type and message
func (a *Alert) SameKind(other *Alert) bool {
	return a.Type == other.Type && a.Message == other.Message
}
