package models

import "time"

// UsagePattern is a per-record access and value profile used for archiving
type UsagePattern struct {
	Table           string     `json:"table"`
	RecordID        string     `json:"record_id"`
	LastAccessed    time.Time  `json:"last_accessed"`
	AccessCount     int        `json:"access_count"`
	AccessFrequency float64    `json:"access_frequency"` // per day
	DataSizeBytes   int        `json:"data_size_bytes"`
	Importance      Importance `json:"importance"`
	BusinessValue   float64    `json:"business_value"` // 0-1
}

// ArchivingRule is a predicate plus retention policy for moving records
// out of the active dataset
type ArchivingRule struct {
	Table                  string  `json:"table"`
	Condition              string  `json:"condition"`
	Priority               int     `json:"priority"`
	RetentionDays          int     `json:"retention_days"`
	Description            string  `json:"description"`
	EstimatedRecords       int     `json:"estimated_records"`
	EstimatedSpaceSavingMB float64 `json:"estimated_space_saving_mb"`
}

// SmartArchiveResult summarizes one archiving run
type SmartArchiveResult struct {
	Success                bool            `json:"success"`
	AnalyzedRecords        int             `json:"analyzed_records"`
	ArchivedRecords        int             `json:"archived_records"`
	SpaceSaved             float64         `json:"space_saved_mb"`
	PerformanceImprovement float64         `json:"performance_improvement_pct"`
	AppliedRules           []ArchivingRule `json:"applied_rules"`
	NextOptimizationDate   time.Time       `json:"next_optimization_date"`
	Recommendations        []string        `json:"recommendations"`
}

// SmartArchivingStatus reports the state of the archiving loop
type SmartArchivingStatus struct {
	IsEnabled        bool       `json:"is_enabled"`
	LastRun          *time.Time `json:"last_run,omitempty"`
	NextScheduled    *time.Time `json:"next_scheduled,omitempty"`
	PendingRules     int        `json:"pending_rules"`
	EstimatedBenefit float64    `json:"estimated_benefit_mb"`
}
