package models

import "time"

// QueryPattern is a derived summary of how a table is typically queried
type QueryPattern struct {
	Table              string    `json:"table"`
	Columns            []string  `json:"columns"`
	Frequency          float64   `json:"frequency"` // 0-100
	AvgExecutionTimeMs float64   `json:"avg_execution_time_ms"`
	QueryType          QueryType `json:"query_type"`
	FilterConditions   []string  `json:"filter_conditions"`
	SortColumns        []string  `json:"sort_columns"`
	Query              string    `json:"query,omitempty"`
}

// IndexType describes the shape of a recommended index
type IndexType string

const (
	IndexTypeSingle    IndexType = "single"
	IndexTypeComposite IndexType = "composite"
	IndexTypeCovering  IndexType = "covering"
)

// IndexImpact estimates what an index costs and gains
type IndexImpact struct {
	QuerySpeedupPct    float64         `json:"query_speedup_pct"`
	StorageOverheadPct float64         `json:"storage_overhead_pct"`
	MaintenanceCost    MaintenanceCost `json:"maintenance_cost"`
}

// IndexRecommendation is a suggested secondary index with estimated benefit
type IndexRecommendation struct {
	Table                   string      `json:"table"`
	IndexName               string      `json:"index_name"`
	Columns                 []string    `json:"columns"`
	Type                    IndexType   `json:"type"`
	Priority                Priority    `json:"priority"`
	EstimatedImprovementPct float64     `json:"estimated_improvement_pct"`
	Reasoning               string      `json:"reasoning"`
	Impact                  IndexImpact `json:"impact"`
	AffectedQueries         []string    `json:"affected_queries"`
}

// AnalysisResult is the outcome of one index analysis run
type AnalysisResult struct {
	TotalPatternsAnalyzed   int                   `json:"total_patterns_analyzed"`
	Recommendations         []IndexRecommendation `json:"recommendations"`
	PerformanceGainEstimate float64               `json:"performance_gain_estimate"`
	AnalysisTimestamp       time.Time             `json:"analysis_timestamp"`
	Confidence              float64               `json:"confidence"`
}

// RecommendationSummary condenses the latest analysis run
type RecommendationSummary struct {
	TotalRecommendations int        `json:"total_recommendations"`
	HighPriorityCount    int        `json:"high_priority_count"`
	EstimatedGain        float64    `json:"estimated_gain"`
	LastAnalysis         *time.Time `json:"last_analysis,omitempty"`
}
