package models

import "time"

// QueryType classifies a data-store operation
type QueryType string

const (
	QueryTypeSelect      QueryType = "SELECT"
	QueryTypeInsert      QueryType = "INSERT"
	QueryTypeUpdate      QueryType = "UPDATE"
	QueryTypeDelete      QueryType = "DELETE"
	QueryTypeIndex       QueryType = "INDEX"
	QueryTypeTransaction QueryType = "TRANSACTION"
)

// Valid reports whether the query type is one of the known kinds
func (q QueryType) Valid() bool {
	switch q {
	case QueryTypeSelect, QueryTypeInsert, QueryTypeUpdate, QueryTypeDelete, QueryTypeIndex, QueryTypeTransaction:
		return true
	}
	return false
}

// Metric is a single timed record of one data-store operation
type Metric struct {
	ID           string    `json:"id"`
	Operation    string    `json:"operation"`
	Store        string    `json:"store"`
	Table        string    `json:"table"`
	DurationMs   float64   `json:"duration_ms"`
	RecordCount  *int      `json:"record_count,omitempty"`
	QueryType    QueryType `json:"query_type"`
	Timestamp    time.Time `json:"timestamp"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// MetricInput carries the caller-supplied fields of a Metric
type MetricInput struct {
	Operation    string
	Store        string
	Table        string
	DurationMs   float64
	QueryType    QueryType
	Success      bool
	RecordCount  *int
	ErrorMessage string
}

// IntPtr returns a pointer to n, for optional record counts
func IntPtr(n int) *int {
	return &n
}

// PerformanceStats is a read-only aggregate view over the metric log
type PerformanceStats struct {
	TotalQueries          int                   `json:"total_queries"`
	AverageQueryTime      float64               `json:"average_query_time_ms"`
	SlowQueries           []Metric              `json:"slow_queries"`
	FastQueries           []Metric              `json:"fast_queries"`
	QueryTypeDistribution map[QueryType]int     `json:"query_type_distribution"`
	DatabaseStats         map[string]GroupStats `json:"database_stats"`
	TableStats            map[string]GroupStats `json:"table_stats"`
	HourlyStats           []HourlyStat          `json:"hourly_stats"`
	PerformanceTrends     PerformanceTrends     `json:"performance_trends"`
	SlowestOperations     []OperationStat       `json:"slowest_operations"`
	GeneratedAt           time.Time             `json:"generated_at"`
}

// GroupStats aggregates durations for a store or table
type GroupStats struct {
	Count     int     `json:"count"`
	TotalTime float64 `json:"total_time_ms"`
	AvgTime   float64 `json:"avg_time_ms"`
}

// HourlyStat is one trailing hourly bucket
type HourlyStat struct {
	Hour    time.Time `json:"hour"`
	Count   int       `json:"count"`
	AvgTime float64   `json:"avg_time_ms"`
}

// PerformanceTrends compares this week against the previous one
type PerformanceTrends struct {
	ThisWeekAvg              float64 `json:"this_week_avg_ms"`
	LastWeekAvg              float64 `json:"last_week_avg_ms"`
	ImprovementSinceLastWeek float64 `json:"improvement_since_last_week_pct"`
}

// OperationStat is the average duration of an (operation, table) pair
type OperationStat struct {
	Operation string  `json:"operation"`
	Table     string  `json:"table"`
	Count     int     `json:"count"`
	AvgTime   float64 `json:"avg_time_ms"`
}
