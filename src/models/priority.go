package models

import "errors"

var (
	// ErrAlertNotFound is returned when resolving an unknown alert id
	ErrAlertNotFound = errors.New("alert not found")

	// ErrTableNotFound is returned by stores for unknown tables
	ErrTableNotFound = errors.New("table not found")
)

// Priority ranks recommendations. HIGH > MEDIUM > LOW.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Rank returns a numeric weight usable for sorting
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Importance classifies how valuable a record is to keep active
type Importance string

const (
	ImportanceHigh   Importance = "HIGH"
	ImportanceMedium Importance = "MEDIUM"
	ImportanceLow    Importance = "LOW"
)

// Rank returns a numeric weight, HIGH highest
func (i Importance) Rank() int {
	return Priority(i).Rank()
}

// MaintenanceCost estimates the write-side cost of an index
type MaintenanceCost string

const (
	MaintenanceCostLow    MaintenanceCost = "LOW"
	MaintenanceCostMedium MaintenanceCost = "MEDIUM"
	MaintenanceCostHigh   MaintenanceCost = "HIGH"
)

// ClampPercent bounds v to [lo, hi]
func ClampPercent(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
