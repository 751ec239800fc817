package analyzer

import (
	"sort"
	"time"

	"github.com/zvdy/dbpulse/src/models"
)

const (
	statsWindow     = 24 * time.Hour
	week            = 7 * 24 * time.Hour
	fastQueryMs     = 50
	sampleListLimit = 10
	slowestLimit    = 5
)

// StatsAggregator computes PerformanceStats from a metric log. It holds no
// state and never mutates its input.
type StatsAggregator struct{}

// NewStatsAggregator creates a new StatsAggregator instance
func NewStatsAggregator() *StatsAggregator {
	return &StatsAggregator{}
}

// Compute aggregates log as seen at now
func (sa *StatsAggregator) Compute(log []models.Metric, now time.Time, slowThresholdMs float64) models.PerformanceStats {
	stats := models.PerformanceStats{
		SlowQueries:           make([]models.Metric, 0),
		FastQueries:           make([]models.Metric, 0),
		QueryTypeDistribution: make(map[models.QueryType]int),
		DatabaseStats:         make(map[string]models.GroupStats),
		TableStats:            make(map[string]models.GroupStats),
		HourlyStats:           sa.hourly(log, now),
		PerformanceTrends:     sa.trends(log, now),
		SlowestOperations:     sa.slowest(log, now),
		GeneratedAt:           now,
	}

	dayStart := now.Add(-statsWindow)
	var total float64
	// newest first for the slow and fast samples
	for i := len(log) - 1; i >= 0; i-- {
		m := log[i]
		if m.Timestamp.Before(dayStart) || m.Timestamp.After(now) {
			continue
		}
		stats.TotalQueries++
		total += m.DurationMs
		stats.QueryTypeDistribution[m.QueryType]++
		stats.DatabaseStats[m.Store] = addToGroup(stats.DatabaseStats[m.Store], m.DurationMs)
		stats.TableStats[m.Table] = addToGroup(stats.TableStats[m.Table], m.DurationMs)

		if m.DurationMs > slowThresholdMs && len(stats.SlowQueries) < sampleListLimit {
			stats.SlowQueries = append(stats.SlowQueries, m)
		}
		if m.DurationMs <= fastQueryMs && len(stats.FastQueries) < sampleListLimit {
			stats.FastQueries = append(stats.FastQueries, m)
		}
	}
	if stats.TotalQueries > 0 {
		stats.AverageQueryTime = total / float64(stats.TotalQueries)
	}
	return stats
}

func addToGroup(g models.GroupStats, durationMs float64) models.GroupStats {
	g.Count++
	g.TotalTime += durationMs
	g.AvgTime = g.TotalTime / float64(g.Count)
	return g
}

// hourly returns 24 trailing one-hour buckets, oldest first. It covers the
// same [now-24h, now] window as the totals.
func (sa *StatsAggregator) hourly(log []models.Metric, now time.Time) []models.HourlyStat {
	const buckets = 24
	start := now.Add(-buckets * time.Hour)
	out := make([]models.HourlyStat, buckets)
	totals := make([]float64, buckets)
	for i := range out {
		out[i].Hour = start.Add(time.Duration(i) * time.Hour)
	}

	for _, m := range log {
		if m.Timestamp.Before(start) || m.Timestamp.After(now) {
			continue
		}
		// the newest bucket is closed at now
		i := min(int(m.Timestamp.Sub(start)/time.Hour), buckets-1)
		out[i].Count++
		totals[i] += m.DurationMs
	}
	for i := range out {
		if out[i].Count > 0 {
			out[i].AvgTime = totals[i] / float64(out[i].Count)
		}
	}
	return out
}

func (sa *StatsAggregator) trends(log []models.Metric, now time.Time) models.PerformanceTrends {
	var thisSum, lastSum float64
	var thisN, lastN int
	thisStart := now.Add(-week)
	lastStart := now.Add(-2 * week)
	for _, m := range log {
		switch {
		case m.Timestamp.After(now):
		case !m.Timestamp.Before(thisStart):
			thisSum += m.DurationMs
			thisN++
		case !m.Timestamp.Before(lastStart):
			lastSum += m.DurationMs
			lastN++
		}
	}

	var t models.PerformanceTrends
	if thisN > 0 {
		t.ThisWeekAvg = thisSum / float64(thisN)
	}
	if lastN > 0 {
		t.LastWeekAvg = lastSum / float64(lastN)
	}
	if t.LastWeekAvg > 0 && thisN > 0 {
		t.ImprovementSinceLastWeek = (t.LastWeekAvg - t.ThisWeekAvg) / t.LastWeekAvg * 100
	}
	return t
}

func (sa *StatsAggregator) slowest(log []models.Metric, now time.Time) []models.OperationStat {
	type key struct{ op, table string }
	groups := make(map[key]*models.OperationStat)
	totals := make(map[key]float64)
	start := now.Add(-week)
	for _, m := range log {
		if m.Timestamp.Before(start) || m.Timestamp.After(now) {
			continue
		}
		k := key{m.Operation, m.Table}
		g, ok := groups[k]
		if !ok {
			g = &models.OperationStat{Operation: m.Operation, Table: m.Table}
			groups[k] = g
		}
		g.Count++
		totals[k] += m.DurationMs
	}

	out := make([]models.OperationStat, 0, len(groups))
	for k, g := range groups {
		g.AvgTime = totals[k] / float64(g.Count)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgTime != out[j].AvgTime {
			return out[i].AvgTime > out[j].AvgTime
		}
		if out[i].Operation != out[j].Operation {
			return out[i].Operation < out[j].Operation
		}
		return out[i].Table < out[j].Table
	})
	if len(out) > slowestLimit {
		out = out[:slowestLimit]
	}
	return out
}
