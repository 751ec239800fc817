package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zvdy/dbpulse/src/models"
)

func TestStatsAggregator_SlowAndFast(t *testing.T) {
	log := []models.Metric{
		metricAt("a", "products", 30, true, testNow.Add(-3*time.Minute)),
		metricAt("b", "products", 600, true, testNow.Add(-2*time.Minute)),
		metricAt("c", "products", 45, true, testNow.Add(-time.Minute)),
	}

	stats := NewStatsAggregator().Compute(log, testNow, 500)

	assert.Equal(t, 3, stats.TotalQueries)
	assert.InDelta(t, 225, stats.AverageQueryTime, 1e-9)
	require.Len(t, stats.SlowQueries, 1)
	assert.Equal(t, 600.0, stats.SlowQueries[0].DurationMs)
	require.Len(t, stats.FastQueries, 2)
	assert.Equal(t, "c", stats.FastQueries[0].Operation, "newest first")
}

func TestStatsAggregator_TrailingDayOnly(t *testing.T) {
	log := []models.Metric{
		metricAt("old", "sales", 900, true, testNow.Add(-25*time.Hour)),
		metricAt("new", "sales", 100, true, testNow.Add(-time.Hour)),
	}

	stats := NewStatsAggregator().Compute(log, testNow, 500)

	assert.Equal(t, 1, stats.TotalQueries)
	assert.Empty(t, stats.SlowQueries)
	assert.Equal(t, map[models.QueryType]int{models.QueryTypeSelect: 1}, stats.QueryTypeDistribution)
	assert.Equal(t, models.GroupStats{Count: 1, TotalTime: 100, AvgTime: 100}, stats.TableStats["sales"])
	assert.Equal(t, 1, stats.DatabaseStats["store"].Count)
}

func TestStatsAggregator_SampleListsCapped(t *testing.T) {
	var log []models.Metric
	for i := 0; i < 15; i++ {
		log = append(log, metricAt("slow", "sales", 700, true, testNow.Add(-time.Duration(i)*time.Minute)))
		log = append(log, metricAt("fast", "sales", 10, true, testNow.Add(-time.Duration(i)*time.Minute)))
	}

	stats := NewStatsAggregator().Compute(log, testNow, 500)

	assert.Len(t, stats.SlowQueries, 10)
	assert.Len(t, stats.FastQueries, 10)
}

func TestStatsAggregator_HourlyBuckets(t *testing.T) {
	log := []models.Metric{
		metricAt("a", "sales", 10, true, testNow.Add(-30*time.Minute)),
		metricAt("b", "sales", 30, true, testNow.Add(-50*time.Minute)),
		metricAt("c", "sales", 99, true, testNow.Add(-23*time.Hour-30*time.Minute)),
	}

	hours := NewStatsAggregator().Compute(log, testNow, 500).HourlyStats

	require.Len(t, hours, 24)
	assert.Equal(t, testNow.Add(-24*time.Hour), hours[0].Hour)
	assert.Equal(t, 1, hours[0].Count)
	assert.Equal(t, 99.0, hours[0].AvgTime)
	assert.Equal(t, 2, hours[23].Count)
	assert.Equal(t, 20.0, hours[23].AvgTime)
	assert.Zero(t, hours[12].Count)
	assert.Zero(t, hours[12].AvgTime)
}

func TestStatsAggregator_HourlyIncludesNow(t *testing.T) {
	log := []models.Metric{
		metricAt("a", "sales", 40, true, testNow),
		metricAt("b", "sales", 60, true, testNow.Add(-24*time.Hour)),
		metricAt("c", "sales", 80, true, testNow.Add(time.Second)),
	}

	stats := NewStatsAggregator().Compute(log, testNow, 500)

	var sum int
	for _, h := range stats.HourlyStats {
		sum += h.Count
	}
	assert.Equal(t, 2, stats.TotalQueries)
	assert.Equal(t, stats.TotalQueries, sum)
	assert.Equal(t, 1, stats.HourlyStats[23].Count)
	assert.Equal(t, 40.0, stats.HourlyStats[23].AvgTime)
	assert.Equal(t, 1, stats.HourlyStats[0].Count)
}

func TestStatsAggregator_Trends(t *testing.T) {
	log := []models.Metric{
		metricAt("a", "sales", 200, true, testNow.Add(-10*24*time.Hour)),
		metricAt("b", "sales", 100, true, testNow.Add(-2*24*time.Hour)),
	}

	trends := NewStatsAggregator().Compute(log, testNow, 500).PerformanceTrends

	assert.Equal(t, 100.0, trends.ThisWeekAvg)
	assert.Equal(t, 200.0, trends.LastWeekAvg)
	assert.InDelta(t, 50, trends.ImprovementSinceLastWeek, 1e-9)

	noHistory := NewStatsAggregator().Compute(log[1:], testNow, 500).PerformanceTrends
	assert.Zero(t, noHistory.ImprovementSinceLastWeek)
}

func TestStatsAggregator_SlowestOperations(t *testing.T) {
	var log []models.Metric
	for i, op := range []string{"a", "b", "c", "d", "e", "f"} {
		log = append(log, metricAt(op, "sales", float64(10*(i+1)), true, testNow.Add(-time.Hour)))
	}
	log = append(log, metricAt("a", "sales", 1000, true, testNow.Add(-8*24*time.Hour)))

	slowest := NewStatsAggregator().Compute(log, testNow, 500).SlowestOperations

	require.Len(t, slowest, 5)
	assert.Equal(t, "f", slowest[0].Operation)
	assert.Equal(t, 60.0, slowest[0].AvgTime)
	assert.Equal(t, "b", slowest[4].Operation)
}

func TestStatsAggregator_Idempotent(t *testing.T) {
	log := []models.Metric{
		metricAt("a", "sales", 10, true, testNow.Add(-time.Minute)),
		metricAt("b", "customers", 800, false, testNow.Add(-2*time.Hour)),
	}
	before := append([]models.Metric(nil), log...)
	sa := NewStatsAggregator()

	first := sa.Compute(log, testNow, 500)
	second := sa.Compute(log, testNow, 500)

	assert.Equal(t, first, second)
	assert.Equal(t, before, log)
}

func TestStatsAggregator_Empty(t *testing.T) {
	stats := NewStatsAggregator().Compute(nil, testNow, 500)

	assert.Zero(t, stats.TotalQueries)
	assert.Zero(t, stats.AverageQueryTime)
	assert.NotNil(t, stats.SlowQueries)
	assert.Len(t, stats.HourlyStats, 24)
	assert.Empty(t, stats.SlowestOperations)
}
