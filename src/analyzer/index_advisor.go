package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zvdy/dbpulse/src/metrics"
	"github.com/zvdy/dbpulse/src/models"
)

const (
	minPatternFrequency = 70
	minPatternAvgMs     = 80
	coveringMinFreq     = 150
	coveringMaxColumns  = 3
	maxGainEstimate     = 80
)

var priorityWeight = map[models.Priority]float64{
	models.PriorityHigh:   1.0,
	models.PriorityMedium: 0.7,
	models.PriorityLow:    0.4,
}

// IndexAdvisor scores query patterns into ranked index recommendations
type IndexAdvisor struct {
	random Random
	log    *logrus.Logger
	now    func() time.Time

	mu   sync.Mutex
	last *models.AnalysisResult
}

// NewIndexAdvisor creates a new IndexAdvisor instance
func NewIndexAdvisor(log *logrus.Logger, random Random) *IndexAdvisor {
	if random == nil {
		random = DefaultRandom()
	}
	return &IndexAdvisor{
		random: random,
		log:    log,
		now:    time.Now,
	}
}

// SetClock replaces the time source
func (ia *IndexAdvisor) SetClock(now func() time.Time) {
	ia.now = now
}

// Recommend ranks index recommendations for patterns and remembers the
// result for Summary
func (ia *IndexAdvisor) Recommend(patterns []models.QueryPattern) models.AnalysisResult {
	var tables []string
	byTable := make(map[string][]models.QueryPattern)
	for _, p := range patterns {
		if _, ok := byTable[p.Table]; !ok {
			tables = append(tables, p.Table)
		}
		byTable[p.Table] = append(byTable[p.Table], p)
	}

	recs := make([]models.IndexRecommendation, 0)
	seen := make(map[string]bool)
	add := func(r models.IndexRecommendation) {
		key := r.Table + ":" + strings.Join(r.Columns, ",")
		if seen[key] {
			return
		}
		seen[key] = true
		recs = append(recs, r)
	}

	for _, table := range tables {
		for _, p := range byTable[table] {
			if p.Frequency < minPatternFrequency || p.AvgExecutionTimeMs <= minPatternAvgMs {
				continue
			}
			switch {
			case len(p.Columns) == 1:
				add(singleColumn(p))
			case len(p.Columns) > 1:
				add(multiColumn(p))
			}
		}
		if r, ok := covering(table, byTable[table]); ok {
			add(r)
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.Rank() > recs[j].Priority.Rank()
	})

	result := models.AnalysisResult{
		TotalPatternsAnalyzed:   len(patterns),
		Recommendations:         recs,
		PerformanceGainEstimate: gainEstimate(recs),
		AnalysisTimestamp:       ia.now(),
		Confidence:              ia.confidence(len(patterns)),
	}

	counts := make(map[models.Priority]int)
	for _, r := range recs {
		counts[r.Priority]++
	}
	for _, p := range []models.Priority{models.PriorityHigh, models.PriorityMedium, models.PriorityLow} {
		metrics.IndexRecommendations.WithLabelValues(string(p)).Set(float64(counts[p]))
	}

	ia.mu.Lock()
	ia.last = &result
	ia.mu.Unlock()

	ia.log.WithFields(logrus.Fields{
		"patterns":        len(patterns),
		"recommendations": len(recs),
	}).Info("Index analysis completed")
	return result
}

// Summary condenses the latest analysis. It is zero before the first run.
func (ia *IndexAdvisor) Summary() models.RecommendationSummary {
	ia.mu.Lock()
	defer ia.mu.Unlock()

	if ia.last == nil {
		return models.RecommendationSummary{}
	}
	summary := models.RecommendationSummary{
		TotalRecommendations: len(ia.last.Recommendations),
		EstimatedGain:        ia.last.PerformanceGainEstimate,
	}
	for _, r := range ia.last.Recommendations {
		if r.Priority == models.PriorityHigh {
			summary.HighPriorityCount++
		}
	}
	ts := ia.last.AnalysisTimestamp
	summary.LastAnalysis = &ts
	return summary
}

func singleColumn(p models.QueryPattern) models.IndexRecommendation {
	improvement := math.Min(90, p.AvgExecutionTimeMs/50*40)
	priority := models.PriorityLow
	switch {
	case improvement > 60:
		priority = models.PriorityHigh
	case improvement > 30:
		priority = models.PriorityMedium
	}
	return models.IndexRecommendation{
		Table:                   p.Table,
		IndexName:               indexName(p.Table, p.Columns),
		Columns:                 p.Columns,
		Type:                    models.IndexTypeSingle,
		Priority:                priority,
		EstimatedImprovementPct: improvement,
		Reasoning: fmt.Sprintf("Column %s is filtered in %.0f%% of queries on %s averaging %.1fms",
			p.Columns[0], p.Frequency, p.Table, p.AvgExecutionTimeMs),
		Impact: models.IndexImpact{
			QuerySpeedupPct:    improvement,
			StorageOverheadPct: 5,
			MaintenanceCost:    models.MaintenanceCostLow,
		},
		AffectedQueries: affected(p),
	}
}

func multiColumn(p models.QueryPattern) models.IndexRecommendation {
	improvement := math.Min(85, p.AvgExecutionTimeMs/50*50)
	priority := models.PriorityLow
	switch {
	case improvement > 65:
		priority = models.PriorityHigh
	case improvement > 35:
		priority = models.PriorityMedium
	}
	return models.IndexRecommendation{
		Table:                   p.Table,
		IndexName:               indexName(p.Table, p.Columns),
		Columns:                 p.Columns,
		Type:                    models.IndexTypeComposite,
		Priority:                priority,
		EstimatedImprovementPct: improvement,
		Reasoning: fmt.Sprintf("Columns %s are used together in %.0f%% of queries on %s averaging %.1fms",
			strings.Join(p.Columns, ", "), p.Frequency, p.Table, p.AvgExecutionTimeMs),
		Impact: models.IndexImpact{
			QuerySpeedupPct:    improvement,
			StorageOverheadPct: 15,
			MaintenanceCost:    models.MaintenanceCostMedium,
		},
		AffectedQueries: affected(p),
	}
}

// covering sums pattern frequency per column and proposes one index over
// the busiest columns of the table
func covering(table string, patterns []models.QueryPattern) (models.IndexRecommendation, bool) {
	var order []string
	sums := make(map[string]float64)
	for _, p := range patterns {
		for _, c := range p.Columns {
			if _, ok := sums[c]; !ok {
				order = append(order, c)
			}
			sums[c] += p.Frequency
		}
	}

	var hot []string
	for _, c := range order {
		if sums[c] >= coveringMinFreq {
			hot = append(hot, c)
		}
	}
	sort.SliceStable(hot, func(i, j int) bool { return sums[hot[i]] > sums[hot[j]] })
	if len(hot) > coveringMaxColumns {
		hot = hot[:coveringMaxColumns]
	}
	if len(hot) < 2 {
		return models.IndexRecommendation{}, false
	}

	var total float64
	for _, c := range hot {
		total += sums[c]
	}
	improvement := math.Min(75, total/10)

	var queries []string
	for _, p := range patterns {
		for _, c := range p.Columns {
			if containsColumn(hot, c) {
				queries = append(queries, affected(p)...)
				break
			}
		}
	}

	return models.IndexRecommendation{
		Table:                   table,
		IndexName:               indexName(table, append([]string{"covering"}, hot...)),
		Columns:                 hot,
		Type:                    models.IndexTypeCovering,
		Priority:                models.PriorityMedium,
		EstimatedImprovementPct: improvement,
		Reasoning:               fmt.Sprintf("Columns %s appear across most queries on %s", strings.Join(hot, ", "), table),
		Impact: models.IndexImpact{
			QuerySpeedupPct:    improvement,
			StorageOverheadPct: 25,
			MaintenanceCost:    models.MaintenanceCostMedium,
		},
		AffectedQueries: queries,
	}, true
}

func affected(p models.QueryPattern) []string {
	if p.Query != "" {
		return []string{p.Query}
	}
	return []string{fmt.Sprintf("%s %s WHERE %s", p.QueryType, p.Table, strings.Join(p.FilterConditions, " AND "))}
}

func indexName(table string, columns []string) string {
	return "idx_" + table + "_" + strings.Join(columns, "_")
}

func gainEstimate(recs []models.IndexRecommendation) float64 {
	var sum, weights float64
	for _, r := range recs {
		w := priorityWeight[r.Priority]
		sum += r.EstimatedImprovementPct * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return math.Min(maxGainEstimate, sum/weights)
}

// confidence grows with the number of patterns. It is a heuristic, jittered
// by up to 0.1 either way.
func (ia *IndexAdvisor) confidence(patterns int) float64 {
	c := math.Max(0.6, math.Min(0.9, float64(patterns)/20))
	c += uniform(ia.random, -0.1, 0.1)
	return models.ClampPercent(c, 0.6, 1)
}
