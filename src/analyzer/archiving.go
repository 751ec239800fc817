package analyzer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/zvdy/dbpulse/src/db"
	"github.com/zvdy/dbpulse/src/metrics"
	"github.com/zvdy/dbpulse/src/models"
)

const (
	// MaxRulesPerRun bounds how many archiving rules one run applies
	MaxRulesPerRun = 3

	archiveSuccessRatio = 0.8
	maxArchiveGainPct   = 50
	day                 = 24 * time.Hour
)

var bytesPerMB = decimal.NewFromInt(1024 * 1024)

// ArchivePlanner groups usage patterns per table into ranked archiving rules
type ArchivePlanner struct {
	now func() time.Time
}

// NewArchivePlanner creates a new ArchivePlanner instance
func NewArchivePlanner() *ArchivePlanner {
	return &ArchivePlanner{now: time.Now}
}

// SetClock replaces the time source
func (ap *ArchivePlanner) SetClock(now func() time.Time) {
	ap.now = now
}

type ruleSpec struct {
	condition   string
	description string
	priority    int
	retention   int
	match       func(models.UsagePattern) bool
}

// Plan returns the rules matching at least one record, highest priority first
func (ap *ArchivePlanner) Plan(patterns []models.UsagePattern) []models.ArchivingRule {
	now := ap.now()

	var tables []string
	byTable := make(map[string][]models.UsagePattern)
	for _, p := range patterns {
		if _, ok := byTable[p.Table]; !ok {
			tables = append(tables, p.Table)
		}
		byTable[p.Table] = append(byTable[p.Table], p)
	}

	rules := make([]models.ArchivingRule, 0)
	for _, table := range tables {
		for _, spec := range ruleSpecs(table, now) {
			if rule, ok := buildRule(table, spec, byTable[table]); ok {
				rules = append(rules, rule)
			}
		}
	}

	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })
	return rules
}

func ruleSpecs(table string, now time.Time) []ruleSpec {
	specs := []ruleSpec{
		{
			condition:   "importance = LOW",
			description: fmt.Sprintf("Archive low-importance records of %s", table),
			priority:    80,
			retention:   180,
			match:       func(p models.UsagePattern) bool { return p.Importance == models.ImportanceLow },
		},
		{
			condition:   "accessFrequency < 0.1 AND lastAccessed < now-30d",
			description: fmt.Sprintf("Archive stale records of %s not accessed in 30 days", table),
			priority:    90,
			retention:   90,
			match: func(p models.UsagePattern) bool {
				return p.AccessFrequency < 0.1 && now.Sub(p.LastAccessed) > 30*day
			},
		},
	}

	switch {
	case strings.Contains(table, "sales"):
		specs = append(specs, ruleSpec{
			condition:   "businessValue < 0.4 AND lastAccessed < now-365d",
			description: fmt.Sprintf("Archive low-value %s older than a year", table),
			priority:    85,
			retention:   365,
			match: func(p models.UsagePattern) bool {
				return p.BusinessValue < 0.4 && now.Sub(p.LastAccessed) > 365*day
			},
		})
	case strings.Contains(table, "customers"):
		specs = append(specs, ruleSpec{
			condition:   "businessValue < 0.5 AND accessFrequency < 0.2",
			description: fmt.Sprintf("Archive inactive low-value %s", table),
			priority:    70,
			retention:   540,
			match: func(p models.UsagePattern) bool {
				return p.BusinessValue < 0.5 && p.AccessFrequency < 0.2
			},
		})
	}
	return specs
}

func buildRule(table string, spec ruleSpec, patterns []models.UsagePattern) (models.ArchivingRule, bool) {
	var records, bytes int
	for _, p := range patterns {
		if spec.match(p) {
			records++
			bytes += p.DataSizeBytes
		}
	}
	if records == 0 {
		return models.ArchivingRule{}, false
	}
	return models.ArchivingRule{
		Table:                  table,
		Condition:              spec.condition,
		Priority:               spec.priority,
		RetentionDays:          spec.retention,
		Description:            spec.description,
		EstimatedRecords:       records,
		EstimatedSpaceSavingMB: toMB(bytes),
	}, true
}

func toMB(bytes int) float64 {
	mb, _ := decimal.NewFromInt(int64(bytes)).Div(bytesPerMB).Round(2).Float64()
	return mb
}

// ArchiveExecutor applies the top ranked rules. The move itself is
// simulated with a fixed success ratio; each applied rule is journaled.
type ArchiveExecutor struct {
	journal db.ArchiveJournal
	random  Random
	log     *logrus.Logger
	now     func() time.Time

	mu     sync.Mutex
	status models.SmartArchivingStatus
}

// NewArchiveExecutor creates a new ArchiveExecutor instance. journal may be nil.
func NewArchiveExecutor(journal db.ArchiveJournal, log *logrus.Logger, random Random) *ArchiveExecutor {
	if random == nil {
		random = DefaultRandom()
	}
	return &ArchiveExecutor{
		journal: journal,
		random:  random,
		log:     log,
		now:     time.Now,
		status:  models.SmartArchivingStatus{IsEnabled: true},
	}
}

// SetClock replaces the time source
func (ex *ArchiveExecutor) SetClock(now func() time.Time) {
	ex.now = now
}

// Execute applies at most MaxRulesPerRun rules, in order. A rule that
// cannot be journaled is logged and skipped.
func (ex *ArchiveExecutor) Execute(ctx context.Context, analyzed int, rules []models.ArchivingRule) models.SmartArchiveResult {
	now := ex.now()
	result := models.SmartArchiveResult{
		Success:         true,
		AnalyzedRecords: analyzed,
		AppliedRules:    make([]models.ArchivingRule, 0),
		Recommendations: make([]string, 0),
	}

	candidates := rules
	if len(candidates) > MaxRulesPerRun {
		candidates = candidates[:MaxRulesPerRun]
	}

	var saved float64
	for _, rule := range candidates {
		archived := int(math.Floor(float64(rule.EstimatedRecords) * archiveSuccessRatio))
		spaceMB := rule.EstimatedSpaceSavingMB * archiveSuccessRatio

		if ex.journal != nil {
			err := ex.journal.JournalArchive(ctx, db.ArchiveEntry{
				Table:         rule.Table,
				Condition:     rule.Condition,
				ArchivedCount: archived,
				SpaceSavedMB:  spaceMB,
				RetentionDays: rule.RetentionDays,
				AppliedAt:     now,
			})
			if err != nil {
				ex.log.Warnf("Failed to apply archiving rule %q on %s: %v", rule.Condition, rule.Table, err)
				continue
			}
		}

		result.ArchivedRecords += archived
		saved += spaceMB
		result.AppliedRules = append(result.AppliedRules, rule)
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("%s: archived %d records, kept for %d days", rule.Description, archived, rule.RetentionDays))

		metrics.ArchivedRecords.WithLabelValues(rule.Table).Add(float64(archived))
		metrics.SpaceReclaimed.Add(spaceMB)
	}

	result.SpaceSaved = roundMB(saved)
	result.PerformanceImprovement = math.Min(maxArchiveGainPct, saved*0.2)

	// stands in for a growth rate measured from insert volume
	growth := ex.random.Float64()
	if growth > 0.5 {
		result.NextOptimizationDate = now.Add(7 * day)
	} else {
		result.NextOptimizationDate = now.Add(30 * day)
	}

	pending, benefit := pendingRules(rules, result.AppliedRules)
	if pending > 0 {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("%d more rules pending, about %.2f MB reclaimable on the next run", pending, benefit))
	}
	if len(rules) == 0 {
		result.Recommendations = append(result.Recommendations, "No archiving needed, the active dataset is healthy")
	}

	ex.mu.Lock()
	ex.status.LastRun = &now
	next := result.NextOptimizationDate
	ex.status.NextScheduled = &next
	ex.status.PendingRules = pending
	ex.status.EstimatedBenefit = benefit
	ex.mu.Unlock()

	ex.log.WithFields(logrus.Fields{
		"applied":  len(result.AppliedRules),
		"archived": result.ArchivedRecords,
		"saved_mb": result.SpaceSaved,
	}).Info("Smart archiving completed")
	return result
}

func pendingRules(all, applied []models.ArchivingRule) (int, float64) {
	done := make(map[string]bool, len(applied))
	for _, r := range applied {
		done[r.Table+"|"+r.Condition] = true
	}
	var n int
	var mb float64
	for _, r := range all {
		if done[r.Table+"|"+r.Condition] {
			continue
		}
		n++
		mb += r.EstimatedSpaceSavingMB
	}
	return n, roundMB(mb)
}

func roundMB(mb float64) float64 {
	v, _ := decimal.NewFromFloat(mb).Round(2).Float64()
	return v
}

// Status reports the state of the archiving loop
func (ex *ArchiveExecutor) Status() models.SmartArchivingStatus {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.status
}

// SetEnabled records whether archiving may run
func (ex *ArchiveExecutor) SetEnabled(enabled bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.status.IsEnabled = enabled
}

// Restore replaces the status, typically with a persisted one
func (ex *ArchiveExecutor) Restore(status models.SmartArchivingStatus) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.status = status
}
