package collector

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/zvdy/dbpulse/src/analyzer"
	"github.com/zvdy/dbpulse/src/db"
	"github.com/zvdy/dbpulse/src/models"
)

// SampleSize is the number of records inspected per table
const SampleSize = 100

var saleValueCeiling = decimal.NewFromInt(1000)

// UsageCollector derives per-record usage patterns from the live store.
// Access counts and last access times are simulated from record age until
// the store reports real access telemetry.
type UsageCollector struct {
	store  db.Store
	log    *logrus.Logger
	random analyzer.Random
	now    func() time.Time
}

// NewUsageCollector creates a new UsageCollector instance
func NewUsageCollector(store db.Store, log *logrus.Logger, random analyzer.Random) *UsageCollector {
	if random == nil {
		random = analyzer.DefaultRandom()
	}
	return &UsageCollector{
		store:  store,
		log:    log,
		random: random,
		now:    time.Now,
	}
}

// SetClock replaces the time source
func (uc *UsageCollector) SetClock(now func() time.Time) {
	uc.now = now
}

// Collect samples every table and returns one pattern per record. A table
// that cannot be sampled is logged and skipped.
func (uc *UsageCollector) Collect(ctx context.Context) ([]models.UsagePattern, error) {
	tables, err := uc.store.Tables(ctx)
	if err != nil {
		return nil, err
	}

	var patterns []models.UsagePattern
	for _, table := range tables {
		tablePatterns, err := uc.CollectTable(ctx, table)
		if err != nil {
			uc.log.Warnf("Failed to sample table %s: %v", table, err)
			continue
		}
		patterns = append(patterns, tablePatterns...)
	}

	uc.log.Debugf("Collected %d usage patterns from %d tables", len(patterns), len(tables))
	return patterns, nil
}

// CollectTable derives usage patterns for the sampled records of one table
func (uc *UsageCollector) CollectTable(ctx context.Context, table string) ([]models.UsagePattern, error) {
	records, err := uc.store.Sample(ctx, table, SampleSize)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	patterns := make([]models.UsagePattern, 0, len(records))
	for _, rec := range records {
		patterns = append(patterns, uc.pattern(table, rec, now))
	}
	return patterns, nil
}

func (uc *UsageCollector) pattern(table string, rec db.Record, now time.Time) models.UsagePattern {
	created := recordTime(rec, now)
	ageDays := now.Sub(created).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}

	lookback := math.Min(ageDays, 90)
	lastAccessed := now.Add(-time.Duration(uc.random.Float64() * lookback * float64(24*time.Hour)))

	accessCount := 1 + int(math.Floor(uc.random.Float64()*30*recencyFactor(ageDays)))

	size := 0
	if data, err := json.Marshal(rec); err == nil {
		size = len(data)
	}

	p := models.UsagePattern{
		Table:           table,
		RecordID:        rec.ID(),
		LastAccessed:    lastAccessed,
		AccessCount:     accessCount,
		AccessFrequency: float64(accessCount) / math.Max(ageDays, 1),
		DataSizeBytes:   size,
		Importance:      importanceByAge(ageDays),
		BusinessValue:   math.Max(0, 1-ageDays/365),
	}

	switch table {
	case "sales":
		total := decimalValue(rec["total"])
		bv, _ := decimal.Min(decimal.NewFromInt(1), total.Div(saleValueCeiling)).Float64()
		p.BusinessValue = math.Max(0, bv)
		if total.GreaterThanOrEqual(decimal.NewFromInt(500)) {
			p.Importance = models.ImportanceHigh
		}
	case "customers":
		if decimalValue(rec["debt"]).IsPositive() {
			p.Importance = models.ImportanceHigh
			p.BusinessValue = math.Max(p.BusinessValue, 0.8)
		}
	case "products":
		if stock, ok := db.FloatValue(rec["stock"]); ok && stock > 0 && p.Importance == models.ImportanceLow {
			p.Importance = models.ImportanceMedium
		}
	}

	return p
}

func recencyFactor(ageDays float64) float64 {
	switch {
	case ageDays < 30:
		return 1
	case ageDays < 180:
		return 0.5
	default:
		return 0.1
	}
}

func importanceByAge(ageDays float64) models.Importance {
	switch {
	case ageDays < 30:
		return models.ImportanceHigh
	case ageDays < 180:
		return models.ImportanceMedium
	default:
		return models.ImportanceLow
	}
}

func decimalValue(v interface{}) decimal.Decimal {
	switch n := v.(type) {
	case string:
		if d, err := decimal.NewFromString(n); err == nil {
			return d
		}
	default:
		if f, ok := db.FloatValue(v); ok {
			return decimal.NewFromFloat(f)
		}
	}
	return decimal.Zero
}

// recordTime reads createdAt, falling back to date, then now. RFC3339
// strings and unix seconds or milliseconds are accepted.
func recordTime(rec db.Record, now time.Time) time.Time {
	for _, field := range []string{"createdAt", "date"} {
		if t, ok := parseTime(rec[field]); ok {
			return t
		}
	}
	return now
}

func parseTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse("2006-01-02", t); err == nil {
			return parsed, true
		}
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return unixTime(n), true
		}
	default:
		if f, ok := db.FloatValue(v); ok {
			return unixTime(int64(f)), true
		}
	}
	return time.Time{}, false
}

func unixTime(n int64) time.Time {
	// values past 1e11 can only be milliseconds
	if n > 1e11 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
