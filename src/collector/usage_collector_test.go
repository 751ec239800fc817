package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zvdy/dbpulse/src/analyzer"
	"github.com/zvdy/dbpulse/src/db"
	"github.com/zvdy/dbpulse/src/models"
)

var usageNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func daysAgo(n int) string {
	return usageNow.Add(-time.Duration(n) * 24 * time.Hour).Format(time.RFC3339)
}

func newUsageStore(t *testing.T) *db.SQLiteStore {
	t.Helper()
	s, err := db.OpenSQLite(t.TempDir(), db.DefaultSchemas, newTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUsageCollector(store db.Store) *UsageCollector {
	uc := NewUsageCollector(store, newTestLogger(), analyzer.NewSeededRandom(7))
	uc.SetClock(func() time.Time { return usageNow })
	return uc
}

func byRecord(patterns []models.UsagePattern) map[string]models.UsagePattern {
	out := make(map[string]models.UsagePattern, len(patterns))
	for _, p := range patterns {
		out[p.RecordID] = p
	}
	return out
}

func TestUsageCollector_TableHeuristics(t *testing.T) {
	store := newUsageStore(t)
	ctx := context.Background()

	bigSale, err := store.Insert(ctx, "sales", db.Record{"total": 800.0, "createdAt": daysAgo(400)})
	require.NoError(t, err)
	smallSale, err := store.Insert(ctx, "sales", db.Record{"total": 100.0, "createdAt": daysAgo(400)})
	require.NoError(t, err)
	debtor, err := store.Insert(ctx, "customers", db.Record{"name": "Ana", "debt": 25.0, "createdAt": daysAgo(500)})
	require.NoError(t, err)
	settled, err := store.Insert(ctx, "customers", db.Record{"name": "Luis", "debt": 0.0, "createdAt": daysAgo(500)})
	require.NoError(t, err)
	stocked, err := store.Insert(ctx, "products", db.Record{"barcode": "1", "stock": 5.0, "createdAt": daysAgo(300)})
	require.NoError(t, err)
	fresh, err := store.Insert(ctx, "suppliers", db.Record{"name": "Acme", "createdAt": daysAgo(3)})
	require.NoError(t, err)

	patterns, err := newTestUsageCollector(store).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 6)
	got := byRecord(patterns)

	assert.Equal(t, models.ImportanceHigh, got[bigSale].Importance)
	assert.InDelta(t, 0.8, got[bigSale].BusinessValue, 1e-9)

	assert.Equal(t, models.ImportanceLow, got[smallSale].Importance)
	assert.InDelta(t, 0.1, got[smallSale].BusinessValue, 1e-9)

	assert.Equal(t, models.ImportanceHigh, got[debtor].Importance)
	assert.GreaterOrEqual(t, got[debtor].BusinessValue, 0.8)
	assert.Equal(t, models.ImportanceLow, got[settled].Importance)
	assert.Zero(t, got[settled].BusinessValue)

	assert.Equal(t, models.ImportanceMedium, got[stocked].Importance)

	assert.Equal(t, models.ImportanceHigh, got[fresh].Importance)
	assert.InDelta(t, 1-3.0/365, got[fresh].BusinessValue, 1e-9)
}

func TestUsageCollector_AgeFromDateField(t *testing.T) {
	store := newUsageStore(t)
	ctx := context.Background()

	old, err := store.Insert(ctx, "sales", db.Record{"total": 100.0, "date": daysAgo(400)})
	require.NoError(t, err)
	recent, err := store.Insert(ctx, "sales", db.Record{"total": 100.0, "date": daysAgo(10)})
	require.NoError(t, err)

	patterns, err := newTestUsageCollector(store).CollectTable(ctx, "sales")
	require.NoError(t, err)
	got := byRecord(patterns)

	assert.Equal(t, models.ImportanceLow, got[old].Importance)
	assert.InDelta(t, 0.1, got[old].BusinessValue, 1e-9)
	assert.InDelta(t, float64(got[old].AccessCount)/400, got[old].AccessFrequency, 1e-9)

	assert.Equal(t, models.ImportanceHigh, got[recent].Importance)
}

func TestUsageCollector_SimulatedAccess(t *testing.T) {
	store := newUsageStore(t)
	ctx := context.Background()

	for _, age := range []int{2, 40, 200, 1000} {
		_, err := store.Insert(ctx, "suppliers", db.Record{"name": "s", "createdAt": daysAgo(age)})
		require.NoError(t, err)
	}

	patterns, err := newTestUsageCollector(store).CollectTable(ctx, "suppliers")
	require.NoError(t, err)
	require.Len(t, patterns, 4)

	for i, age := range []int{2, 40, 200, 1000} {
		p := patterns[i]
		lookback := time.Duration(min(age, 90)) * 24 * time.Hour
		assert.False(t, p.LastAccessed.After(usageNow), "age %d", age)
		assert.False(t, p.LastAccessed.Before(usageNow.Add(-lookback)), "age %d", age)

		maxCount := 1 + int(30*recencyFactor(float64(age)))
		assert.GreaterOrEqual(t, p.AccessCount, 1)
		assert.LessOrEqual(t, p.AccessCount, maxCount)
		assert.InDelta(t, float64(p.AccessCount)/float64(age), p.AccessFrequency, 1e-9)
		assert.Positive(t, p.DataSizeBytes)
	}
}

// flakyStore fails sampling of one table
type flakyStore struct {
	db.Store
	broken string
}

func (f flakyStore) Sample(ctx context.Context, table string, limit int) ([]db.Record, error) {
	if table == f.broken {
		return nil, errors.New("corrupt page")
	}
	return f.Store.Sample(ctx, table, limit)
}

func TestUsageCollector_SkipsFailingTable(t *testing.T) {
	store := newUsageStore(t)
	ctx := context.Background()
	_, err := store.Insert(ctx, "sales", db.Record{"total": 10.0})
	require.NoError(t, err)
	_, err = store.Insert(ctx, "customers", db.Record{"name": "x"})
	require.NoError(t, err)

	patterns, err := newTestUsageCollector(flakyStore{Store: store, broken: "sales"}).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "customers", patterns[0].Table)
}

func TestRecordTime_Fallbacks(t *testing.T) {
	now := usageNow
	created := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.Equal(t, created, recordTime(db.Record{"createdAt": created.Format(time.RFC3339)}, now).UTC())
	assert.Equal(t, created, recordTime(db.Record{"date": created.Format(time.RFC3339)}, now).UTC())
	assert.Equal(t, created, recordTime(db.Record{"createdAt": float64(created.Unix())}, now).UTC())
	assert.Equal(t, created, recordTime(db.Record{"createdAt": float64(created.UnixMilli())}, now).UTC())
	assert.Equal(t, now, recordTime(db.Record{"name": "no dates"}, now))
	assert.Equal(t, now, recordTime(db.Record{"createdAt": "yesterday"}, now))
}
