package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zvdy/dbpulse/src/models"
)

func newTestAdvisor(r Random) *IndexAdvisor {
	ia := NewIndexAdvisor(newTestLogger(), r)
	ia.SetClock(fixedNow)
	return ia
}

func pattern(table string, freq, avg float64, cols ...string) models.QueryPattern {
	return models.QueryPattern{
		Table:              table,
		Columns:            cols,
		Frequency:          freq,
		AvgExecutionTimeMs: avg,
		QueryType:          models.QueryTypeSelect,
	}
}

func TestIndexAdvisor_SingleColumnScenario(t *testing.T) {
	result := newTestAdvisor(constRandom(0.5)).Recommend([]models.QueryPattern{
		pattern("products", 95, 120, "barcode"),
	})

	require.Len(t, result.Recommendations, 1)
	rec := result.Recommendations[0]
	assert.Equal(t, models.IndexTypeSingle, rec.Type)
	assert.Equal(t, models.PriorityHigh, rec.Priority)
	assert.Equal(t, 90.0, rec.EstimatedImprovementPct)
	assert.Equal(t, "idx_products_barcode", rec.IndexName)
	assert.Equal(t, 5.0, rec.Impact.StorageOverheadPct)
	assert.Equal(t, models.MaintenanceCostLow, rec.Impact.MaintenanceCost)
	assert.Equal(t, testNow, result.AnalysisTimestamp)
	assert.Equal(t, 1, result.TotalPatternsAnalyzed)
}

func TestIndexAdvisor_Filter(t *testing.T) {
	result := newTestAdvisor(constRandom(0.5)).Recommend([]models.QueryPattern{
		pattern("products", 69, 200, "name"),
		pattern("products", 90, 80, "category"),
		pattern("products", 70, 80.5, "stock"),
	})

	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, []string{"stock"}, result.Recommendations[0].Columns)
	assert.InDelta(t, 64.4, result.Recommendations[0].EstimatedImprovementPct, 1e-9)
}

func TestIndexAdvisor_MultiColumn(t *testing.T) {
	result := newTestAdvisor(constRandom(0.5)).Recommend([]models.QueryPattern{
		pattern("sales", 75, 100, "customer_id", "date"),
	})

	require.Len(t, result.Recommendations, 1)
	rec := result.Recommendations[0]
	assert.Equal(t, models.IndexTypeComposite, rec.Type)
	assert.Equal(t, 85.0, rec.EstimatedImprovementPct)
	assert.Equal(t, models.PriorityHigh, rec.Priority)
	assert.Equal(t, "idx_sales_customer_id_date", rec.IndexName)
	assert.Equal(t, 15.0, rec.Impact.StorageOverheadPct)
	assert.Equal(t, models.MaintenanceCostMedium, rec.Impact.MaintenanceCost)
}

func TestIndexAdvisor_Covering(t *testing.T) {
	result := newTestAdvisor(constRandom(0.5)).Recommend([]models.QueryPattern{
		pattern("customers", 80, 10, "name"),
		pattern("customers", 80, 10, "name", "phone"),
		pattern("customers", 75, 10, "phone"),
		pattern("customers", 10, 10, "email"),
	})

	require.Len(t, result.Recommendations, 1)
	rec := result.Recommendations[0]
	assert.Equal(t, models.IndexTypeCovering, rec.Type)
	assert.Equal(t, []string{"name", "phone"}, rec.Columns)
	assert.Equal(t, "idx_customers_covering_name_phone", rec.IndexName)
	assert.InDelta(t, 31.5, rec.EstimatedImprovementPct, 1e-9)
	assert.Equal(t, models.PriorityMedium, rec.Priority)
	assert.Equal(t, 25.0, rec.Impact.StorageOverheadPct)
}

func TestIndexAdvisor_CoveringNeedsTwoColumns(t *testing.T) {
	result := newTestAdvisor(constRandom(0.5)).Recommend([]models.QueryPattern{
		pattern("sales", 90, 10, "date"),
		pattern("sales", 75, 10, "date"),
		pattern("sales", 50, 10, "status"),
	})

	assert.Empty(t, result.Recommendations)
	assert.Zero(t, result.PerformanceGainEstimate)
}

func TestIndexAdvisor_SortedByPriorityAndDeduplicated(t *testing.T) {
	result := newTestAdvisor(constRandom(0.5)).Recommend([]models.QueryPattern{
		pattern("customers", 80, 10, "name"),
		pattern("customers", 80, 10, "name", "phone"),
		pattern("customers", 75, 10, "phone"),
		pattern("products", 95, 120, "barcode"),
		pattern("products", 90, 130, "barcode"),
	})

	require.Len(t, result.Recommendations, 2)
	for i := 1; i < len(result.Recommendations); i++ {
		assert.GreaterOrEqual(t, result.Recommendations[i-1].Priority.Rank(), result.Recommendations[i].Priority.Rank())
	}
	assert.Equal(t, "idx_products_barcode", result.Recommendations[0].IndexName)
	assert.Equal(t, models.IndexTypeCovering, result.Recommendations[1].Type)

	// (90*1.0 + 31.5*0.7) / 1.7
	assert.InDelta(t, 65.91176470588235, result.PerformanceGainEstimate, 1e-9)
}

func TestIndexAdvisor_Confidence(t *testing.T) {
	few := []models.QueryPattern{pattern("t", 10, 10, "a")}
	many := make([]models.QueryPattern, 30)
	for i := range many {
		many[i] = pattern("t", 10, 10, "a")
	}

	assert.InDelta(t, 0.6, newTestAdvisor(constRandom(0.5)).Recommend(few).Confidence, 1e-9)
	assert.InDelta(t, 0.9, newTestAdvisor(constRandom(0.5)).Recommend(many).Confidence, 1e-9)
	assert.InDelta(t, 0.6, newTestAdvisor(constRandom(0)).Recommend(few).Confidence, 1e-9)
	assert.InDelta(t, 0.7, newTestAdvisor(constRandom(1)).Recommend(few).Confidence, 1e-9)

	seeded := newTestAdvisor(NewSeededRandom(11))
	for i := 0; i < 50; i++ {
		c := seeded.Recommend(many).Confidence
		assert.GreaterOrEqual(t, c, 0.6)
		assert.LessOrEqual(t, c, 1.0)
	}
}

func TestIndexAdvisor_Summary(t *testing.T) {
	ia := newTestAdvisor(constRandom(0.5))
	assert.Equal(t, models.RecommendationSummary{}, ia.Summary())

	result := ia.Recommend([]models.QueryPattern{
		pattern("products", 95, 120, "barcode"),
		pattern("sales", 75, 100, "customer_id", "date"),
	})

	summary := ia.Summary()
	assert.Equal(t, 2, summary.TotalRecommendations)
	assert.Equal(t, 2, summary.HighPriorityCount)
	assert.Equal(t, result.PerformanceGainEstimate, summary.EstimatedGain)
	require.NotNil(t, summary.LastAnalysis)
	assert.Equal(t, testNow, *summary.LastAnalysis)
}
