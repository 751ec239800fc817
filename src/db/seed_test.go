package db

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zvdy/dbpulse/src/models"
)

func TestSeed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

	counts, err := Seed(ctx, s, 10, now, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		"suppliers":       2,
		"products":        20,
		"customers":       10,
		"sales":           30,
		"sale_items":      30,
		"stock_movements": 30,
	}, counts)

	sales, err := s.Sample(ctx, "sales", 100)
	require.NoError(t, err)
	require.Len(t, sales, 30)
	for _, rec := range sales {
		date, err := time.Parse(time.RFC3339, rec["date"].(string))
		require.NoError(t, err)
		assert.False(t, date.After(now))
		assert.True(t, date.After(now.AddDate(0, 0, -731)))
	}
}

func TestSeed_SingleSupplierMinimum(t *testing.T) {
	s := newTestStore(t)

	counts, err := Seed(context.Background(), s, 2, time.Now(), rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, err)
	assert.Equal(t, 1, counts["suppliers"])
}

func TestSchemasFor(t *testing.T) {
	all, err := SchemasFor(nil)
	require.NoError(t, err)
	assert.Len(t, all, len(DefaultSchemas))

	some, err := SchemasFor([]string{"sales", "products"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "products", some[0].Name)
	assert.Equal(t, "sales", some[1].Name)

	_, err = SchemasFor([]string{"invoices"})
	assert.ErrorIs(t, err, models.ErrTableNotFound)
}
