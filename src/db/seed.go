package db

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

var (
	seedCategories = []string{"beverages", "snacks", "dairy", "cleaning", "bakery"}
	seedPayments   = []string{"cash", "card", "credit"}
)

// Seed fills store with a synthetic point-of-sale dataset spread over the
// last two years. It returns the number of records inserted per table.
func Seed(ctx context.Context, store Store, customers int, now time.Time, rng *rand.Rand) (map[string]int, error) {
	counts := make(map[string]int)
	insert := func(table string, rec Record) (string, error) {
		id, err := store.Insert(ctx, table, rec)
		if err != nil {
			return "", fmt.Errorf("seed %s: %w", table, err)
		}
		counts[table]++
		return id, nil
	}
	past := func(maxDays int) string {
		return now.Add(-time.Duration(rng.IntN(maxDays*24)) * time.Hour).UTC().Format(time.RFC3339)
	}

	supplierIDs := make([]string, 0)
	for i := 0; i < max(1, customers/5); i++ {
		id, err := insert("suppliers", Record{
			"name":      fmt.Sprintf("Supplier %d", i+1),
			"phone":     fmt.Sprintf("555-%04d", rng.IntN(10000)),
			"createdAt": past(730),
		})
		if err != nil {
			return counts, err
		}
		supplierIDs = append(supplierIDs, id)
	}

	productIDs := make([]string, 0)
	for i := 0; i < customers*2; i++ {
		id, err := insert("products", Record{
			"barcode":    fmt.Sprintf("779%010d", i+1),
			"name":       fmt.Sprintf("Product %d", i+1),
			"category":   seedCategories[rng.IntN(len(seedCategories))],
			"price":      float64(rng.IntN(5000)) / 100,
			"stock":      float64(rng.IntN(40)),
			"supplierId": supplierIDs[rng.IntN(len(supplierIDs))],
			"createdAt":  past(730),
		})
		if err != nil {
			return counts, err
		}
		productIDs = append(productIDs, id)
	}

	customerIDs := make([]string, 0)
	for i := 0; i < customers; i++ {
		debt := 0.0
		if rng.IntN(4) == 0 {
			debt = float64(rng.IntN(20000)) / 100
		}
		id, err := insert("customers", Record{
			"name":      fmt.Sprintf("Customer %d", i+1),
			"phone":     fmt.Sprintf("555-%04d", rng.IntN(10000)),
			"email":     fmt.Sprintf("customer%d@example.com", i+1),
			"debt":      debt,
			"createdAt": past(730),
		})
		if err != nil {
			return counts, err
		}
		customerIDs = append(customerIDs, id)
	}

	for i := 0; i < customers*3; i++ {
		date := past(730)
		total := float64(rng.IntN(90000)) / 100
		saleID, err := insert("sales", Record{
			"customerId":    customerIDs[rng.IntN(len(customerIDs))],
			"total":         total,
			"paymentMethod": seedPayments[rng.IntN(len(seedPayments))],
			"status":        "completed",
			"date":          date,
			"createdAt":     date,
		})
		if err != nil {
			return counts, err
		}

		productID := productIDs[rng.IntN(len(productIDs))]
		if _, err := insert("sale_items", Record{
			"saleId":    saleID,
			"productId": productID,
			"quantity":  float64(1 + rng.IntN(5)),
			"price":     total,
			"createdAt": date,
		}); err != nil {
			return counts, err
		}
		if _, err := insert("stock_movements", Record{
			"productId": productID,
			"type":      "out",
			"quantity":  float64(1 + rng.IntN(5)),
			"date":      date,
			"createdAt": date,
		}); err != nil {
			return counts, err
		}
	}

	return counts, nil
}
