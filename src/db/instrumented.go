package db

import (
	"context"
	"time"

	"github.com/zvdy/dbpulse/src/models"
)

// OperationObserver receives one completed store operation
type OperationObserver interface {
	RecordMetric(ctx context.Context, in models.MetricInput) models.Metric
}

// InstrumentedStore decorates a Store so that point lookups, bulk scans and
// writes are timed and reported to an observer. Results and errors of the
// wrapped store are returned unchanged.
type InstrumentedStore struct {
	Store
	observer OperationObserver
}

// Instrument wraps store with observer
func Instrument(store Store, observer OperationObserver) *InstrumentedStore {
	return &InstrumentedStore{Store: store, observer: observer}
}

// Unwrap returns the undecorated store
func (s *InstrumentedStore) Unwrap() Store {
	return s.Store
}

func (s *InstrumentedStore) observe(ctx context.Context, op, table string, qt models.QueryType, start time.Time, count *int, err error) {
	in := models.MetricInput{
		Operation:   op,
		Store:       s.Store.Name(),
		Table:       table,
		DurationMs:  float64(time.Since(start).Microseconds()) / 1000,
		QueryType:   qt,
		Success:     err == nil,
		RecordCount: count,
	}
	if err != nil {
		in.ErrorMessage = err.Error()
	}
	s.observer.RecordMetric(ctx, in)
}

// Get is an observed point lookup
func (s *InstrumentedStore) Get(ctx context.Context, table, id string) (Record, error) {
	start := time.Now()
	rec, err := s.Store.Get(ctx, table, id)

	n := 0
	if rec != nil {
		n = 1
	}
	s.observe(ctx, "get", table, models.QueryTypeSelect, start, models.IntPtr(n), err)
	return rec, err
}

// Sample is an observed bulk scan
func (s *InstrumentedStore) Sample(ctx context.Context, table string, limit int) ([]Record, error) {
	start := time.Now()
	records, err := s.Store.Sample(ctx, table, limit)
	s.observe(ctx, "scan", table, models.QueryTypeSelect, start, models.IntPtr(len(records)), err)
	return records, err
}

// Insert is an observed write
func (s *InstrumentedStore) Insert(ctx context.Context, table string, rec Record) (string, error) {
	start := time.Now()
	id, err := s.Store.Insert(ctx, table, rec)
	s.observe(ctx, "insert", table, models.QueryTypeInsert, start, models.IntPtr(1), err)
	return id, err
}

// Update is an observed write
func (s *InstrumentedStore) Update(ctx context.Context, table, id string, rec Record) error {
	start := time.Now()
	err := s.Store.Update(ctx, table, id, rec)
	s.observe(ctx, "update", table, models.QueryTypeUpdate, start, models.IntPtr(1), err)
	return err
}

// Delete is an observed write
func (s *InstrumentedStore) Delete(ctx context.Context, table, id string) error {
	start := time.Now()
	err := s.Store.Delete(ctx, table, id)
	s.observe(ctx, "delete", table, models.QueryTypeDelete, start, models.IntPtr(1), err)
	return err
}

// Indexes is observed as an INDEX operation
func (s *InstrumentedStore) Indexes(ctx context.Context, table string) ([][]string, error) {
	start := time.Now()
	idx, err := s.Store.Indexes(ctx, table)
	s.observe(ctx, "indexes", table, models.QueryTypeIndex, start, models.IntPtr(len(idx)), err)
	return idx, err
}
