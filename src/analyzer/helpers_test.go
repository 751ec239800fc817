package analyzer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

var testNow = time.Date(2024, 5, 20, 15, 30, 0, 0, time.UTC)

func newTestLogger() *logrus.Logger {
	log, _ := logtest.NewNullLogger()
	return log
}

func fixedNow() time.Time { return testNow }

type memState struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemState() *memState {
	return &memState{values: make(map[string]string)}
}

func (m *memState) GetState(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memState) PutState(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// constRandom always returns the same value
type constRandom float64

func (c constRandom) Float64() float64 { return float64(c) }
