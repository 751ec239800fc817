package analyzer

import (
	"math/rand/v2"
	"sync"
)

// Random is the source of the simulated parts of the estimators. The
// estimates built on it stand in for real telemetry. One source is shared
// by several components, so implementations must be safe for concurrent use.
type Random interface {
	// Float64 returns a value in [0, 1)
	Float64() float64
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }

// DefaultRandom returns the process-wide random source
func DefaultRandom() Random {
	return globalRandom{}
}

// seededRandom guards a *rand.Rand, which is not safe for concurrent use
type seededRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *seededRandom) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// NewSeededRandom returns a deterministic source, for tests and replays
func NewSeededRandom(seed uint64) Random {
	return &seededRandom{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func uniform(r Random, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}
