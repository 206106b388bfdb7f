package augment

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// A Sampler is the source of every random draw made while augmenting.
type Sampler interface {
	// Uniform returns a value in [low, high).
	Uniform(low, high float64) float64
	// Normal returns a value from N(mean, std).
	Normal(mean, std float64) float64
	// IntRange returns an integer in [low, high).
	IntRange(low, high int) int
}

type distSampler struct {
	rng *rand.Rand
}

// NewSampler returns a Sampler drawing from rng.
func NewSampler(rng *rand.Rand) Sampler {
	return &distSampler{rng: rng}
}

// NewSeededSampler returns a deterministic Sampler for the given seed.
func NewSeededSampler(seed uint64) Sampler {
	return NewSampler(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

func (s *distSampler) Uniform(low, high float64) float64 {
	if low == high {
		return low
	}
	dist := distuv.Uniform{Min: low, Max: high, Src: s.rng}
	v := dist.Rand()
	// rounding can land exactly on high
	if v >= high {
		v = math.Nextafter(high, low)
	}
	return v
}

func (s *distSampler) Normal(mean, std float64) float64 {
	dist := distuv.Normal{Mu: mean, Sigma: std, Src: s.rng}
	return dist.Rand()
}

func (s *distSampler) IntRange(low, high int) int {
	if high <= low {
		return low
	}
	return low + s.rng.IntN(high-low)
}
