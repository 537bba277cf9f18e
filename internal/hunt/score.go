package hunt

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// NoiseBound caps the tie-break noise added to hypothesis scores. It is
// small enough that candidates differing in severity or support never swap
// rank; only exact ties are broken.
const NoiseBound = 0.05

// Scorer ranks hypotheses with a severity/support heuristic. The noise
// source is seeded so tests can pin the ordering of exact ties.
type Scorer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewScorer creates a Scorer seeded with seed.
func NewScorer(seed int64) *Scorer {
	return &Scorer{rng: rand.New(rand.NewSource(seed))}
}

// Score computes severity * ln(1 + support) plus bounded tie-break noise.
func (s *Scorer) Score(severity, support int) float64 {
	return float64(severity)*math.Log1p(float64(support)) + s.noise()
}

func (s *Scorer) noise() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() * NoiseBound
}

// sortByScore orders hypotheses descending by score, in place.
func sortByScore(hyps []Hypothesis) {
	sort.SliceStable(hyps, func(i, j int) bool {
		return hyps[i].Score > hyps[j].Score
	})
}

// ParseRiskScore extracts the numeric prefix of an external risk assessment
// and clamps it to [0,10]. Unparseable text yields fallback (the alert's
// derived severity), never an error.
func ParseRiskScore(text string, fallback float64) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return fallback
	}
	first := strings.TrimRight(fields[0], ".,:;")
	val, err := strconv.ParseFloat(first, 64)
	if err != nil {
		return fallback
	}
	return math.Max(0, math.Min(10, val))
}
