package world

import "math/rand/v2"

// WeightedUsizeChoice samples a count: Weights[i] is the relative weight of drawing i.
type WeightedUsizeChoice struct {
	Weights []uint `json:"weights"`
}

// Sample draws one count. An empty or all-zero distribution always yields 0 without
// consuming randomness.
func (c WeightedUsizeChoice) Sample(rng *rand.Rand) int {
	var total uint64
	for _, w := range c.Weights {
		total += uint64(w)
	}
	if total == 0 {
		return 0
	}
	r := rng.Uint64N(total)
	for i, w := range c.Weights {
		if r < uint64(w) {
			return i
		}
		r -= uint64(w)
	}
	return len(c.Weights) - 1
}
