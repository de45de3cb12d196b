package prize

import (
	"math/rand/v2"
	"sort"
)

// RandomSource yields uniform integers in [0, n).
type RandomSource interface {
	IntN(n int) int
}

// SystemSource draws from the runtime's ChaCha8-seeded generator.
type SystemSource struct{}

func (SystemSource) IntN(n int) int { return rand.IntN(n) }

// Draw picks a prize with probability weight/total. A draw r selects the
// first prize whose cumulative upper bound exceeds r.
func Draw(c *Catalog, src RandomSource) Prize {
	if len(c.prizes) == 1 {
		return c.prizes[0]
	}
	r := src.IntN(c.total)
	i := sort.Search(len(c.bounds), func(i int) bool { return c.bounds[i] > r })
	return c.prizes[i]
}
