package ut

const (
	randMul1 = 6364136223846793005
	randAdd1 = 1442695040888963407
)

// RandGen is a linear congruential generator. It is not safe for concurrent
// use; give each goroutine its own.
type RandGen struct {
	state uint64
}

// NewRandGen creates a generator with the given seed.
func NewRandGen(seed uint64) *RandGen {
	return &RandGen{state: seed}
}

// RandGenNext returns the next pseudo-random value after rnd.
func RandGenNext(rnd uint64) uint64 {
	return rnd*randMul1 + randAdd1
}

// Next returns the next pseudo-random value.
func (r *RandGen) Next() uint64 {
	r.state = RandGenNext(r.state)
	// High bits of an LCG have the longest period.
	return r.state >> 16
}

// Interval returns a random number in [low, high].
func (r *RandGen) Interval(low, high uint64) uint64 {
	if high < low {
		low, high = high, low
	}
	if high == low {
		return low
	}
	return low + r.Next()%(high-low+1)
}

// Percent reports true with probability pct/100.
func (r *RandGen) Percent(pct int) bool {
	if pct <= 0 {
		return false
	}
	return int(r.Next()%100) < pct
}
