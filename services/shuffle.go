package services

// seededRandom is a small linear congruential generator. Its output depends
// only on the seed string, so a member's queue order is reproducible.
type seededRandom struct {
	state int64
}

const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

func newSeededRandom(seed string) *seededRandom {
	return &seededRandom{state: hashSeed(seed)}
}

// hashSeed folds seed into a non-negative integer using h = h*31 + c with
// 32-bit wraparound.
func hashSeed(seed string) int64 {
	var h int32
	for _, c := range seed {
		h = h*31 + int32(c)
	}
	n := int64(h)
	if n < 0 {
		n = -n
	}
	return n
}

// next returns a value in [0, 1).
func (r *seededRandom) next() float64 {
	r.state = (r.state*lcgMultiplier + lcgIncrement) % lcgModulus
	return float64(r.state) / lcgModulus
}

// GenerateShuffledList returns a permutation of masterList determined by seed.
// masterList is never modified.
func GenerateShuffledList(masterList []string, seed string) []string {
	out := make([]string, len(masterList))
	copy(out, masterList)
	if len(out) < 2 {
		return out
	}

	rng := newSeededRandom(seed)
	for i := len(out) - 1; i > 0; i-- {
		j := int(rng.next() * float64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}
