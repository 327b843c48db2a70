package optimization

// Generator constants. Changing any of them changes every candidate sequence.
const (
	generatorSeed       uint64 = 0xC0FFEE1234
	generatorMultiplier uint64 = 6364136223846793005
	generatorIncrement  uint64 = 1

	// mantissaMask keeps the 53 bits that fit a float64 mantissa exactly.
	mantissaMask uint64 = 1<<53 - 1
	// weightFloor keeps every random candidate strictly long-only.
	weightFloor = 1e-6
)

// lcg is the pinned 64-bit linear congruential generator used to draw
// candidate allocations. Arithmetic wraps mod 2^64.
type lcg struct {
	state uint64
}

func newLCG(seed uint64) *lcg {
	return &lcg{state: seed}
}

// next advances the state and returns a value in [0, 1).
func (g *lcg) next() float64 {
	g.state = g.state*generatorMultiplier + generatorIncrement
	return float64((g.state>>11)&mantissaMask) / float64(uint64(1)<<53)
}

// weights draws one long-only allocation over n assets, normalized to sum 1.
func (g *lcg) weights(n int) []float64 {
	w := make([]float64, n)
	sum := 0.0
	for i := range w {
		w[i] = weightFloor + g.next()
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}
