package radio

import (
	"math"
	"math/cmplx"
	"math/rand"
)

// Test-signal generators used by the synth benchmark command and tests.

// GenTone produces a unit complex tone at freqHz.
func GenTone(n int, sampleRate, freqHz float64) []complex64 {
	out := make([]complex64, n)
	for i := range out {
		t := float64(i) / sampleRate
		out[i] = complex64(cmplx.Rect(1.0, 2.0*math.Pi*freqHz*t))
	}
	return out
}

// GenFM produces a carrier frequency-modulated by a single audio tone.
func GenFM(n int, sampleRate, deviationHz, toneHz float64) []complex64 {
	out := make([]complex64, n)
	phase := 0.0
	for i := range out {
		t := float64(i) / sampleRate
		inst := deviationHz * math.Sin(2.0*math.Pi*toneHz*t)
		phase += 2.0 * math.Pi * inst / sampleRate
		out[i] = complex64(cmplx.Rect(1.0, phase))
	}
	return out
}

// GenNoise produces complex Gaussian noise scaled to amp.
func GenNoise(n int, amp float64, rng *rand.Rand) []complex64 {
	out := make([]complex64, n)
	for i := range out {
		out[i] = complex64(complex(rng.NormFloat64(), rng.NormFloat64()) * complex(amp, 0))
	}
	return out
}
