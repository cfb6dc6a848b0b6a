package dsp

import "math"

// Mixer is a numerically controlled oscillator that shifts a channel offset
// down to baseband. Phase carries across blocks.
type Mixer struct {
	phase float64
	step  float64
}

// NewMixer mixes a signal offsetHz away from the tuned center down to DC.
func NewMixer(offsetHz float64, sampleRate uint32) *Mixer {
	return &Mixer{step: -2.0 * math.Pi * offsetHz / float64(sampleRate)}
}

// Retune changes the mix offset without resetting phase.
func (m *Mixer) Retune(offsetHz float64, sampleRate uint32) {
	m.step = -2.0 * math.Pi * offsetHz / float64(sampleRate)
}

func (m *Mixer) Shift(in []complex64) []complex64 {
	out := make([]complex64, len(in))
	for i, v := range in {
		s, c := math.Sincos(m.phase)
		out[i] = v * complex64(complex(c, s))
		m.phase += m.step
		if m.phase > math.Pi {
			m.phase -= 2.0 * math.Pi
		} else if m.phase < -math.Pi {
			m.phase += 2.0 * math.Pi
		}
	}
	return out
}
