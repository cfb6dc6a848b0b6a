package dsp

import (
	"fmt"
	"math"
	"strings"
)

// Mode is the closed set of demodulation kinds, fixed at configuration time.
type Mode string

const (
	ModeFM Mode = "fm"
	ModeAM Mode = "am"
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "fm", "nfm", "wfm":
		return ModeFM, nil
	case "am":
		return ModeAM, nil
	}
	return "", fmt.Errorf("unknown modulation %q", s)
}

const (
	deemphasisTau = 75e-6 // FM broadcast RC de-emphasis
	dcTrackerTau  = 50e-3
	agcTargetRMS  = 0.1
)

// Demodulator converts complex baseband blocks into audio samples at a
// fixed output rate. Implementations keep only filter memory (previous
// sample, de-emphasis accumulator, resampler phase) across blocks; each
// instance is owned by exactly one channel.
type Demodulator interface {
	Mode() Mode
	AudioRate() int
	Demodulate(samples []complex64, sampleRate uint32) []float32
	Reset()
}

func NewDemodulator(mode Mode, audioRate int) (Demodulator, error) {
	if audioRate <= 0 {
		return nil, fmt.Errorf("bad audio rate %d", audioRate)
	}
	switch mode {
	case ModeFM:
		return &fmDemod{audioRate: audioRate}, nil
	case ModeAM:
		return &amDemod{audioRate: audioRate}, nil
	}
	return nil, fmt.Errorf("unknown modulation %q", mode)
}

// fmDemod takes the discrete derivative of instantaneous phase, removes the
// block mean (carrier offset), applies RC de-emphasis, and resamples to the
// audio rate.
type fmDemod struct {
	audioRate int
	prev      complex64
	primed    bool
	deemph    float64
	rs        resampler
}

func (d *fmDemod) Mode() Mode     { return ModeFM }
func (d *fmDemod) AudioRate() int { return d.audioRate }

func (d *fmDemod) Reset() {
	d.prev, d.primed, d.deemph = 0, false, 0
	d.rs.reset()
}

func (d *fmDemod) Demodulate(samples []complex64, sampleRate uint32) []float32 {
	if len(samples) == 0 {
		return nil
	}
	if !d.primed {
		d.prev = samples[0]
		d.primed = true
	}
	disc := make([]float32, len(samples))
	mean := float64(0)
	for i, cur := range samples {
		// phase difference of conj(prev)*cur, scaled to [-1, 1]
		re := float64(real(cur))*float64(real(d.prev)) + float64(imag(cur))*float64(imag(d.prev))
		im := float64(imag(cur))*float64(real(d.prev)) - float64(real(cur))*float64(imag(d.prev))
		v := math.Atan2(im, re) / math.Pi
		disc[i] = float32(v)
		mean += v
		d.prev = cur
	}
	mean /= float64(len(disc))
	alpha := math.Exp(-1.0 / (float64(sampleRate) * deemphasisTau))
	for i := range disc {
		d.deemph = alpha*d.deemph + (1.0-alpha)*(float64(disc[i])-mean)
		disc[i] = float32(d.deemph)
	}
	audio := d.rs.resample(disc, float64(sampleRate), d.audioRate)
	return agcNormalize(audio, agcTargetRMS)
}

// amDemod takes the envelope, tracks out the DC carrier level, and
// resamples to the audio rate.
type amDemod struct {
	audioRate int
	dc        float64
	primed    bool
	rs        resampler
}

func (d *amDemod) Mode() Mode     { return ModeAM }
func (d *amDemod) AudioRate() int { return d.audioRate }

func (d *amDemod) Reset() {
	d.dc, d.primed = 0, false
	d.rs.reset()
}

func (d *amDemod) Demodulate(samples []complex64, sampleRate uint32) []float32 {
	if len(samples) == 0 {
		return nil
	}
	env := make([]float32, len(samples))
	alpha := math.Exp(-1.0 / (float64(sampleRate) * dcTrackerTau))
	for i, v := range samples {
		re, im := float64(real(v)), float64(imag(v))
		e := math.Sqrt(re*re + im*im)
		if !d.primed {
			d.dc = e
			d.primed = true
		}
		d.dc = alpha*d.dc + (1.0-alpha)*e
		env[i] = float32(e - d.dc)
	}
	audio := d.rs.resample(env, float64(sampleRate), d.audioRate)
	return agcNormalize(audio, agcTargetRMS)
}

// resampler is a linear interpolator with fractional-phase carry so output
// is continuous across block boundaries.
type resampler struct {
	pos    float64
	last   float32
	primed bool
}

func (r *resampler) reset() { r.pos, r.last, r.primed = 0, 0, false }

func (r *resampler) resample(in []float32, inRate float64, outRate int) []float32 {
	if len(in) == 0 {
		return nil
	}
	if outRate <= 0 || float64(outRate) == inRate {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	step := inRate / float64(outRate)
	out := make([]float32, 0, int(float64(len(in))/step)+2)
	pos := r.pos
	if !r.primed {
		pos = 0
		r.primed = true
	}
	for {
		i := int(math.Floor(pos))
		if i+1 >= len(in) {
			break
		}
		var s0 float32
		if i < 0 {
			s0 = r.last
		} else {
			s0 = in[i]
		}
		frac := float32(pos - float64(i))
		out = append(out, s0+(in[i+1]-s0)*frac)
		pos += step
	}
	r.pos = pos - float64(len(in))
	r.last = in[len(in)-1]
	return out
}

func agcNormalize(audio []float32, target float32) []float32 {
	if len(audio) == 0 {
		return audio
	}
	sum := float64(0)
	for _, v := range audio {
		sum += float64(v) * float64(v)
	}
	rms := float32(math.Sqrt(sum / float64(len(audio))))
	if rms < 1e-6 {
		return audio
	}
	scale := target / rms
	for i := range audio {
		audio[i] *= scale
	}
	return audio
}
