package dsp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
)

const dbFloor = 1e-12

// Power computes the RMS magnitude of a sample block.
func Power(samples []complex64) float64 {
	if len(samples) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range samples {
		re, im := float64(real(v)), float64(imag(v))
		sum += re*re + im*im
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// PowerDB is Power expressed in dBFS.
func PowerDB(samples []complex64) float64 {
	return 20.0 * math.Log10(Power(samples)+1e-6)
}

// SpectralPower estimates a windowed magnitude spectrum and per-band signal
// strength from sample blocks. Bin powers are normalized so that summing
// every bin recovers the mean signal power, which keeps band strength in
// the same dBFS scale as squelch thresholds. An exponential moving average
// with fixed decay smooths block-to-block jitter.
type SpectralPower struct {
	fft    *fourier.CmplxFFT
	window []float64
	in     []complex128
	avg    []float64 // EMA of normalized linear bin power, DC-centered
	bins   int
	alpha  float64
	norm   float64
	primed bool
}

// NewSpectralPower builds an estimator with the given FFT size. smoothing is
// the EMA weight of history in [0,1); zero disables smoothing.
func NewSpectralPower(bins int, smoothing float64) *SpectralPower {
	// a single bin has no Hann window and no band structure
	if bins < 2 {
		panic("bad fft size")
	}
	sp := &SpectralPower{
		fft:    fourier.NewCmplxFFT(bins),
		window: make([]float64, bins),
		in:     make([]complex128, bins),
		avg:    make([]float64, bins),
		bins:   bins,
		alpha:  smoothing,
	}
	w2 := 0.0
	for i := range sp.window {
		// Hann
		sp.window[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(bins-1)))
		w2 += sp.window[i] * sp.window[i]
	}
	sp.norm = 1.0 / (float64(bins) * float64(bins) * (w2 / float64(bins)))
	return sp
}

func (sp *SpectralPower) Bins() int { return sp.bins }

// Reset discards the smoothed history, for reuse after a retune.
func (sp *SpectralPower) Reset() { sp.primed = false }

// Measure folds one block into the spectrum estimate. Blocks shorter than
// the FFT size are zero-padded; longer blocks use their leading samples.
func (sp *SpectralPower) Measure(samples []complex64) {
	n := len(samples)
	if n > sp.bins {
		n = sp.bins
	}
	for i := 0; i < n; i++ {
		sp.in[i] = complex128(samples[i]) * complex(sp.window[i], 0)
	}
	for i := n; i < sp.bins; i++ {
		sp.in[i] = 0
	}
	coeff := sp.fft.Coefficients(nil, sp.in)
	half := sp.bins / 2
	for i, v := range coeff {
		idx := i + half
		if i >= half {
			idx = i - half
		}
		p := real(v)*real(v) + imag(v)*imag(v)
		p *= sp.norm
		if !sp.primed || sp.alpha == 0 {
			sp.avg[idx] = p
		} else {
			sp.avg[idx] = sp.alpha*sp.avg[idx] + (1.0-sp.alpha)*p
		}
	}
	sp.primed = true
}

// Spectrum returns the smoothed spectrum in dB, DC bin centered.
func (sp *SpectralPower) Spectrum() []float64 {
	out := make([]float64, sp.bins)
	for i, p := range sp.avg {
		out[i] = 10.0 * math.Log10(p+dbFloor)
	}
	return out
}

// BandPowerDB sums the smoothed bin powers across widthHz centered at
// offsetHz from the tuned frequency and returns the strength in dBFS.
func (sp *SpectralPower) BandPowerDB(sampleRate uint32, offsetHz, widthHz float64) float64 {
	binHz := float64(sampleRate) / float64(sp.bins)
	center := sp.bins/2 + int(math.Round(offsetHz/binHz))
	halfBins := int(math.Round(widthHz / 2.0 / binHz))
	lo, hi := center-halfBins, center+halfBins
	if lo < 0 {
		lo = 0
	}
	if hi > sp.bins-1 {
		hi = sp.bins - 1
	}
	if lo > hi {
		return 10.0 * math.Log10(dbFloor)
	}
	sum := 0.0
	for i := lo; i <= hi; i++ {
		sum += sp.avg[i]
	}
	return 10.0 * math.Log10(sum+dbFloor)
}

// NoiseFloorDB estimates the noise floor as the median bin power.
func (sp *SpectralPower) NoiseFloorDB() float64 {
	med := make([]float64, len(sp.avg))
	copy(med, sp.avg)
	sort.Float64s(med)
	return 10.0 * math.Log10(med[len(med)/2]+dbFloor)
}
