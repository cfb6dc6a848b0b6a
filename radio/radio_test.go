package radio

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSyntheticDeterministicPerSeed(t *testing.T) {
	cfg := SourceConfig{Kind: "synthetic", SampleRate: 250000, Seed: 42, ToneHz: 25000}
	a := NewSynthetic(cfg)
	b := NewSynthetic(cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ba, err := a.ReadBlock(ctx, 2048)
		require.NoError(t, err)
		bb, err := b.ReadBlock(ctx, 2048)
		require.NoError(t, err)
		require.Equal(t, ba.Samples, bb.Samples)
	}
}

func TestSyntheticBurstGating(t *testing.T) {
	cfg := SourceConfig{
		Kind: "synthetic", SampleRate: 250000, Seed: 1,
		ToneHz: 25000, NoiseAmp: 0.01, BurstPeriod: 1.0, BurstOn: 0.5,
	}
	s := NewSynthetic(cfg)
	ctx := context.Background()

	on, err := s.ReadBlock(ctx, 4096)
	require.NoError(t, err)
	var onPower float64
	for _, v := range on.Samples {
		onPower += float64(real(v))*float64(real(v)) + float64(imag(v))*float64(imag(v))
	}

	// skip ahead to the quiet half of the period
	for s.idx < 150000 {
		_, err := s.ReadBlock(ctx, 4096)
		require.NoError(t, err)
	}
	off, err := s.ReadBlock(ctx, 4096)
	require.NoError(t, err)
	var offPower float64
	for _, v := range off.Samples {
		offPower += float64(real(v))*float64(real(v)) + float64(imag(v))*float64(imag(v))
	}
	require.Greater(t, onPower, offPower*100)
}

func TestCF32RoundTrip(t *testing.T) {
	in := []complex64{complex(0.5, -0.25), complex(-1, 1), complex(0, 0.125)}
	var buf bytes.Buffer
	require.NoError(t, NewCF32Writer(&buf).Write64(in))
	require.Equal(t, len(in)*8, buf.Len())

	out := make([]complex64, len(in))
	n, err := NewCF32Reader(&buf).Read64(out)
	require.NoError(t, err)
	require.Equal(t, len(in), n)
	require.Equal(t, in, out)
}

func TestIQ8ReaderScaling(t *testing.T) {
	raw := []byte{127, 127, 255, 0}
	out := make([]complex64, 2)
	n, err := NewIQ8Reader(bytes.NewReader(raw)).Read64(out)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, complex64(complex(0, 0)), out[0])
	require.InDelta(t, 1.0, real(out[1]), 0.01)
	require.InDelta(t, -1.0, imag(out[1]), 0.01)
}

func TestFileSourceExhaustion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.cf32")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, NewCF32Writer(f).Write64(make([]complex64, 1000)))
	require.NoError(t, f.Close())

	src, err := OpenFile(SourceConfig{Kind: "file", Path: path, SampleRate: 64000})
	require.NoError(t, err)
	defer src.Close()
	ctx := context.Background()

	blk, err := src.ReadBlock(ctx, 600)
	require.NoError(t, err)
	require.Len(t, blk.Samples, 600)

	// final partial block, then exhaustion
	blk, err = src.ReadBlock(ctx, 600)
	require.NoError(t, err)
	require.Len(t, blk.Samples, 400)

	_, err = src.ReadBlock(ctx, 600)
	require.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestFileSourceRepeatLoops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.cf32")
	f, err := os.Create(path)
	require.NoError(t, err)
	samples := make([]complex64, 500)
	for i := range samples {
		samples[i] = complex(float32(i), 0)
	}
	require.NoError(t, NewCF32Writer(f).Write64(samples))
	require.NoError(t, f.Close())

	src, err := OpenFile(SourceConfig{Kind: "file", Path: path, SampleRate: 64000, Repeat: true})
	require.NoError(t, err)
	defer src.Close()
	ctx := context.Background()

	blk, err := src.ReadBlock(ctx, 1200)
	require.NoError(t, err)
	require.Len(t, blk.Samples, 1200)
	// wrapped back to the start twice
	require.Equal(t, samples[0], blk.Samples[500])
	require.Equal(t, samples[199], blk.Samples[1199])
}

func TestHzBandConversions(t *testing.T) {
	hb := HzBand{Center: 162_550_000, Width: 12_500}
	fb := hb.ToMHz()
	require.InDelta(t, 162.55, fb.Center, 1e-9)
	require.InDelta(t, 0.0125, fb.Width, 1e-9)
	back := fb.ToHzBand()
	require.InDelta(t, 162_550_000, float64(back.Center), 1)
	require.InDelta(t, 12_500, float64(back.Width), 1)
	require.InDelta(t, 12.5, fb.BandwidthKHz(), 1e-9)
}

func TestFreqBandOverlaps(t *testing.T) {
	a := FreqBand{Center: 100.0, Width: 0.2}
	b := FreqBand{Center: 100.15, Width: 0.2}
	c := FreqBand{Center: 101.0, Width: 0.2}
	require.True(t, a.Overlaps(b))
	require.False(t, a.Overlaps(c))
}
