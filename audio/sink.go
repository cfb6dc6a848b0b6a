// Package audio plays or records demodulated audio. Pushes never block the
// processing path; a sink that cannot keep up drops frames.
package audio

import (
	"encoding/binary"
	"os"

	"github.com/charmbracelet/log"

	"github.com/astrotrace/scanrx/radio/wav"
)

type Config struct {
	Rate   int    `yaml:"rate"`
	Output string `yaml:"output"` // none | portaudio | path to a .wav file
}

type Sink interface {
	Push(samples []float32)
	Close() error
}

func NewSink(cfg Config) (Sink, error) {
	rate := cfg.Rate
	if rate == 0 {
		rate = 16000
	}
	switch cfg.Output {
	case "", "none":
		return NullSink{}, nil
	case "portaudio":
		return NewPortAudioSink(rate)
	}
	return NewWAVSink(cfg.Output, rate)
}

type NullSink struct{}

func (NullSink) Push([]float32) {}
func (NullSink) Close() error   { return nil }

// WAVSink appends 16-bit mono PCM to a WAV file.
type WAVSink struct {
	f   *os.File
	w   *wav.Writer
	err error
}

func NewWAVSink(path string, rate int) (*WAVSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	w, err := wav.NewWriter(f, rate, 16, 1)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &WAVSink{f: f, w: w}, nil
}

func (s *WAVSink) Push(samples []float32) {
	if s.err != nil || len(samples) == 0 {
		return
	}
	pcm := make([]int16, len(samples))
	for i, v := range samples {
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		pcm[i] = int16(v * 0x7fff)
	}
	if err := binary.Write(s.w, binary.LittleEndian, pcm); err != nil {
		s.err = err
		log.Error("wav sink write failed", "err", err)
	}
}

func (s *WAVSink) Close() error {
	if err := s.w.Close(); err != nil {
		s.f.Close()
		return err
	}
	if err := s.f.Close(); err != nil {
		return err
	}
	return s.err
}
