package radio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSourceUnavailable is returned by ReadBlock when the device is gone or a
// replay file is exhausted. It is fatal to a running scan.
var ErrSourceUnavailable = errors.New("sample source unavailable")

// SampleBlock is one read's worth of complex baseband samples. Blocks are
// immutable once produced; the consumer a block is handed to owns it.
type SampleBlock struct {
	Samples    []complex64
	SampleRate uint32
	CenterHz   uint64
	Time       time.Time
}

// Duration is the wall-clock span the block covers at its sample rate.
func (b *SampleBlock) Duration() time.Duration {
	if b.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

type SourceInfo struct {
	Name       string  `json:"name"`
	SampleRate uint32  `json:"sample_rate"`
	CenterHz   uint64  `json:"center_hz"`
	Gain       float64 `json:"gain"`
}

// Source delivers sequential blocks of complex samples at a declared sample
// rate and can be retuned to a center frequency and gain. Implementations:
// rtl_tcp hardware, file replay, synthetic generator.
type Source interface {
	Tune(centerHz uint64, gain float64) error
	ReadBlock(ctx context.Context, n int) (*SampleBlock, error)
	Info() SourceInfo
	Close() error
}

// SourceConfig selects and parameterizes a Source backend.
type SourceConfig struct {
	Kind       string  `yaml:"kind"` // rtltcp | file | synthetic
	SampleRate uint32  `yaml:"sample_rate"`
	CenterHz   uint64  `yaml:"center_hz"`
	Gain       float64 `yaml:"gain"`

	// rtltcp
	Addr string `yaml:"addr"`

	// file
	Path   string `yaml:"path"`
	Repeat bool   `yaml:"repeat"`

	// synthetic
	Seed        int64   `yaml:"seed"`
	ToneFreq    uint64  `yaml:"tone_freq_hz"` // absolute station frequency; overrides tone_hz
	ToneHz      float64 `yaml:"tone_hz"`      // fixed offset from the tuned center
	ToneAmp     float64 `yaml:"tone_amp"`
	NoiseAmp    float64 `yaml:"noise_amp"`
	BurstPeriod float64 `yaml:"burst_period_seconds"`
	BurstOn     float64 `yaml:"burst_on_seconds"`
}

func Open(ctx context.Context, cfg SourceConfig) (Source, error) {
	if cfg.SampleRate == 0 {
		return nil, fmt.Errorf("source: sample_rate is required")
	}
	switch cfg.Kind {
	case "synthetic":
		return NewSynthetic(cfg), nil
	case "file":
		return OpenFile(cfg)
	case "rtltcp", "":
		return OpenRTLTCP(ctx, cfg)
	}
	return nil, fmt.Errorf("source: unknown kind %q", cfg.Kind)
}
