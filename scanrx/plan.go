package scanrx

import (
	"errors"
	"fmt"
	"time"

	"github.com/astrotrace/scanrx/dsp"
	"github.com/astrotrace/scanrx/radio"
)

// ErrConfig marks a scan configuration rejected before anything starts.
var ErrConfig = errors.New("invalid scan configuration")

// ChannelConfig describes one frequency to visit. Read-only during a scan
// pass.
type ChannelConfig struct {
	FreqHz       uint64   `yaml:"freq_hz" json:"freq_hz"`
	Mode         dsp.Mode `yaml:"mode" json:"mode"`
	BandwidthHz  float64  `yaml:"bandwidth_hz" json:"bandwidth_hz"`
	SquelchDB    float64  `yaml:"squelch_db" json:"squelch_db"`
	MarginDB     float64  `yaml:"squelch_margin_db" json:"squelch_margin_db"`
	DwellSeconds float64  `yaml:"dwell_seconds" json:"dwell_seconds"`
	HoldSeconds  float64  `yaml:"hold_seconds" json:"hold_seconds"`
	Name         string   `yaml:"name" json:"name,omitempty"`
}

func (c ChannelConfig) Dwell() time.Duration {
	return time.Duration(c.DwellSeconds * float64(time.Second))
}

func (c ChannelConfig) Hold() time.Duration {
	return time.Duration(c.HoldSeconds * float64(time.Second))
}

func (c ChannelConfig) Band() radio.FreqBand {
	return radio.FreqBand{Center: float64(c.FreqHz) / 1e6, Width: c.BandwidthHz / 1e6}
}

// RangeConfig expands to channels from StartHz through StopHz every StepHz.
type RangeConfig struct {
	StartHz uint64 `yaml:"start_hz"`
	StopHz  uint64 `yaml:"stop_hz"`
	StepHz  uint64 `yaml:"step_hz"`
}

// ScanPlan is the ordered set of channels one pass visits. Order is as
// declared; the controller never reorders by strength.
type ScanPlan struct {
	Channels []ChannelConfig
	Loop     bool
}

// BuildPlan assembles and validates the scan plan from explicit channels,
// an optional CSV channel list, and an optional range expansion, in that
// order. Violations of the plan invariants are ErrConfig.
func BuildPlan(sc ScanConfig) (*ScanPlan, error) {
	chans := append([]ChannelConfig(nil), sc.Channels...)
	if sc.CSVPath != "" {
		csvChans, err := LoadCSVChannels(sc.CSVPath)
		if err != nil {
			return nil, err
		}
		chans = append(chans, csvChans...)
	}
	if r := sc.Range; r != nil {
		if r.StepHz == 0 {
			return nil, fmt.Errorf("%w: range step must be > 0", ErrConfig)
		}
		if r.StopHz < r.StartHz {
			return nil, fmt.Errorf("%w: range stop %d below start %d", ErrConfig, r.StopHz, r.StartHz)
		}
		for f := r.StartHz; f <= r.StopHz; f += r.StepHz {
			chans = append(chans, ChannelConfig{FreqHz: f})
		}
	}
	if len(chans) == 0 {
		return nil, fmt.Errorf("%w: no channels to scan", ErrConfig)
	}
	for i := range chans {
		if err := applyChannelDefaults(&chans[i], sc); err != nil {
			return nil, err
		}
	}
	for i := 0; i < len(chans); i++ {
		for j := i + 1; j < len(chans); j++ {
			tol := chans[i].BandwidthHz
			if chans[j].BandwidthHz > tol {
				tol = chans[j].BandwidthHz
			}
			di := float64(chans[i].FreqHz) - float64(chans[j].FreqHz)
			if di < 0 {
				di = -di
			}
			if di < tol {
				return nil, fmt.Errorf("%w: channels %d and %d duplicate frequency %d Hz within %.0f Hz bandwidth",
					ErrConfig, i, j, chans[j].FreqHz, tol)
			}
		}
	}
	return &ScanPlan{Channels: chans, Loop: sc.Loop}, nil
}

func applyChannelDefaults(c *ChannelConfig, sc ScanConfig) error {
	if c.FreqHz == 0 {
		return fmt.Errorf("%w: channel frequency must be > 0", ErrConfig)
	}
	mode, err := dsp.ParseMode(string(c.Mode))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	c.Mode = mode
	if c.BandwidthHz == 0 {
		c.BandwidthHz = sc.BandwidthHz
	}
	if c.SquelchDB == 0 {
		c.SquelchDB = sc.SquelchDB
	}
	if c.MarginDB == 0 {
		c.MarginDB = sc.MarginDB
	}
	if c.DwellSeconds == 0 {
		c.DwellSeconds = sc.DwellSeconds
	}
	if c.HoldSeconds == 0 {
		c.HoldSeconds = sc.HoldSeconds
	}
	if c.BandwidthHz <= 0 {
		return fmt.Errorf("%w: channel %d Hz has no bandwidth", ErrConfig, c.FreqHz)
	}
	if c.DwellSeconds <= 0 {
		return fmt.Errorf("%w: channel %d Hz has no dwell", ErrConfig, c.FreqHz)
	}
	return nil
}
