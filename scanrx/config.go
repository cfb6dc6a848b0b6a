// Package scanrx drives the scan: it walks a plan of channels, gates them
// with a squelch, demodulates open channels to audio, and persists each
// transmission as a hashed capture bundle plus an event log line.
package scanrx

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/astrotrace/scanrx/audio"
	"github.com/astrotrace/scanrx/radio"
)

// ScanConfig is the scan half of the config file. Per-channel fields that
// are zero inherit the defaults here.
type ScanConfig struct {
	Channels []ChannelConfig `yaml:"channels"`
	Range    *RangeConfig    `yaml:"range"`
	CSVPath  string          `yaml:"csv_path"`
	Monitor  []ChannelConfig `yaml:"monitor"`
	Loop     bool            `yaml:"loop"`

	DwellSeconds    float64 `yaml:"dwell_seconds"`
	HoldSeconds     float64 `yaml:"hold_seconds"`
	SquelchDB       float64 `yaml:"squelch_db"`
	MarginDB        float64 `yaml:"squelch_margin_db"`
	CloseBlocks     int     `yaml:"squelch_close_blocks"`
	BandwidthHz     float64 `yaml:"bandwidth_hz"`
	BlockSize       int     `yaml:"block_size"`
	QueueDepth      int     `yaml:"queue_depth"`
	FFTBins         int     `yaml:"fft_bins"`
	Smoothing       float64 `yaml:"smoothing"`
	MaxEventSeconds float64 `yaml:"max_event_seconds"`
}

// BundleConfig controls capture persistence.
type BundleConfig struct {
	Root            string  `yaml:"root"`
	Disabled        bool    `yaml:"disabled"`
	MinEventSeconds float64 `yaml:"min_event_seconds"`
}

type EventConfig struct {
	Path  string `yaml:"path"`
	Depth int    `yaml:"queue_depth"`
}

// HTTPConfig enables the status and metrics listener when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Source  radio.SourceConfig `yaml:"source"`
	Scan    ScanConfig         `yaml:"scan"`
	Audio   audio.Config       `yaml:"audio"`
	Bundles BundleConfig       `yaml:"bundles"`
	Events  EventConfig        `yaml:"events"`
	HTTP    HTTPConfig         `yaml:"http"`
}

// LoadConfig reads a YAML config and fills in defaults. Plan validation
// happens later, in BuildPlan.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func (c *Config) ApplyDefaults() {
	s := &c.Scan
	if s.DwellSeconds == 0 {
		s.DwellSeconds = 0.25
	}
	if s.HoldSeconds == 0 {
		s.HoldSeconds = 2.0
	}
	if s.SquelchDB == 0 {
		s.SquelchDB = -60.0
	}
	if s.MarginDB == 0 {
		s.MarginDB = 3.0
	}
	if s.CloseBlocks == 0 {
		s.CloseBlocks = 5
	}
	if s.BandwidthHz == 0 {
		s.BandwidthHz = 12500.0
	}
	if s.BlockSize == 0 {
		s.BlockSize = 4096
	}
	if s.QueueDepth == 0 {
		s.QueueDepth = 8
	}
	if s.FFTBins == 0 {
		s.FFTBins = 1024
	}
	if s.Smoothing == 0 {
		s.Smoothing = 0.5
	}
	if s.MaxEventSeconds == 0 {
		s.MaxEventSeconds = 120.0
	}
	if c.Bundles.Root == "" {
		c.Bundles.Root = "bundles"
	}
	if c.Bundles.MinEventSeconds == 0 {
		c.Bundles.MinEventSeconds = 0.2
	}
	if c.Audio.Rate == 0 {
		c.Audio.Rate = 16000
	}
	if c.Events.Depth == 0 {
		c.Events.Depth = 1024
	}
}
