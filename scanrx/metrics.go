package scanrx

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the scanner's instrumentation on its own registry so
// multiple scanners in one process never collide.
type Metrics struct {
	reg *prometheus.Registry

	BlocksRead    prometheus.Counter
	BlocksDropped prometheus.Counter
	Detections    prometheus.Counter
	BundleErrors  prometheus.Counter
	ScanState     prometheus.Gauge
	CenterHz      prometheus.Gauge
	StrengthDB    prometheus.Gauge
	AudioRMS      prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		BlocksRead: f.NewCounter(prometheus.CounterOpts{
			Name: "scanrx_blocks_read_total",
			Help: "IQ sample blocks read from the source.",
		}),
		BlocksDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "scanrx_blocks_dropped_total",
			Help: "IQ sample blocks dropped because processing fell behind.",
		}),
		Detections: f.NewCounter(prometheus.CounterOpts{
			Name: "scanrx_detections_total",
			Help: "Completed transmissions detected.",
		}),
		BundleErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "scanrx_bundle_errors_total",
			Help: "Capture bundles that failed to persist.",
		}),
		ScanState: f.NewGauge(prometheus.GaugeOpts{
			Name: "scanrx_scan_state",
			Help: "Controller state (0 idle, 1 tuning, 2 dwelling, 3 holding, 4 stopped).",
		}),
		CenterHz: f.NewGauge(prometheus.GaugeOpts{
			Name: "scanrx_center_hz",
			Help: "Current tuner center frequency.",
		}),
		StrengthDB: f.NewGauge(prometheus.GaugeOpts{
			Name: "scanrx_strength_dbfs",
			Help: "Smoothed in-band strength of the current channel.",
		}),
		AudioRMS: f.NewGauge(prometheus.GaugeOpts{
			Name: "scanrx_audio_rms",
			Help: "RMS level of the most recent demodulated audio frame.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
