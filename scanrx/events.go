package scanrx

import "time"

// Event kinds written to the JSONL event log.
const (
	EventScanStart = "scan_start"
	EventScanStop  = "scan_stop"
	EventTuned     = "tuned"
	EventAdvance   = "advance"
	EventDetection = "detection"
	EventWarning   = "warning"
)

// Detection is one complete open-to-close transmission on a channel.
type Detection struct {
	FreqHz      uint64    `json:"freq_hz"`
	Channel     string    `json:"channel,omitempty"`
	Mode        string    `json:"mode"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Seconds     float64   `json:"seconds"`
	PeakDB      float64   `json:"peak_db"`
	ThresholdDB float64   `json:"threshold_db"`
	MarginDB    float64   `json:"margin_db"`
	BundleID    string    `json:"bundle_id,omitempty"`
	Truncated   bool      `json:"truncated,omitempty"`
}

// Event is one line of the event log.
type Event struct {
	Time      time.Time  `json:"time"`
	Kind      string     `json:"kind"`
	FreqHz    uint64     `json:"freq_hz,omitempty"`
	Message   string     `json:"message,omitempty"`
	Detection *Detection `json:"detection,omitempty"`
}
