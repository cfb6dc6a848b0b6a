package scanrx

// Squelch is a power gate with hysteresis. It opens the instant strength
// reaches the threshold and closes only after CloseBlocks consecutive
// evaluations below threshold minus margin, so brief fades inside a
// transmission do not chop it into separate events.
type Squelch struct {
	ThresholdDB float64
	MarginDB    float64
	CloseBlocks int

	open  bool
	quiet int
}

func NewSquelch(thresholdDB, marginDB float64, closeBlocks int) *Squelch {
	if closeBlocks <= 0 {
		closeBlocks = 1
	}
	return &Squelch{ThresholdDB: thresholdDB, MarginDB: marginDB, CloseBlocks: closeBlocks}
}

// Evaluate feeds one strength measurement and reports whether the gate is
// open afterward.
func (s *Squelch) Evaluate(strengthDB float64) bool {
	if !s.open {
		if strengthDB >= s.ThresholdDB {
			s.open = true
			s.quiet = 0
		}
		return s.open
	}
	if strengthDB < s.ThresholdDB-s.MarginDB {
		s.quiet++
		if s.quiet >= s.CloseBlocks {
			s.open = false
			s.quiet = 0
		}
	} else {
		s.quiet = 0
	}
	return s.open
}

func (s *Squelch) Open() bool { return s.open }

// Reset closes the gate, for reuse on the next channel.
func (s *Squelch) Reset() {
	s.open = false
	s.quiet = 0
}
