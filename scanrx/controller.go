package scanrx

import "time"

// State of the scan controller.
type State int

const (
	StateIdle State = iota
	StateTuning
	StateDwelling
	StateHolding
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTuning:
		return "tuning"
	case StateDwelling:
		return "dwelling"
	case StateHolding:
		return "holding"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Decision is what the caller must do after one observation. At most one of
// Advance and Done is set; Finalize may accompany either.
type Decision struct {
	Capture  bool       // this block belongs to an open transmission
	Finalize *Detection // a completed detection to log and bundle
	Advance  bool       // tune to Channel() next
	Done     bool       // plan exhausted, stop the scan
}

// Controller sequences the scan: tune, dwell, hold, advance. It is a pure
// state machine driven by wall-clock observations; it does no I/O and holds
// no locks, so every transition is testable with synthetic times.
type Controller struct {
	plan *ScanPlan

	state State
	idx   int
	pass  int

	sq         *Squelch
	dwellStart time.Time
	holdStart  time.Time
	active     bool
	detStart   time.Time
	detEnd     time.Time
	peakDB     float64

	maxEvent    time.Duration
	closeBlocks int
}

// NewController builds a controller over a validated plan. maxEvent caps a
// single transmission (zero means no cap); closeBlocks is the squelch
// hysteresis depth shared by all channels.
func NewController(plan *ScanPlan, maxEvent time.Duration, closeBlocks int) *Controller {
	return &Controller{plan: plan, maxEvent: maxEvent, closeBlocks: closeBlocks}
}

func (c *Controller) State() State { return c.state }
func (c *Controller) Pass() int    { return c.pass }
func (c *Controller) Index() int   { return c.idx }

func (c *Controller) Channel() ChannelConfig { return c.plan.Channels[c.idx] }

// Start asks for the first tune.
func (c *Controller) Start() Decision {
	c.state = StateTuning
	c.idx = 0
	c.pass = 0
	return Decision{Advance: true}
}

// Tuned reports that the radio settled on Channel(); dwell begins now.
func (c *Controller) Tuned(now time.Time) {
	ch := c.Channel()
	c.sq = NewSquelch(ch.SquelchDB, ch.MarginDB, c.closeBlocks)
	c.state = StateDwelling
	c.dwellStart = now
	c.active = false
}

// Observe feeds one strength measurement for the current channel. The
// caller acts on the returned decision before the next observation.
func (c *Controller) Observe(now time.Time, strengthDB float64) Decision {
	switch c.state {
	case StateDwelling:
		return c.observeDwell(now, strengthDB)
	case StateHolding:
		return c.observeHold(now, strengthDB)
	}
	return Decision{}
}

func (c *Controller) observeDwell(now time.Time, strengthDB float64) Decision {
	if c.sq.Evaluate(strengthDB) {
		c.beginDetection(now, strengthDB)
		return Decision{Capture: true}
	}
	if now.Sub(c.dwellStart) >= c.Channel().Dwell() {
		return c.advance()
	}
	return Decision{}
}

func (c *Controller) observeHold(now time.Time, strengthDB float64) Decision {
	open := c.sq.Evaluate(strengthDB)
	if open {
		// An opening always wins over an expiring hold timer.
		if !c.active {
			c.beginDetection(now, strengthDB)
			return Decision{Capture: true}
		}
		if strengthDB > c.peakDB {
			c.peakDB = strengthDB
		}
		c.detEnd = now
		if c.maxEvent > 0 && now.Sub(c.detStart) >= c.maxEvent {
			det := c.finalize(now, true)
			c.sq.Reset()
			d := c.advance()
			d.Finalize = det
			return d
		}
		return Decision{Capture: true}
	}
	if c.active {
		// Gate just closed: finalize, then wait out the hold window for a
		// reopening before moving on.
		det := c.finalize(c.detEnd, false)
		c.active = false
		c.holdStart = now
		return Decision{Finalize: det}
	}
	if now.Sub(c.holdStart) >= c.Channel().Hold() {
		return c.advance()
	}
	return Decision{}
}

func (c *Controller) beginDetection(now time.Time, strengthDB float64) {
	c.state = StateHolding
	c.active = true
	c.detStart = now
	c.detEnd = now
	c.peakDB = strengthDB
}

func (c *Controller) finalize(end time.Time, truncated bool) *Detection {
	ch := c.Channel()
	return &Detection{
		FreqHz:      ch.FreqHz,
		Channel:     ch.Name,
		Mode:        string(ch.Mode),
		Start:       c.detStart,
		End:         end,
		Seconds:     end.Sub(c.detStart).Seconds(),
		PeakDB:      c.peakDB,
		ThresholdDB: ch.SquelchDB,
		MarginDB:    ch.MarginDB,
		Truncated:   truncated,
	}
}

func (c *Controller) advance() Decision {
	c.idx++
	if c.idx >= len(c.plan.Channels) {
		if !c.plan.Loop {
			c.idx = len(c.plan.Channels) - 1
			c.state = StateStopped
			return Decision{Done: true}
		}
		c.idx = 0
		c.pass++
	}
	c.state = StateTuning
	return Decision{Advance: true}
}

// Jump retunes the scan to plan channel idx, truncating any open
// detection.
func (c *Controller) Jump(idx int) Decision {
	if idx < 0 || idx >= len(c.plan.Channels) {
		return Decision{}
	}
	var det *Detection
	if c.active {
		det = c.finalize(c.detEnd, true)
		c.active = false
	}
	c.idx = idx
	c.state = StateTuning
	return Decision{Finalize: det, Advance: true}
}

// Stop ends the scan. An in-progress detection is finalized as truncated so
// it is never lost.
func (c *Controller) Stop(now time.Time) Decision {
	var det *Detection
	if c.active {
		det = c.finalize(now, true)
		c.active = false
	}
	c.state = StateStopped
	return Decision{Finalize: det, Done: true}
}
