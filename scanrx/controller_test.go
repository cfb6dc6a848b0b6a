package scanrx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const quiet = -90.0
const loud = -30.0

func testPlan(t *testing.T, loop bool, freqs ...uint64) *ScanPlan {
	t.Helper()
	sc := testScanDefaults()
	sc.DwellSeconds = 0.2
	sc.HoldSeconds = 0.5
	sc.Loop = loop
	for _, f := range freqs {
		sc.Channels = append(sc.Channels, ChannelConfig{FreqHz: f})
	}
	plan, err := BuildPlan(sc)
	require.NoError(t, err)
	return plan
}

// clock hands out strictly increasing observation times in fixed steps.
type clock struct {
	now  time.Time
	step time.Duration
}

func newClock(step time.Duration) *clock {
	return &clock{now: time.Unix(1700000000, 0), step: step}
}

func (c *clock) tick() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

// A silent pass visits every channel exactly once, in order, then stops.
func TestControllerQuietPassVisitsEachOnce(t *testing.T) {
	plan := testPlan(t, false, 100_000_000, 101_000_000, 102_000_000)
	c := NewController(plan, 0, 2)
	clk := newClock(20 * time.Millisecond)

	require.True(t, c.Start().Advance)
	var visited []uint64
	for {
		visited = append(visited, c.Channel().FreqHz)
		c.Tuned(clk.now)
		var d Decision
		for !d.Advance && !d.Done {
			d = c.Observe(clk.tick(), quiet)
			require.Nil(t, d.Finalize)
		}
		if d.Done {
			break
		}
	}
	require.Equal(t, []uint64{100_000_000, 101_000_000, 102_000_000}, visited)
	require.Equal(t, StateStopped, c.State())
}

// Dropped blocks show up to the controller as sparse observation times.
// Wall-clock dwell still advances channel by channel in order, and quiet
// observations never turn into detections however coarse the ticks get.
func TestControllerSparseObservations(t *testing.T) {
	plan := testPlan(t, false, 100_000_000, 101_000_000, 102_000_000)
	c := NewController(plan, 0, 2)
	// one observation per 300ms, well past the 0.2s dwell window
	clk := newClock(300 * time.Millisecond)

	require.True(t, c.Start().Advance)
	var visited []uint64
	for {
		visited = append(visited, c.Channel().FreqHz)
		c.Tuned(clk.now)
		d := c.Observe(clk.tick(), quiet)
		require.Nil(t, d.Finalize)
		require.False(t, d.Capture)
		if d.Done {
			break
		}
		require.True(t, d.Advance)
	}
	require.Equal(t, []uint64{100_000_000, 101_000_000, 102_000_000}, visited)
	require.Equal(t, StateStopped, c.State())
}

func TestControllerLoopWraps(t *testing.T) {
	plan := testPlan(t, true, 100_000_000, 101_000_000)
	c := NewController(plan, 0, 2)
	clk := newClock(20 * time.Millisecond)

	require.True(t, c.Start().Advance)
	var visited []uint64
	for len(visited) < 5 {
		visited = append(visited, c.Channel().FreqHz)
		c.Tuned(clk.now)
		var d Decision
		for !d.Advance {
			d = c.Observe(clk.tick(), quiet)
			require.False(t, d.Done)
		}
	}
	require.Equal(t, []uint64{100_000_000, 101_000_000, 100_000_000, 101_000_000, 100_000_000}, visited)
	require.Equal(t, 2, c.Pass())
}

// Signal during dwell opens the gate, captures while open, and produces
// exactly one detection when the gate closes.
func TestControllerDetectionCycle(t *testing.T) {
	plan := testPlan(t, false, 100_000_000)
	c := NewController(plan, 0, 2)
	clk := newClock(20 * time.Millisecond)

	c.Start()
	c.Tuned(clk.now)

	d := c.Observe(clk.tick(), loud)
	require.True(t, d.Capture)
	require.Equal(t, StateHolding, c.State())
	start := clk.now

	for i := 0; i < 10; i++ {
		d = c.Observe(clk.tick(), loud)
		require.True(t, d.Capture)
		require.Nil(t, d.Finalize)
	}

	// first quiet eval is still inside the hysteresis run, so the gate
	// stays open and the transmission end advances with it
	d = c.Observe(clk.tick(), quiet)
	require.Nil(t, d.Finalize)
	end := clk.now
	d = c.Observe(clk.tick(), quiet)
	require.NotNil(t, d.Finalize)
	require.False(t, d.Capture)

	det := d.Finalize
	require.Equal(t, uint64(100_000_000), det.FreqHz)
	require.Equal(t, start, det.Start)
	require.Equal(t, end, det.End)
	require.Equal(t, loud, det.PeakDB)
	require.False(t, det.Truncated)

	// hold window runs out with no reopening, then the pass ends
	var final Decision
	for !final.Done {
		final = c.Observe(clk.tick(), quiet)
		require.Nil(t, final.Finalize)
	}
}

// Reopening during the hold window wins over the expiring timer and starts
// a second detection instead of advancing.
func TestControllerReopenDuringHold(t *testing.T) {
	plan := testPlan(t, false, 100_000_000)
	c := NewController(plan, 0, 1)
	clk := newClock(20 * time.Millisecond)

	c.Start()
	c.Tuned(clk.now)

	require.True(t, c.Observe(clk.tick(), loud).Capture)
	d := c.Observe(clk.tick(), quiet)
	require.NotNil(t, d.Finalize)

	// still inside the 0.5s hold window
	d = c.Observe(clk.tick(), loud)
	require.True(t, d.Capture)
	require.False(t, d.Advance)
	require.Equal(t, StateHolding, c.State())

	d = c.Observe(clk.tick(), quiet)
	require.NotNil(t, d.Finalize)
}

func TestControllerMaxEventTruncates(t *testing.T) {
	plan := testPlan(t, true, 100_000_000, 101_000_000)
	c := NewController(plan, 100*time.Millisecond, 1)
	clk := newClock(20 * time.Millisecond)

	c.Start()
	c.Tuned(clk.now)

	var d Decision
	for d.Finalize == nil {
		d = c.Observe(clk.tick(), loud)
	}
	require.True(t, d.Finalize.Truncated)
	require.True(t, d.Advance)
	require.Equal(t, uint64(101_000_000), c.Channel().FreqHz)
}

func TestControllerStopTruncatesOpenDetection(t *testing.T) {
	plan := testPlan(t, false, 100_000_000)
	c := NewController(plan, 0, 1)
	clk := newClock(20 * time.Millisecond)

	c.Start()
	c.Tuned(clk.now)
	require.True(t, c.Observe(clk.tick(), loud).Capture)

	d := c.Stop(clk.tick())
	require.True(t, d.Done)
	require.NotNil(t, d.Finalize)
	require.True(t, d.Finalize.Truncated)
	require.Equal(t, StateStopped, c.State())
}

func TestControllerJump(t *testing.T) {
	plan := testPlan(t, true, 100_000_000, 101_000_000, 102_000_000)
	c := NewController(plan, 0, 1)
	clk := newClock(20 * time.Millisecond)

	c.Start()
	c.Tuned(clk.now)
	require.True(t, c.Observe(clk.tick(), loud).Capture)

	d := c.Jump(2)
	require.True(t, d.Advance)
	require.NotNil(t, d.Finalize)
	require.True(t, d.Finalize.Truncated)
	require.Equal(t, uint64(102_000_000), c.Channel().FreqHz)
	require.Equal(t, StateTuning, c.State())
}
