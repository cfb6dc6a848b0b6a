package scanrx

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventLogWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l, err := NewEventLog(path, 16)
	require.NoError(t, err)

	base := time.Unix(1700000000, 0).UTC()
	l.Append(Event{Time: base, Kind: EventScanStart, Message: "2 channels"})
	l.Append(Event{Time: base.Add(time.Second), Kind: EventDetection, FreqHz: 162_550_000,
		Detection: &Detection{FreqHz: 162_550_000, Mode: "fm", Seconds: 1.5, PeakDB: -41.0}})
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var events []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	require.Equal(t, EventScanStart, events[0].Kind)
	require.Equal(t, uint64(162_550_000), events[1].FreqHz)
	require.NotNil(t, events[1].Detection)
	require.Equal(t, 1.5, events[1].Detection.Seconds)
}

func TestEventLogRecent(t *testing.T) {
	l, err := NewEventLog("", 16)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 10; i++ {
		l.Append(Event{Kind: EventAdvance, FreqHz: uint64(i)})
	}
	got := l.Recent(3)
	require.Len(t, got, 3)
	require.Equal(t, uint64(7), got[0].FreqHz)
	require.Equal(t, uint64(9), got[2].FreqHz)
}

// With the writer stalled the queue fills; newer events must displace the
// oldest queued ones instead of blocking the caller.
func TestEventLogOverflowDropsOldest(t *testing.T) {
	l := newEventLog(nil, 2)
	for i := 0; i < 5; i++ {
		l.Append(Event{Kind: EventAdvance, FreqHz: uint64(i)})
	}
	require.Equal(t, uint64(3), l.Dropped())

	// the two survivors are the newest events, in order
	require.Equal(t, uint64(3), (<-l.q).FreqHz)
	require.Equal(t, uint64(4), (<-l.q).FreqHz)

	// dropping from the write queue never loses the in-memory tail
	got := l.Recent(0)
	require.Len(t, got, 5)
	require.Equal(t, uint64(4), got[4].FreqHz)

	go l.run()
	require.NoError(t, l.Close())
}

func TestEventLogRecentBounded(t *testing.T) {
	l, err := NewEventLog("", 16)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < recentEvents+50; i++ {
		l.Append(Event{Kind: EventAdvance, FreqHz: uint64(i)})
	}
	got := l.Recent(0)
	require.Len(t, got, recentEvents)
	require.Equal(t, uint64(50), got[0].FreqHz)
}
