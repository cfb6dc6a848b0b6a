package scanrx

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

const recentEvents = 256

// EventLog appends events as JSON lines without ever blocking the
// processing path. When the queue is full the oldest queued event is
// dropped and counted; the newest event always gets in.
type EventLog struct {
	f    *os.File
	q    chan Event
	done chan struct{}

	mu      sync.Mutex
	recent  []Event
	dropped uint64
}

// NewEventLog appends to path, or keeps events in memory only when path is
// empty.
func NewEventLog(path string, depth int) (*EventLog, error) {
	var f *os.File
	if path != "" {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
	}
	l := newEventLog(f, depth)
	go l.run()
	return l, nil
}

func newEventLog(f *os.File, depth int) *EventLog {
	if depth <= 0 {
		depth = 1024
	}
	return &EventLog{f: f, q: make(chan Event, depth), done: make(chan struct{})}
}

// Append queues an event. Never blocks.
func (l *EventLog) Append(ev Event) {
	l.mu.Lock()
	l.recent = append(l.recent, ev)
	if len(l.recent) > recentEvents {
		l.recent = l.recent[len(l.recent)-recentEvents:]
	}
	l.mu.Unlock()
	for {
		select {
		case l.q <- ev:
			return
		default:
		}
		select {
		case <-l.q:
			l.mu.Lock()
			l.dropped++
			l.mu.Unlock()
		default:
		}
	}
}

// Recent returns up to n of the most recent events, newest last.
func (l *EventLog) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.recent) {
		n = len(l.recent)
	}
	out := make([]Event, n)
	copy(out, l.recent[len(l.recent)-n:])
	return out
}

// Dropped reports how many events overflowed the queue.
func (l *EventLog) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

func (l *EventLog) run() {
	defer close(l.done)
	for ev := range l.q {
		if l.f == nil {
			continue
		}
		buf, err := json.Marshal(&ev)
		if err != nil {
			log.Error("event log marshal", "err", err)
			continue
		}
		if _, err := l.f.Write(append(buf, '\n')); err != nil {
			log.Error("event log write", "err", err)
		}
	}
}

// Close flushes queued events and closes the log file.
func (l *EventLog) Close() error {
	close(l.q)
	<-l.done
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}
