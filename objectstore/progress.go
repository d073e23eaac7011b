package objectstore

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Tracker reports batch progress to a writer, typically os.Stderr. It is a
// side channel only: it never influences upload control flow or results.
type Tracker struct {
	writer         io.Writer
	label          string
	total          int
	current        int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewTracker creates a progress tracker that reports every reportInterval
// completed items.
func NewTracker(writer io.Writer, label string, total, reportInterval int) *Tracker {
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &Tracker{
		writer:         writer,
		label:          label,
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start begins tracking progress.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startTime = time.Now()
	t.started = true
	t.current = 0
	t.lastReported = 0
}

// Update sets the current progress to the specified value.
func (t *Tracker) Update(current int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return
	}
	if current > t.total {
		current = t.total
	}
	t.current = current

	if t.current-t.lastReported >= t.reportInterval {
		t.report()
		t.lastReported = t.current
	}
}

// Increment increases the current progress by delta.
func (t *Tracker) Increment(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return
	}
	t.current += delta
	if t.current > t.total {
		t.current = t.total
	}

	if t.current-t.lastReported >= t.reportInterval {
		t.report()
		t.lastReported = t.current
	}
}

// Finish marks the operation as complete and prints final progress.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return
	}
	t.current = t.total
	t.report()
	fmt.Fprintln(t.writer)
}

// report prints the current progress. Must be called with the lock held.
func (t *Tracker) report() {
	elapsed := time.Since(t.startTime)
	rate := float64(t.current) / elapsed.Seconds()

	percentage := 0.0
	if t.total > 0 {
		percentage = float64(t.current) / float64(t.total) * 100.0
	}

	fmt.Fprintf(t.writer, "\r%s: %d/%d (%.1f%%) - %.1f files/s",
		t.label, t.current, t.total, percentage, rate)
}
