// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"github.com/goctf/ctf"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// NameHist counts events by name over periods of time. Unless it is
// cumulative, the counts restart at every period.
type NameHist struct {
	period     int64
	cumulative bool
	emit       func(start int64, h *NameHist)

	start   int64
	started bool
	counts  map[string]uint64
}

// NewNameHist returns a histogram that calls emit at the end of every
// period of the given length in nanoseconds, and once more on Flush.
// A non-positive period makes one period of the whole trace.
func NewNameHist(period int64, cumulative bool, emit func(start int64, h *NameHist)) *NameHist {
	return &NameHist{
		period:     period,
		cumulative: cumulative,
		emit:       emit,
		counts:     make(map[string]uint64),
	}
}

// RegisterStats implements Analyzer.
func (h *NameHist) RegisterStats(stats *Stats) {
	stats.RegisterOther("hist.periods")
}

// Process implements Analyzer.
func (h *NameHist) Process(ev *ctf.Event, stats *Stats) {
	if !h.started {
		h.start, h.started = ev.Timestamp, true
	}
	if h.period > 0 && ev.Timestamp-h.start >= h.period {
		h.emit(h.start, h)
		stats.AddOther("hist.periods", 1)
		if !h.cumulative {
			clear(h.counts)
		}
		// Skip empty periods.
		h.start += (ev.Timestamp - h.start) / h.period * h.period
	}
	n := uint64(1)
	if ev.Kind == ctf.EventLost {
		n = ev.Lost
	}
	h.counts[ev.Name] += n
}

// Flush emits the counts of the last, partial period.
func (h *NameHist) Flush() {
	if len(h.counts) != 0 {
		h.emit(h.start, h)
	}
}

// ForEach calls f for every event name counted in the current period,
// in name order.
func (h *NameHist) ForEach(f func(name string, count uint64)) {
	names := maps.Keys(h.counts)
	slices.Sort(names)
	for _, name := range names {
		f(name, h.counts[name])
	}
}
