// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"fmt"
	"math"

	"github.com/goctf/ctf"
)

// Violation is an event found out of order.
type Violation struct {
	// Input, Offset and Timestamp locate the offending event.
	Input     string
	Offset    int64
	Timestamp int64

	// Prev is the time of the event it should not precede.
	Prev int64

	// PerInput reports whether the events came from the same stream
	// file, as opposed to the merged sequence.
	PerInput bool
}

func (v Violation) String() string {
	where := "merged order"
	if v.PerInput {
		where = "stream file order"
	}
	return fmt.Sprintf("%s offset %d: time %d after %d in %s", v.Input, v.Offset, v.Timestamp, v.Prev, where)
}

// OrderChecker checks that event times never decrease, in the merged
// sequence and within each stream file. It keeps the first Max
// violations found.
type OrderChecker struct {
	Max        int
	Violations []Violation

	last    int64
	perFile map[string]int64
}

// NewOrderChecker returns a checker keeping up to max violations.
func NewOrderChecker(max int) *OrderChecker {
	return &OrderChecker{Max: max, last: math.MinInt64, perFile: make(map[string]int64)}
}

// RegisterStats implements Analyzer.
func (o *OrderChecker) RegisterStats(stats *Stats) {
	stats.RegisterOther("order.violations")
}

// Process implements Analyzer.
func (o *OrderChecker) Process(ev *ctf.Event, stats *Stats) {
	if ev.Timestamp < o.last {
		o.add(Violation{Input: ev.Input, Offset: ev.Offset, Timestamp: ev.Timestamp, Prev: o.last}, stats)
	}
	if prev, ok := o.perFile[ev.Input]; ok && ev.Timestamp < prev {
		o.add(Violation{Input: ev.Input, Offset: ev.Offset, Timestamp: ev.Timestamp, Prev: prev, PerInput: true}, stats)
	}
	o.last = max(o.last, ev.Timestamp)
	o.perFile[ev.Input] = ev.Timestamp
}

func (o *OrderChecker) add(v Violation, stats *Stats) {
	stats.AddOther("order.violations", 1)
	if len(o.Violations) < o.Max {
		o.Violations = append(o.Violations, v)
	}
}

// TooMany reports whether violations were dropped.
func (o *OrderChecker) TooMany(stats *Stats) bool {
	return stats.GetOther("order.violations") > uint64(len(o.Violations))
}
