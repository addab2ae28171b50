// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package analysis contains consumers of the merged event sequence of
// a trace, used by the ctf tools.
package analysis

import (
	"math"

	"github.com/goctf/ctf"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Stats is a sample of statistics produced by analyzers.
type Stats struct {
	// Start and Timestamp are the times in nanoseconds of the first
	// and most recent events processed.
	Start     int64
	Timestamp int64

	// Events is the number of events processed, lost event records
	// included.
	Events uint64

	// LostRecords is the number of lost event records processed, and
	// LostEvents the number of discarded events they stand for.
	LostRecords uint64
	LostEvents  uint64

	// other represents statistics which are unique to an analyzer.
	other map[string]uint64
}

// NewStats creates a new valid Stats object.
//
// Must be used instead of constructing a Stats object directly,
// since there are unexported fields which may need to be initialized.
func NewStats() *Stats {
	return &Stats{
		Start: math.MinInt64,
		other: make(map[string]uint64),
	}
}

// Duration returns the time spanned by the events processed, in
// nanoseconds.
func (s *Stats) Duration() int64 {
	if s.Events == 0 {
		return 0
	}
	return s.Timestamp - s.Start
}

// OtherStats returns a sorted list of registered analyzer-specific
// statistics.
func (s *Stats) OtherStats() []string {
	names := maps.Keys(s.other)
	slices.Sort(names)
	return names
}

// GetOther returns the value of an analyzer-specific statistic by
// name. Returns 0 if the statistic is not registered.
func (s *Stats) GetOther(name string) uint64 {
	return s.other[name]
}

// RegisterOther registers a new analyzer-specific statistic.
//
// This operation is idempotent and safe to perform again, even after
// a statistic has been modified.
func (s *Stats) RegisterOther(name string) {
	if _, ok := s.other[name]; !ok {
		s.other[name] = 0
	}
}

// AddOther adds an amount to the value of an analyzer-specific
// statistic. Panics if the statistic has not been registered.
func (s *Stats) AddOther(name string, amount uint64) {
	val, ok := s.other[name]
	if !ok {
		panic("attempted to add to non-existing stat " + name)
	}
	s.other[name] = val + amount
}

// Analyzer consumes trace events in merged order.
type Analyzer interface {
	// RegisterStats offers the analyzer an opportunity to register
	// any additional statistics before processing.
	RegisterStats(*Stats)

	// Process feeds the next event to the analyzer.
	Process(*ctf.Event, *Stats)
}

// Chain is an Analyzer that updates the common statistics and feeds
// every event to each of its analyzers in turn.
type Chain []Analyzer

// RegisterStats implements Analyzer.
func (c Chain) RegisterStats(stats *Stats) {
	for _, a := range c {
		a.RegisterStats(stats)
	}
}

// Process implements Analyzer.
func (c Chain) Process(ev *ctf.Event, stats *Stats) {
	if stats.Events == 0 {
		stats.Start = ev.Timestamp
	}
	stats.Events++
	stats.Timestamp = ev.Timestamp
	if ev.Kind == ctf.EventLost {
		stats.LostRecords++
		stats.LostEvents += ev.Lost
	}
	for _, a := range c {
		a.Process(ev, stats)
	}
}
