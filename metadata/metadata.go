// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metadata parses CTF trace metadata written in TSDL, the
// trace stream description language.
//
// The parser covers the subset of TSDL emitted by common tracers:
// type aliases and typedefs, the trace, env, clock, stream and event
// blocks, and the integer, floating_point, string, enum, struct,
// variant, array and sequence type specifiers.
package metadata

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/goctf/ctf/bitbuf"
	"github.com/goctf/ctf/types"
	"github.com/google/uuid"
)

const (
	// UnsetID is the id of a stream or event declared without one.
	UnsetID int64 = -1

	// LostEventID is the id of the synthetic declaration that reports
	// events discarded by the tracer.
	LostEventID int64 = -2
)

// ErrEventWithoutID is returned when a stream declares an event
// without an id alongside other events.
var ErrEventWithoutID = errors.New("event without id with multiple events in a stream")

// LostEvent is the declaration attached to lost-event records.
var LostEvent = &Event{ID: LostEventID, Name: "Lost event", StreamID: UnsetID, LogLevel: -1}

// Trace is the parsed metadata of a trace.
type Trace struct {
	Major, Minor int
	UUID         uuid.UUID
	HasUUID      bool
	ByteOrder    bitbuf.ByteOrder

	// PacketHeader is the trace.packet.header layout, or nil.
	PacketHeader *types.Struct

	Env     map[string]any
	Clocks  map[string]*Clock
	Streams map[int64]*Stream
}

// Stream returns the stream class with the given id.
func (t *Trace) Stream(id int64) (*Stream, bool) {
	s, ok := t.Streams[id]
	return s, ok
}

// StreamIDs returns the declared stream ids in increasing order.
func (t *Trace) StreamIDs() []int64 {
	ids := make([]int64, 0, len(t.Streams))
	for id := range t.Streams {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Stream is a stream class: the layouts shared by all packets of the
// stream files that carry its id.
type Stream struct {
	ID int64

	PacketContext *types.Struct
	EventHeader   *types.Struct
	EventContext  *types.Struct

	// Clock is the clock event timestamps are expressed in. A nil
	// clock counts nanoseconds.
	Clock *Clock

	Events map[int64]*Event
}

func newStream(id int64) *Stream {
	return &Stream{ID: id, Events: make(map[int64]*Event)}
}

// Event returns the event class with the given id. A stream holding a
// single event without an id returns it for any id.
func (s *Stream) Event(id int64) (*Event, bool) {
	if ev, ok := s.Events[id]; ok {
		return ev, true
	}
	if ev, ok := s.Events[UnsetID]; ok {
		return ev, true
	}
	return nil, false
}

// EventIDs returns the ids of the stream's events in increasing order.
func (s *Stream) EventIDs() []int64 {
	ids := make([]int64, 0, len(s.Events))
	for id := range s.Events {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AddEvent registers an event class with the stream.
func (s *Stream) AddEvent(ev *Event) error {
	if ev.ID == UnsetID {
		if len(s.Events) != 0 {
			return ErrEventWithoutID
		}
	} else if _, ok := s.Events[UnsetID]; ok {
		return ErrEventWithoutID
	}
	if _, dup := s.Events[ev.ID]; dup {
		return errors.Newf("duplicate event id %d in stream %d", ev.ID, s.ID)
	}
	ev.StreamID = s.ID
	s.Events[ev.ID] = ev
	return nil
}

// Event is an event class.
type Event struct {
	ID       int64
	Name     string
	StreamID int64
	LogLevel int64

	Context *types.Struct
	Fields  *types.Struct
}

func (e *Event) String() string {
	return fmt.Sprintf("%s (id %d, stream %d)", e.Name, e.ID, e.StreamID)
}

// Clock describes a clock that timestamps are sampled from.
type Clock struct {
	Name        string
	UUID        uuid.UUID
	Description string
	Freq        uint64
	Precision   uint64
	OffsetS     int64
	Offset      uint64
	Absolute    bool
}

const nsPerSec = 1_000_000_000

// CyclesToNanos converts a raw clock value to nanoseconds since the
// epoch, applying the clock's offsets. A nil clock is the identity.
func (c *Clock) CyclesToNanos(cycles uint64) int64 {
	if c == nil {
		return int64(cycles)
	}
	return c.OffsetS*nsPerSec + c.scale(c.Offset) + c.scale(cycles)
}

// NanosToCycles is the inverse of CyclesToNanos. Times before the
// clock's origin map to zero.
func (c *Clock) NanosToCycles(ns int64) uint64 {
	if c == nil {
		if ns < 0 {
			return 0
		}
		return uint64(ns)
	}
	ns -= c.OffsetS*nsPerSec + c.scale(c.Offset)
	if ns <= 0 {
		return 0
	}
	if c.Freq == nsPerSec || c.Freq == 0 {
		return uint64(ns)
	}
	// cycles = ns * freq / 1e9 without overflowing the product.
	hi, lo := bits.Mul64(uint64(ns), c.Freq)
	if hi >= nsPerSec {
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, nsPerSec)
	return q
}

// scale converts a cycle count to nanoseconds.
func (c *Clock) scale(cycles uint64) int64 {
	if c.Freq == nsPerSec || c.Freq == 0 {
		return int64(cycles)
	}
	q, r := cycles/c.Freq, cycles%c.Freq
	hi, lo := bits.Mul64(r, nsPerSec)
	frac, _ := bits.Div64(hi, lo, c.Freq)
	return int64(q*nsPerSec + frac)
}

// ParseError reports a metadata syntax or semantic error.
type ParseError struct {
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("metadata:%d: %s: %v", e.Line, e.Msg, e.Err)
	}
	return fmt.Sprintf("metadata:%d: %s", e.Line, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }
