// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"fmt"
	"math"
)

// ReaderState is the state of a TraceReader.
type ReaderState uint8

const (
	Uninitialized ReaderState = iota // No event read yet.
	Positioned                       // Current returns an event.
	Exhausted                        // No events left.
)

func (s ReaderState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Positioned:
		return "positioned"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("ReaderState(%d)", uint8(s))
}

// TraceReader merges the events of every stream file of a trace into
// one sequence ordered by time. Events with equal times are ordered by
// stream id, then stream file name.
//
// A TraceReader is not safe for concurrent use.
type TraceReader struct {
	readers []*StreamInputReader
	heap    []*StreamInputReader
	state   ReaderState
	endTime int64
	size    int64
}

// NewReader returns a reader over the events of t.
func (t *Trace) NewReader() *TraceReader {
	r := &TraceReader{endTime: math.MinInt64}
	for _, in := range t.inputs {
		r.readers = append(r.readers, newStreamInputReader(in, t.cfg.aggregateLost))
		r.size += in.Len()
	}
	return r
}

// State returns the state of the reader.
func (r *TraceReader) State() ReaderState { return r.state }

// Current returns the current event, or nil unless the reader is
// positioned. The event is overwritten by the next call to Advance or
// Seek.
func (r *TraceReader) Current() *Event {
	if r.state != Positioned {
		return nil
	}
	return r.heap[0].Current()
}

// CurrentReader returns the stream file reader holding the current
// event, or nil.
func (r *TraceReader) CurrentReader() *StreamInputReader {
	if r.state != Positioned {
		return nil
	}
	return r.heap[0]
}

// EndTime returns the greatest event time seen so far, or
// math.MinInt64.
func (r *TraceReader) EndTime() int64 { return r.endTime }

// Advance moves to the next event. The first call positions the reader
// on the first event of the trace. It reports whether the reader is
// positioned on an event afterwards.
//
// A stream file that fails to decode is dropped from the merge and its
// error returned; the reader stays valid over the other stream files.
func (r *TraceReader) Advance() (bool, error) {
	switch r.state {
	case Exhausted:
		return false, nil
	case Uninitialized:
		r.heap = r.heap[:0]
		var first error
		for _, sr := range r.readers {
			ok, err := sr.ReadNextEvent()
			if err != nil {
				if first == nil {
					first = err
				}
				continue
			}
			if ok {
				r.heap = heapInsert(r.heap, sr)
			}
		}
		return r.positioned(), first
	}

	head := r.heap[0]
	ok, err := head.ReadNextEvent()
	if err != nil {
		r.heap = heapRemove(r.heap, 0)
		return r.positioned(), err
	}
	if ok {
		heapUpdate(r.heap, 0)
	} else {
		r.heap = heapRemove(r.heap, 0)
	}
	return r.positioned(), nil
}

// Seek moves every stream file reader to its first event at or after
// time ts, in nanoseconds, and positions the reader on the earliest of
// them. It reports whether there is such an event. As with Advance, a
// stream file that fails is left out and its error returned.
func (r *TraceReader) Seek(ts int64) (bool, error) {
	r.heap = r.heap[:0]
	var first error
	for _, sr := range r.readers {
		ok, err := sr.Seek(ts)
		if err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		if ok {
			r.heap = heapInsert(r.heap, sr)
		}
	}
	return r.positioned(), first
}

func (r *TraceReader) positioned() bool {
	if len(r.heap) == 0 {
		r.state = Exhausted
		return false
	}
	r.state = Positioned
	if t := r.heap[0].cur.Timestamp; t > r.endTime {
		r.endTime = t
	}
	return true
}

// Progress returns a float64 value between 0 and 1 indicating the
// approximate progress of the reader through the trace files.
func (r *TraceReader) Progress() float64 {
	if r.size == 0 || r.state == Exhausted {
		return 1
	}
	var done int64
	for _, sr := range r.readers {
		done += sr.consumed
	}
	return float64(done) / float64(r.size)
}
