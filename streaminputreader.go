// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import "github.com/goctf/ctf/internal/metrics"

// StreamInputReader is a cursor over the events of one stream file.
// It is not safe for concurrent use.
type StreamInputReader struct {
	input *StreamInput
	pr    packetReader

	// packet is the position of the loaded packet, or -1.
	packet int
	loaded bool

	cur Event
	has bool

	// consumed is the number of bytes of the file read so far.
	consumed int64
}

func newStreamInputReader(in *StreamInput, aggregateLost bool) *StreamInputReader {
	return &StreamInputReader{
		input:  in,
		pr:     packetReader{input: in, aggregate: aggregateLost},
		packet: -1,
	}
}

// Input returns the stream file read by r.
func (r *StreamInputReader) Input() *StreamInput { return r.input }

// Current returns the current event, or nil if there is none.
func (r *StreamInputReader) Current() *Event {
	if !r.has {
		return nil
	}
	return &r.cur
}

// CPU returns the CPU of the current packet, or -1.
func (r *StreamInputReader) CPU() int {
	if !r.loaded {
		return -1
	}
	return r.pr.entry.CPU
}

// Packet returns the index entry of the current packet.
func (r *StreamInputReader) Packet() (PacketIndexEntry, bool) {
	return r.pr.entry, r.loaded
}

// ReadNextEvent moves to the next event of the file, loading the next
// packet when the current one is exhausted. It returns false at the
// end of the file.
func (r *StreamInputReader) ReadNextEvent() (bool, error) {
	for {
		if r.loaded {
			ok, err := r.pr.next(&r.cur)
			if err != nil {
				r.has = false
				return false, err
			}
			if ok {
				r.has = true
				metrics.EventsDecoded.Inc()
				return true, nil
			}
		}
		if ok, err := r.loadPacket(r.packet + 1); !ok {
			r.has = false
			return false, err
		}
	}
}

func (r *StreamInputReader) loadPacket(i int) (bool, error) {
	e, prevLost, ok, err := r.input.entry(i)
	if !ok {
		r.loaded = false
		if err == nil {
			r.consumed = r.input.Len()
		}
		return false, err
	}
	if err := r.pr.load(e, prevLost); err != nil {
		r.loaded = false
		return false, err
	}
	r.packet, r.loaded = i, true
	r.consumed = e.Offset + (e.PacketSize+7)/8
	return true, nil
}

// Seek moves to the first event at or after time ts, in nanoseconds.
// It returns false if there is no such event.
func (r *StreamInputReader) Seek(ts int64) (bool, error) {
	i, err := r.input.searchPacket(ts)
	if err != nil {
		r.has = false
		return false, err
	}
	r.packet, r.loaded = i-1, false
	for {
		ok, err := r.ReadNextEvent()
		if !ok {
			return false, err
		}
		if r.cur.Timestamp >= ts {
			return true, nil
		}
	}
}
