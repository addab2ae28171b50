// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/goctf/ctf/bitbuf"
	"github.com/goctf/ctf/internal/metrics"
	"github.com/goctf/ctf/metadata"
	"github.com/goctf/ctf/types"
)

// packetReader decodes the events of one packet at a time. It holds
// the per-packet decode state, which load resets.
type packetReader struct {
	input     *StreamInput
	aggregate bool

	data  []byte
	buf   *bitbuf.Buffer
	scope types.Scope
	// base is the scope depth holding the packet header and context.
	base int

	entry  PacketIndexEntry
	stream *metadata.Stream

	// last is the full timestamp of the previous event, in cycles.
	last uint64

	// lost is the number of lost events left to report.
	lost uint64
}

// load reads the packet described by e. prevLost is the lost event
// total at the end of the previous packet.
func (r *packetReader) load(e PacketIndexEntry, prevLost uint64) error {
	n := (e.ContentSize + 7) / 8
	if int64(cap(r.data)) < n {
		r.data = make([]byte, n)
	}
	r.data = r.data[:n]
	if k, err := r.input.src.ReadAt(r.data, e.Offset); int64(k) < n {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return errors.Wrapf(err, "reading %s at offset %d", r.input.name, e.Offset)
	}
	if r.buf == nil {
		r.buf = bitbuf.New(r.data, r.input.meta.ByteOrder)
	} else {
		r.buf.Reset(r.data)
	}
	r.scope.Truncate(0)
	h, err := r.input.decodeHeader(r.buf, &r.scope, e.Offset)
	if err != nil {
		var me *MalformedTraceError
		if errors.As(err, &me) {
			return err
		}
		return &MalformedTraceError{File: r.input.name, Offset: e.Offset, Reason: "decoding packet header", Err: err}
	}
	r.base = r.scope.Depth()
	r.entry = e
	r.stream = h.stream
	r.last = e.TimestampBegin
	r.lost = e.LostEvents - prevLost
	if r.lost > 0 {
		metrics.LostEvents.Add(float64(r.lost))
	}
	return nil
}

// next decodes the next event of the packet into ev. It returns false
// at the end of the packet.
//
// Lost events are reported first, stamped with the packet's begin
// time, each as its own record or all in one record when aggregating.
func (r *packetReader) next(ev *Event) (bool, error) {
	if r.lost > 0 {
		n := uint64(1)
		if r.aggregate {
			n = r.lost
		}
		r.lost -= n
		*ev = Event{
			Timestamp: r.stream.Clock.CyclesToNanos(r.last),
			Cycles:    r.last,
			ID:        metadata.LostEventID,
			Name:      metadata.LostEvent.Name,
			StreamID:  r.stream.ID,
			CPU:       r.entry.CPU,
			Kind:      EventLost,
			Lost:      n,
			Input:     r.input.name,
			Offset:    r.entry.Offset,
			Decl:      metadata.LostEvent,
		}
		return true, nil
	}

	start := r.buf.Position()
	if start >= r.entry.ContentSize {
		return false, nil
	}
	r.scope.Truncate(r.base)

	id := metadata.UnsetID
	if eh := r.stream.EventHeader; eh != nil {
		hdr, err := r.decode(eh, types.ScopeStreamEventHeader, start)
		if err != nil {
			return false, err
		}
		id = r.header(hdr)
	}
	var streamCtx, eventCtx, fields *types.Definition
	if ec := r.stream.EventContext; ec != nil {
		def, err := r.decode(ec, types.ScopeStreamEventContext, start)
		if err != nil {
			return false, err
		}
		streamCtx = def
	}
	decl, ok := r.stream.Event(id)
	if !ok {
		return false, r.decodeError(start, errors.Newf("unknown event id %d in stream %d", id, r.stream.ID))
	}
	if decl.Context != nil {
		def, err := r.decode(decl.Context, types.ScopeEventContext, start)
		if err != nil {
			return false, err
		}
		eventCtx = def
	}
	if decl.Fields != nil {
		def, err := r.decode(decl.Fields, types.ScopeEventFields, start)
		if err != nil {
			return false, err
		}
		fields = def
	}
	switch end := r.buf.Position(); {
	case end > r.entry.ContentSize:
		return false, r.decodeError(start, errors.Newf("event %q ends at bit %d, past the packet content (%d bits)", decl.Name, end, r.entry.ContentSize))
	case end == start:
		return false, r.decodeError(start, errors.Newf("event %q has no data", decl.Name))
	}

	*ev = Event{
		Timestamp: r.stream.Clock.CyclesToNanos(r.last),
		Cycles:    r.last,
		ID:        decl.ID,
		Name:      decl.Name,
		StreamID:  r.stream.ID,
		CPU:       r.entry.CPU,
		Kind:      EventRegular,
		Input:     r.input.name,
		Offset:    r.entry.Offset + start/8,
		Decl:      decl,
		Context:   mergeValues(streamCtx, eventCtx),
		Fields:    structValue(fields),
	}
	return true, nil
}

func (r *packetReader) decode(decl *types.Struct, scope types.ScopeName, start int64) (*types.Definition, error) {
	def, err := types.Decode(decl, scope.String(), &r.scope, r.buf)
	if err != nil {
		return nil, r.decodeError(start, err)
	}
	r.scope.Push(scope, def)
	return def, nil
}

func (r *packetReader) decodeError(start int64, err error) error {
	metrics.DecodeErrors.WithLabelValues("event").Inc()
	return &DecodeError{File: r.input.name, Offset: r.entry.Offset + start/8, Err: err}
}

// header extracts the event id from a decoded event header and
// updates the running timestamp. The id and timestamp are either
// direct fields of the header or fields of its variant v, as in the
// LTTng compact and extended headers.
func (r *packetReader) header(hdr *types.Definition) int64 {
	id := metadata.UnsetID
	if f := hdr.Field("id"); f != nil {
		id = f.Int()
	}
	ts := hdr.Field("timestamp")
	if v := hdr.Field("v"); v != nil && v.Kind() == types.KindVariant {
		if f := v.Field("id"); f != nil {
			id = f.Int()
		}
		if f := v.Field("timestamp"); f != nil {
			ts = f
		}
	}
	if ts != nil {
		r.last = reconstructTimestamp(r.last, ts.Uint(), intWidth(ts.Decl))
	}
	return id
}

// reconstructTimestamp returns the full timestamp of an event whose
// timestamp field holds the low n bits v, given the full timestamp
// last of the previous event. Timestamps never decrease, so a value
// below the low bits of last means the low bits wrapped once.
func reconstructTimestamp(last, v uint64, n int) uint64 {
	if n >= 64 {
		return v
	}
	mask := uint64(1)<<n - 1
	if v < last&mask {
		v += 1 << n
	}
	return last&^mask + v
}

func structValue(def *types.Definition) map[string]any {
	if def == nil {
		return nil
	}
	m, _ := def.Value().(map[string]any)
	return m
}

// mergeValues merges the stream event context and the event context.
// Event context fields shadow stream event context fields.
func mergeValues(defs ...*types.Definition) map[string]any {
	var m map[string]any
	for _, def := range defs {
		for k, v := range structValue(def) {
			if m == nil {
				m = make(map[string]any)
			}
			m[k] = v
		}
	}
	return m
}
