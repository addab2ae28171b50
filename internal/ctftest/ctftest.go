// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ctftest synthesizes CTF traces for tests.
//
// The traces follow the layout of an LTTng kernel trace: a packet
// header with magic, UUID and stream id, a packet context with
// timestamps, sizes, a discarded event counter and a CPU id, and
// either a compact or a plain event header. Every stream class
// declares two events: "tick" (id 0, fields value:int32 and
// msg:string) and "blob" (id 1, fields len:uint16 and data:uint8[len]).
package ctftest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goctf/ctf/bitbuf"
	"github.com/google/uuid"
)

// Magic is the CTF packet magic number.
const Magic = 0xc1fc1fc1

// DefaultUUID is the trace UUID used when a Layout has none.
var DefaultUUID = uuid.MustParse("2a6422d0-6cee-11e0-8c08-cb07d7b3a564")

// Event ids declared by every stream class.
const (
	TickID = 0
	BlobID = 1
)

// Layout selects the shape of a synthetic trace.
type Layout struct {
	Order bitbuf.ByteOrder

	// Compact selects the LTTng compact event header, which stores 27
	// timestamp bits when the event id is small and the time delta
	// allows it.
	Compact bool

	// Streams is the number of stream classes, with ids 0 to
	// Streams-1. Zero means one.
	Streams int

	UUID uuid.UUID

	// Freq is the clock frequency in Hz. Zero means 1 GHz.
	Freq uint64

	// OffsetS is the clock offset in seconds.
	OffsetS int64
}

func (l Layout) uuid() uuid.UUID {
	if l.UUID == (uuid.UUID{}) {
		return DefaultUUID
	}
	return l.UUID
}

// Metadata returns the TSDL metadata of the layout.
func (l Layout) Metadata() string {
	var sb strings.Builder
	order := "le"
	if l.Order == bitbuf.BigEndian {
		order = "be"
	}
	freq := l.Freq
	if freq == 0 {
		freq = 1_000_000_000
	}
	fmt.Fprintf(&sb, `/* CTF 1.8 */
typealias integer { size = 8; align = 8; signed = false; } := uint8_t;
typealias integer { size = 16; align = 8; signed = false; } := uint16_t;
typealias integer { size = 32; align = 8; signed = false; } := uint32_t;
typealias integer { size = 64; align = 8; signed = false; } := uint64_t;
typealias integer { size = 32; align = 8; signed = true; } := int32_t;
typealias integer { size = 5; align = 1; signed = false; } := uint5_t;

trace {
	major = 1;
	minor = 8;
	uuid = "%s";
	byte_order = %s;
	packet.header := struct {
		uint32_t magic;
		uint8_t  uuid[16];
		uint32_t stream_id;
	};
};

clock {
	name = "monotonic";
	freq = %d;
	offset_s = %d;
};

typealias integer { size = 27; align = 1; signed = false; map = clock.monotonic.value; } := uint27_clock_monotonic_t;
typealias integer { size = 64; align = 8; signed = false; map = clock.monotonic.value; } := uint64_clock_monotonic_t;

struct packet_context {
	uint64_clock_monotonic_t timestamp_begin;
	uint64_clock_monotonic_t timestamp_end;
	uint64_t content_size;
	uint64_t packet_size;
	uint64_t packet_seq_num;
	uint32_t events_discarded;
	uint32_t cpu_id;
};
`, l.uuid(), order, freq, l.OffsetS)

	if l.Compact {
		sb.WriteString(`
struct event_header {
	enum : uint5_t { compact = 0 ... 30, extended = 31 } id;
	variant <id> {
		struct { uint27_clock_monotonic_t timestamp; } compact;
		struct { uint32_t id; uint64_clock_monotonic_t timestamp; } extended;
	} v;
} align(8);
`)
	} else {
		sb.WriteString(`
struct event_header {
	uint32_t id;
	uint64_clock_monotonic_t timestamp;
} align(8);
`)
	}

	for s := 0; s < max(l.Streams, 1); s++ {
		fmt.Fprintf(&sb, `
stream {
	id = %d;
	event.header := struct event_header;
	packet.context := struct packet_context;
};

event {
	name = "tick";
	id = %d;
	stream_id = %d;
	fields := struct {
		int32_t value;
		string msg;
	};
};

event {
	name = "blob";
	id = %d;
	stream_id = %d;
	fields := struct {
		uint16_t len;
		uint8_t data[len];
	};
};
`, s, TickID, s, BlobID, s)
	}
	return sb.String()
}

// Event is an event to write into a packet.
type Event struct {
	// ID is TickID or BlobID, or any other id to produce an event
	// the metadata does not declare.
	ID   int64
	Time uint64

	// Tick fields.
	Value int32
	Msg   string

	// Blob field.
	Data []byte
}

// Packet describes one packet of a stream file. Zero override fields
// take their correct value.
type Packet struct {
	Events []Event

	// Begin and End default to the first and last event times.
	Begin, End uint64

	// Discarded is the value of the events_discarded counter, the
	// running total of events lost on this stream.
	Discarded uint32
	CPU       uint32
	SeqNum    uint64

	// Padding is the number of zero bytes between the content and
	// the end of the packet.
	Padding int

	// Overrides used to build malformed packets.
	Magic       uint32
	UUID        *uuid.UUID
	StreamID    *uint32
	ContentSize uint64
	PacketSize  uint64
}

// Stream returns the contents of a stream file of stream class id
// made of the given packets.
func (l Layout) Stream(id uint32, packets ...Packet) []byte {
	var out []byte
	for _, p := range packets {
		out = append(out, l.packet(id, p)...)
	}
	return out
}

func (l Layout) packet(id uint32, p Packet) []byte {
	w := bitbuf.NewWriter(l.Order)

	magic := p.Magic
	if magic == 0 {
		magic = Magic
	}
	w.Write(uint64(magic), 32)
	u := l.uuid()
	if p.UUID != nil {
		u = *p.UUID
	}
	w.WriteBytes(u[:])
	sid := id
	if p.StreamID != nil {
		sid = *p.StreamID
	}
	w.Write(uint64(sid), 32)

	begin, end := p.Begin, p.End
	if len(p.Events) > 0 {
		if begin == 0 {
			begin = p.Events[0].Time
		}
		if end == 0 {
			end = p.Events[len(p.Events)-1].Time
		}
	}
	w.Write(begin, 64)
	w.Write(end, 64)
	contentPos := w.Position()
	w.Write(0, 64)
	packetPos := w.Position()
	w.Write(0, 64)
	w.Write(p.SeqNum, 64)
	w.Write(uint64(p.Discarded), 32)
	w.Write(uint64(p.CPU), 32)

	last := begin
	for _, ev := range p.Events {
		l.event(w, ev, last)
		last = ev.Time
	}

	content := uint64(w.Position())
	w.Align(8)
	w.Skip(int64(p.Padding) * 8)
	size := uint64(w.Position())
	if p.ContentSize != 0 {
		content = p.ContentSize
	}
	if p.PacketSize != 0 {
		size = p.PacketSize
	}
	w.PutAt(contentPos, content, 64)
	w.PutAt(packetPos, size, 64)
	return w.Bytes()
}

func (l Layout) event(w *bitbuf.Writer, ev Event, last uint64) {
	const compactBits = 27
	w.Align(8)
	if l.Compact {
		if ev.ID >= 0 && ev.ID < 31 && ev.Time >= last && ev.Time-last < 1<<compactBits {
			w.Write(uint64(ev.ID), 5)
			w.Write(ev.Time&(1<<compactBits-1), compactBits)
		} else {
			w.Write(31, 5)
			w.Align(8)
			w.Write(uint64(ev.ID), 32)
			w.Write(ev.Time, 64)
		}
	} else {
		w.Write(uint64(ev.ID), 32)
		w.Write(ev.Time, 64)
	}

	switch ev.ID {
	case TickID:
		w.Align(8)
		w.Write(uint64(uint32(ev.Value)), 32)
		w.WriteCString(ev.Msg)
	case BlobID:
		w.Align(8)
		w.Write(uint64(len(ev.Data)), 16)
		w.WriteBytes(ev.Data)
	}
}

// Ticks returns tick events at the given times, with values counting
// from zero.
func Ticks(times ...uint64) []Event {
	evs := make([]Event, len(times))
	for i, t := range times {
		evs[i] = Event{ID: TickID, Time: t, Value: int32(i), Msg: fmt.Sprintf("tick %d", i)}
	}
	return evs
}

// WriteTrace writes a trace directory holding the metadata and the
// given stream files.
func WriteTrace(dir, metadata string, streams map[string][]byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata"), []byte(metadata), 0o644); err != nil {
		return err
	}
	for name, data := range streams {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
