// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"cmp"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/goctf/ctf/bitbuf"
	"github.com/goctf/ctf/internal/metrics"
	"github.com/goctf/ctf/metadata"
	"github.com/goctf/ctf/types"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// Magic is the value of the magic field of every packet header.
const Magic = 0xc1fc1fc1

// Source is a stream file.
type Source interface {
	io.ReaderAt

	// Len returns the size of the stream file in bytes.
	Len() int
}

// NamedSource is a stream file and the name it is reported under.
type NamedSource struct {
	Name   string
	Source Source
}

// PacketIndexEntry describes one packet of a stream file.
type PacketIndexEntry struct {
	// Offset is the byte offset of the packet in the file.
	Offset int64

	// PacketSize and ContentSize are the sizes in bits of the packet
	// and of its meaningful content, the rest being padding.
	PacketSize  int64
	ContentSize int64

	// PayloadOffset is the bit offset of the first event, relative
	// to the start of the packet.
	PayloadOffset int64

	// TimestampBegin and TimestampEnd are the packet time bounds in
	// clock cycles, zero if the packet context does not carry them.
	TimestampBegin uint64
	TimestampEnd   uint64

	// Begin and End are the packet time bounds in nanoseconds. End
	// is math.MaxInt64 if the packet has no end timestamp.
	Begin int64
	End   int64

	// LostEvents is the number of events the tracer discarded on
	// this stream up to the end of the packet.
	LostEvents uint64

	StreamID int64

	// CPU is the CPU the packet was recorded on, or -1.
	CPU int

	// SeqNum is the packet sequence number, or -1.
	SeqNum int64
}

// StreamInput is one stream file and the index of its packets.
//
// The packet index is built lazily: AddPacketHeaderIndex reads the
// header of one more packet each time it is called, and readers call
// it as they advance. A StreamInput is safe for concurrent use.
type StreamInput struct {
	name string
	pos  int
	src  Source
	meta *metadata.Trace
	log  *slog.Logger

	mu            sync.Mutex
	window        int
	stream        *metadata.Stream
	index         []PacketIndexEntry
	lastDiscarded uint64
	done          bool
	err           error
	hdrBuf        []byte

	indexed atomic.Int64
}

func newStreamInput(meta *metadata.Trace, src NamedSource, pos int, cfg *config) *StreamInput {
	return &StreamInput{
		name:   src.Name,
		pos:    pos,
		src:    src.Source,
		meta:   meta,
		log:    cfg.log,
		window: cfg.window,
	}
}

// Name returns the name of the stream file.
func (s *StreamInput) Name() string { return s.name }

// Len returns the size of the stream file in bytes.
func (s *StreamInput) Len() int64 { return int64(s.src.Len()) }

// Stream returns the stream class of the file, known once the first
// packet is indexed.
func (s *StreamInput) Stream() *metadata.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Packets returns a copy of the packet index built so far.
func (s *StreamInput) Packets() []PacketIndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.index)
}

// Indexed reports whether every packet of the file is indexed.
func (s *StreamInput) Indexed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Progress returns the fraction of the file covered by the packet
// index, between 0 and 1.
func (s *StreamInput) Progress() float64 {
	if s.src.Len() == 0 {
		return 1
	}
	return float64(s.indexed.Load()) / float64(s.src.Len())
}

// AddPacketHeaderIndex indexes the packet that follows the last
// indexed one. It returns false once the end of the file is reached.
// A malformed packet stops indexing: the error is returned by this
// and every later call.
func (s *StreamInput) AddPacketHeaderIndex() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addPacketHeaderIndex()
}

// IndexAll indexes every remaining packet.
func (s *StreamInput) IndexAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		ok, err := s.addPacketHeaderIndex()
		if !ok {
			return err
		}
	}
}

func (s *StreamInput) addPacketHeaderIndex() (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.done {
		return false, nil
	}
	var off int64
	if n := len(s.index); n > 0 {
		last := &s.index[n-1]
		off = last.Offset + (last.PacketSize+7)/8
	}
	if off >= int64(s.src.Len()) {
		s.done = true
		s.indexed.Store(int64(s.src.Len()))
		return false, nil
	}
	e, err := s.readPacketHeader(off)
	if err != nil {
		s.err = err
		metrics.DecodeErrors.WithLabelValues("packet").Inc()
		return false, err
	}
	s.index = append(s.index, e)
	s.indexed.Store(off + (e.PacketSize+7)/8)
	metrics.PacketsIndexed.Inc()
	s.log.Debug("indexed packet", "input", s.name, "offset", off, "bits", e.PacketSize, "lost", e.LostEvents)
	return true, nil
}

// readPacketHeader decodes the header and context of the packet at
// off, growing the read window until they fit.
func (s *StreamInput) readPacketHeader(off int64) (PacketIndexEntry, error) {
	remaining := int64(s.src.Len()) - off
	window := int64(s.window)
	for {
		n := min(window, remaining)
		if int64(cap(s.hdrBuf)) < n {
			s.hdrBuf = make([]byte, n)
		}
		data := s.hdrBuf[:n]
		if _, err := s.src.ReadAt(data, off); err != nil && err != io.EOF {
			return PacketIndexEntry{}, errors.Wrapf(err, "reading %s at offset %d", s.name, off)
		}
		var scope types.Scope
		h, err := s.decodeHeader(bitbuf.New(data, s.meta.ByteOrder), &scope, off)
		var me *MalformedTraceError
		switch {
		case err == nil:
			return s.validate(h, off, remaining)
		case errors.Is(err, bitbuf.ErrOutOfBounds) && n < remaining:
			window *= 2
		case errors.As(err, &me):
			return PacketIndexEntry{}, err
		default:
			return PacketIndexEntry{}, &MalformedTraceError{File: s.name, Offset: off, Reason: "decoding packet header", Err: err}
		}
	}
}

// packetHeader is the decoded header and context of a packet.
// Absent sizes are -1.
type packetHeader struct {
	stream   *metadata.Stream
	streamID int64

	packetSize, contentSize int64
	payload                 int64

	begin, end       uint64
	hasBegin, hasEnd bool

	discarded     uint64
	discardedBits int
	hasDiscarded  bool

	cpu int
	seq int64
}

// decodeHeader decodes the trace packet header and the stream packet
// context at the start of buf, pushing both onto scope.
func (s *StreamInput) decodeHeader(buf *bitbuf.Buffer, scope *types.Scope, off int64) (packetHeader, error) {
	h := packetHeader{packetSize: -1, contentSize: -1, cpu: -1, seq: -1}
	hasStreamID := false
	if ph := s.meta.PacketHeader; ph != nil {
		hdr, err := types.Decode(ph, "trace.packet.header", scope, buf)
		if err != nil {
			return h, err
		}
		scope.Push(types.ScopeTracePacketHeader, hdr)
		if f := hdr.Field("magic"); f != nil && f.Uint() != Magic {
			return h, malformed(s.name, off, "bad magic %#x", f.Uint())
		}
		if f := hdr.Field("uuid"); f != nil && s.meta.HasUUID {
			if u, ok := uuidValue(f); !ok || u != s.meta.UUID {
				return h, malformed(s.name, off, "packet UUID %s does not match trace UUID %s", u, s.meta.UUID)
			}
		}
		if f := hdr.Field("stream_id"); f != nil {
			h.streamID, hasStreamID = f.Int(), true
		}
	}
	stream, ok := s.meta.Stream(h.streamID)
	if !ok && !hasStreamID && len(s.meta.Streams) == 1 {
		for _, only := range s.meta.Streams {
			stream, ok = only, true
		}
	}
	if !ok {
		return h, malformed(s.name, off, "unknown stream id %d", h.streamID)
	}
	h.stream, h.streamID = stream, stream.ID

	if pc := stream.PacketContext; pc != nil {
		ctx, err := types.Decode(pc, "stream.packet.context", scope, buf)
		if err != nil {
			return h, err
		}
		scope.Push(types.ScopeStreamPacketContext, ctx)
		if f := ctx.Field("packet_size"); f != nil {
			h.packetSize = int64(f.Uint())
		}
		if f := ctx.Field("content_size"); f != nil {
			h.contentSize = int64(f.Uint())
		}
		if f := ctx.Field("timestamp_begin"); f != nil {
			h.begin, h.hasBegin = f.Uint(), true
		}
		if f := ctx.Field("timestamp_end"); f != nil {
			h.end, h.hasEnd = f.Uint(), true
		}
		if f := ctx.Field("events_discarded"); f != nil {
			h.discarded, h.discardedBits, h.hasDiscarded = f.Uint(), intWidth(f.Decl), true
		}
		if f := ctx.Field("cpu_id"); f != nil {
			h.cpu = int(f.Uint())
		}
		if f := ctx.Field("packet_seq_num"); f != nil {
			h.seq = int64(f.Uint())
		}
	}
	h.payload = buf.Position()
	return h, nil
}

// validate checks the geometry of a decoded packet against the file
// and the previous packets, and builds its index entry.
func (s *StreamInput) validate(h packetHeader, off, remaining int64) (PacketIndexEntry, error) {
	if s.stream != nil && h.streamID != s.stream.ID {
		return PacketIndexEntry{}, malformed(s.name, off, "stream id changed from %d to %d", s.stream.ID, h.streamID)
	}
	fileBits := remaining * 8
	size, content := h.packetSize, h.contentSize
	switch {
	case size < 0 && content < 0:
		size = fileBits
	case size < 0:
		size = content
	}
	if content < 0 {
		content = size
	}
	if size == 0 {
		return PacketIndexEntry{}, malformed(s.name, off, "packet size is zero")
	}
	if content > size {
		return PacketIndexEntry{}, malformed(s.name, off, "content size %d bits exceeds packet size %d bits", content, size)
	}
	if size > fileBits {
		return PacketIndexEntry{}, malformed(s.name, off, "packet size %d bits exceeds the %d bits left in the file", size, fileBits)
	}
	if h.payload > content {
		return PacketIndexEntry{}, malformed(s.name, off, "packet header and context (%d bits) exceed the content size %d bits", h.payload, content)
	}
	if h.hasBegin && h.hasEnd && h.end < h.begin {
		return PacketIndexEntry{}, malformed(s.name, off, "timestamp_end %d before timestamp_begin %d", h.end, h.begin)
	}

	e := PacketIndexEntry{
		Offset:         off,
		PacketSize:     size,
		ContentSize:    content,
		PayloadOffset:  h.payload,
		TimestampBegin: h.begin,
		TimestampEnd:   h.end,
		StreamID:       h.streamID,
		CPU:            h.cpu,
		SeqNum:         h.seq,
	}
	clock := h.stream.Clock
	e.Begin = clock.CyclesToNanos(h.begin)
	e.End = math.MaxInt64
	if h.hasEnd {
		e.End = clock.CyclesToNanos(h.end)
	}
	if n := len(s.index); n > 0 {
		e.LostEvents = s.index[n-1].LostEvents
	}
	if h.hasDiscarded {
		// The counter wraps at its width.
		delta := h.discarded - s.lastDiscarded
		if h.discardedBits < 64 {
			delta &= uint64(1)<<h.discardedBits - 1
		}
		e.LostEvents += delta
		s.lastDiscarded = h.discarded
	}
	s.stream = h.stream
	return e, nil
}

// entry returns the i'th packet, indexing packets up to it, and the
// lost event total of the packet before it.
func (s *StreamInput) entry(i int) (e PacketIndexEntry, prevLost uint64, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.index) <= i {
		if ok, err := s.addPacketHeaderIndex(); !ok {
			return PacketIndexEntry{}, 0, false, err
		}
	}
	if i > 0 {
		prevLost = s.index[i-1].LostEvents
	}
	return s.index[i], prevLost, true, nil
}

// searchPacket returns the position of the first packet that ends at
// or after ts, or the number of packets if there is none.
func (s *StreamInput) searchPacket(ts int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.index) == 0 || s.index[len(s.index)-1].End < ts {
		ok, err := s.addPacketHeaderIndex()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
	}
	i, _ := slices.BinarySearchFunc(s.index, ts, func(e PacketIndexEntry, ts int64) int {
		return cmp.Compare(e.End, ts)
	})
	return i, nil
}

func uuidValue(def *types.Definition) (uuid.UUID, bool) {
	var u uuid.UUID
	if def.Len() != len(u) {
		return u, false
	}
	for i := range u {
		u[i] = byte(def.Elem(i).Uint())
	}
	return u, true
}

// intWidth returns the width in bits of an integer or enum field.
func intWidth(decl types.Declaration) int {
	switch d := decl.(type) {
	case *types.Integer:
		return d.Size
	case *types.Enum:
		return d.Container.Size
	}
	return 64
}
