// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitbuf

// Writer is the inverse of Buffer: it appends bit-granular integers
// to a growing byte slice. It is used to synthesize packets.
type Writer struct {
	buf   []byte
	pos   int64
	order ByteOrder
}

// NewWriter returns an empty Writer with the given default byte order.
func NewWriter(order ByteOrder) *Writer {
	return &Writer{order: order}
}

// Bytes returns the written data. The final partial byte, if any,
// is included.
func (w *Writer) Bytes() []byte { return w.buf }

// Position returns the write position in bits.
func (w *Writer) Position() int64 { return w.pos }

// Align pads with zero bits up to the next multiple of align bits.
func (w *Writer) Align(align int64) {
	if align <= 1 {
		return
	}
	w.Skip((w.pos+align-1)/align*align - w.pos)
}

// Skip writes n zero bits.
func (w *Writer) Skip(n int64) {
	w.pos += n
	w.grow(w.pos)
}

// Write appends the low width bits of v in the default byte order.
func (w *Writer) Write(v uint64, width int) {
	w.WriteOrder(v, width, w.order)
}

// WriteOrder appends the low width bits of v in the given byte order.
func (w *Writer) WriteOrder(v uint64, width int, order ByteOrder) {
	w.put(w.pos, v, width, order)
	w.pos += int64(width)
}

// PutAt overwrites width bits at bit pos with v, without moving the
// write position. The target bits must have been written as zero.
func (w *Writer) PutAt(pos int64, v uint64, width int) {
	w.put(pos, v, width, w.order)
}

// WriteBytes appends raw bytes. The write position must be
// byte-aligned.
func (w *Writer) WriteBytes(p []byte) {
	for _, c := range p {
		w.WriteOrder(uint64(c), 8, w.order)
	}
}

// WriteCString appends s followed by a NUL byte.
func (w *Writer) WriteCString(s string) {
	w.WriteBytes([]byte(s))
	w.WriteOrder(0, 8, w.order)
}

func (w *Writer) grow(bits int64) {
	need := (bits + 7) / 8
	for int64(len(w.buf)) < need {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) put(pos int64, v uint64, width int, order ByteOrder) {
	w.grow(pos + int64(width))
	if width < 64 {
		v &= uint64(1)<<width - 1
	}
	p, rem := pos, width
	if order == LittleEndian {
		for rem > 0 {
			off := int(p % 8)
			n := min(8-off, rem)
			w.buf[p/8] |= byte(v&(uint64(1)<<n-1)) << off
			v >>= n
			p += int64(n)
			rem -= n
		}
		return
	}
	for rem > 0 {
		off := int(p % 8)
		n := min(8-off, rem)
		w.buf[p/8] |= byte((v>>(rem-n))&(uint64(1)<<n-1)) << (8 - off - n)
		p += int64(n)
		rem -= n
	}
}
