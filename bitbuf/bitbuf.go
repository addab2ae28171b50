// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bitbuf provides bit-granular access to CTF packet data.
//
// CTF integers may start at any bit and span any number of bits up
// to 64. Bit numbering follows the byte order of the field being
// read: little-endian fields number bits from the least significant
// bit of the first byte, big-endian fields from the most significant.
package bitbuf

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// ByteOrder is the byte (and bit) order of a field.
type ByteOrder uint8

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

func (o ByteOrder) String() string {
	switch o {
	case BigEndian:
		return "be"
	case LittleEndian:
		return "le"
	}
	return "unknown"
}

func (o ByteOrder) binary() binary.ByteOrder {
	if o == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

var (
	// ErrOutOfBounds is returned when a read would go past the end
	// of the buffer.
	ErrOutOfBounds = errors.New("read past end of buffer")

	// ErrWidth is returned for integer widths outside [1, 64].
	ErrWidth = errors.New("invalid bit width")

	// ErrUnaligned is returned by byte reads at a position that is not
	// a multiple of 8 bits.
	ErrUnaligned = errors.New("byte read at unaligned position")
)

// Buffer is a bit cursor over a byte slice.
type Buffer struct {
	data  []byte
	pos   int64
	order ByteOrder
}

// New returns a Buffer over data positioned at bit 0.
func New(data []byte, order ByteOrder) *Buffer {
	return &Buffer{data: data, order: order}
}

// Reset points the buffer at new data and rewinds it.
func (b *Buffer) Reset(data []byte) {
	b.data = data
	b.pos = 0
}

// Bytes returns the underlying data.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the size of the buffer in bits.
func (b *Buffer) Len() int64 { return int64(len(b.data)) * 8 }

// Position returns the cursor position in bits.
func (b *Buffer) Position() int64 { return b.pos }

// Remaining returns the number of bits between the cursor and the end.
func (b *Buffer) Remaining() int64 { return b.Len() - b.pos }

// SetPosition moves the cursor to an absolute bit position.
func (b *Buffer) SetPosition(pos int64) error {
	if pos < 0 || pos > b.Len() {
		return errors.Wrapf(ErrOutOfBounds, "seek to bit %d of %d", pos, b.Len())
	}
	b.pos = pos
	return nil
}

// ByteOrder returns the default byte order of the buffer.
func (b *Buffer) ByteOrder() ByteOrder { return b.order }

// SetByteOrder changes the default byte order of the buffer.
func (b *Buffer) SetByteOrder(order ByteOrder) { b.order = order }

// Align moves the cursor forward to the next multiple of align bits.
func (b *Buffer) Align(align int64) error {
	if align <= 1 {
		return nil
	}
	pos := (b.pos + align - 1) / align * align
	if pos > b.Len() {
		return errors.Wrapf(ErrOutOfBounds, "align to %d bits at bit %d of %d", align, b.pos, b.Len())
	}
	b.pos = pos
	return nil
}

// Get reads width bits starting at bit pos using the buffer's byte
// order. It does not move the cursor. Signed values are sign-extended
// to 64 bits.
func (b *Buffer) Get(pos int64, width int, signed bool) (uint64, error) {
	return b.get(pos, width, signed, b.order)
}

// Read reads width bits at the cursor using the buffer's byte order
// and advances the cursor.
func (b *Buffer) Read(width int, signed bool) (uint64, error) {
	return b.ReadOrder(width, signed, b.order)
}

// ReadOrder is like Read but uses the given byte order.
func (b *Buffer) ReadOrder(width int, signed bool, order ByteOrder) (uint64, error) {
	v, err := b.get(b.pos, width, signed, order)
	if err != nil {
		return 0, err
	}
	b.pos += int64(width)
	return v, nil
}

func (b *Buffer) get(pos int64, width int, signed bool, order ByteOrder) (uint64, error) {
	if width <= 0 || width > 64 {
		return 0, errors.Wrapf(ErrWidth, "%d bits", width)
	}
	if pos < 0 || pos+int64(width) > b.Len() {
		return 0, errors.Wrapf(ErrOutOfBounds, "reading %d bits at bit %d of %d", width, pos, b.Len())
	}
	var v uint64
	if pos%8 == 0 && (width == 8 || width == 16 || width == 32 || width == 64) {
		// Fast path for byte-aligned, byte-sized integers.
		i := pos / 8
		switch width {
		case 8:
			v = uint64(b.data[i])
		case 16:
			v = uint64(order.binary().Uint16(b.data[i:]))
		case 32:
			v = uint64(order.binary().Uint32(b.data[i:]))
		case 64:
			v = order.binary().Uint64(b.data[i:])
		}
	} else if order == LittleEndian {
		p, rem, shift := pos, width, 0
		for rem > 0 {
			off := int(p % 8)
			n := min(8-off, rem)
			chunk := uint64(b.data[p/8]>>off) & (uint64(1)<<n - 1)
			v |= chunk << shift
			shift += n
			p += int64(n)
			rem -= n
		}
	} else {
		p, rem := pos, width
		for rem > 0 {
			off := int(p % 8)
			n := min(8-off, rem)
			chunk := uint64(b.data[p/8]>>(8-off-n)) & (uint64(1)<<n - 1)
			v = v<<n | chunk
			p += int64(n)
			rem -= n
		}
	}
	if signed && width < 64 && v&(uint64(1)<<(width-1)) != 0 {
		v |= ^uint64(0) << width
	}
	return v, nil
}

// ReadBytes returns the next n bytes and advances the cursor. The
// cursor must be byte-aligned. The returned slice aliases the buffer.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if b.pos%8 != 0 {
		return nil, errors.Wrapf(ErrUnaligned, "bit %d", b.pos)
	}
	if n < 0 || b.pos+int64(n)*8 > b.Len() {
		return nil, errors.Wrapf(ErrOutOfBounds, "reading %d bytes at bit %d of %d", n, b.pos, b.Len())
	}
	i := b.pos / 8
	b.pos += int64(n) * 8
	return b.data[i : i+int64(n)], nil
}

// ReadCString reads a NUL-terminated string at the cursor and
// advances past the terminator.
func (b *Buffer) ReadCString() (string, error) {
	if b.pos%8 != 0 {
		return "", errors.Wrapf(ErrUnaligned, "bit %d", b.pos)
	}
	start := b.pos / 8
	for i := start; i < int64(len(b.data)); i++ {
		if b.data[i] == 0 {
			b.pos = (i + 1) * 8
			return string(b.data[start:i]), nil
		}
	}
	return "", errors.Wrapf(ErrOutOfBounds, "unterminated string at bit %d", b.pos)
}
