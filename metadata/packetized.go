// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metadata

import (
	"encoding/binary"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	packetMagic      = 0x75d11d57
	packetHeaderSize = 37
)

// ReadFile reads and parses a metadata file, plain text or packetized.
func ReadFile(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read reads and parses metadata from r, plain text or packetized.
func Read(r io.Reader) (*Trace, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text, err := Text(data)
	if err != nil {
		return nil, err
	}
	return Parse(text)
}

// Text returns the TSDL text of a metadata file, extracting it from
// metadata packets if the file is packetized.
func Text(data []byte) (string, error) {
	if len(data) < 4 {
		return string(data), nil
	}
	if binary.LittleEndian.Uint32(data) != packetMagic && binary.BigEndian.Uint32(data) != packetMagic {
		return string(data), nil
	}
	var sb strings.Builder
	for off := 0; off < len(data); {
		if len(data)-off < packetHeaderSize {
			return "", errors.Newf("metadata packet at offset %d: truncated header", off)
		}
		hdr := data[off:]
		var order binary.ByteOrder
		switch {
		case binary.LittleEndian.Uint32(hdr) == packetMagic:
			order = binary.LittleEndian
		case binary.BigEndian.Uint32(hdr) == packetMagic:
			order = binary.BigEndian
		default:
			return "", errors.Newf("metadata packet at offset %d: bad magic %#x", off, binary.BigEndian.Uint32(hdr))
		}
		contentSize := int(order.Uint32(hdr[24:])) / 8
		packetSize := int(order.Uint32(hdr[28:])) / 8
		compression, encryption, checksum := hdr[32], hdr[33], hdr[34]
		if compression != 0 || encryption != 0 || checksum != 0 {
			return "", errors.Newf("metadata packet at offset %d: compression, encryption and checksums are not supported", off)
		}
		if contentSize < packetHeaderSize || contentSize > packetSize || off+packetSize > len(data) {
			return "", errors.Newf("metadata packet at offset %d: content size %d, packet size %d, %d bytes left", off, contentSize, packetSize, len(data)-off)
		}
		sb.Write(data[off+packetHeaderSize : off+contentSize])
		off += packetSize
	}
	return sb.String(), nil
}
