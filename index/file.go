// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package index

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/goctf/ctf/internal/metrics"
	"golang.org/x/exp/slog"
)

// headerSize is the size of the header at the start of every index
// file. Unused bytes are zero.
const headerSize = 64

var (
	// ErrVersionMismatch is returned when an index file was written
	// with a different layout.
	ErrVersionMismatch = errors.New("index version mismatch")

	// ErrIncomplete is returned when an index file was never finished.
	ErrIncomplete = errors.New("index incomplete")
)

type fileKind uint8

const (
	kindBTree fileKind = iota
	kindFlatArray
)

func (k fileKind) String() string {
	if k == kindBTree {
		return "btree"
	}
	return "flatarray"
}

// header is the on-disk header shared by both index files. Fields are
// big-endian. The B-tree header is
//
//	version int32, size int32, rootOffset int64, nbEvents int64,
//	timeRangeOffset int64, degree int32
//
// and the flat array header is
//
//	version int32, size int32, nbEvents int64, timeRangeOffset int64,
//	interval int32
//
// The degree and interval are the layout parameter of each file: a
// file written with a different one is rebuilt. A zero
// timeRangeOffset marks a file that was not completed.
type header struct {
	version         int32
	size            int32
	rootOffset      int64
	nbEvents        int64
	timeRangeOffset int64
	param           int32
}

func (h *header) encode(kind fileKind) []byte {
	b := make([]byte, headerSize)
	binary.BigEndian.PutUint32(b[0:], uint32(h.version))
	binary.BigEndian.PutUint32(b[4:], uint32(h.size))
	if kind == kindBTree {
		binary.BigEndian.PutUint64(b[8:], uint64(h.rootOffset))
		binary.BigEndian.PutUint64(b[16:], uint64(h.nbEvents))
		binary.BigEndian.PutUint64(b[24:], uint64(h.timeRangeOffset))
		binary.BigEndian.PutUint32(b[32:], uint32(h.param))
	} else {
		binary.BigEndian.PutUint64(b[8:], uint64(h.nbEvents))
		binary.BigEndian.PutUint64(b[16:], uint64(h.timeRangeOffset))
		binary.BigEndian.PutUint32(b[24:], uint32(h.param))
	}
	return b
}

func decodeHeader(b []byte, kind fileKind) header {
	h := header{
		version: int32(binary.BigEndian.Uint32(b[0:])),
		size:    int32(binary.BigEndian.Uint32(b[4:])),
	}
	if kind == kindBTree {
		h.rootOffset = int64(binary.BigEndian.Uint64(b[8:]))
		h.nbEvents = int64(binary.BigEndian.Uint64(b[16:]))
		h.timeRangeOffset = int64(binary.BigEndian.Uint64(b[24:]))
		h.param = int32(binary.BigEndian.Uint32(b[32:]))
	} else {
		h.nbEvents = int64(binary.BigEndian.Uint64(b[8:]))
		h.timeRangeOffset = int64(binary.BigEndian.Uint64(b[16:]))
		h.param = int32(binary.BigEndian.Uint32(b[24:]))
	}
	return h
}

// checkpointFile is the file handling common to the B-tree and the
// flat array: header maintenance, the completion marker and the
// trailing time range.
type checkpointFile struct {
	path     string
	kind     fileKind
	f        *os.File
	hdr      header
	readOnly bool

	fromScratch bool
	start, end  int64
}

// openCheckpointFile opens an existing complete index file or creates
// a new one. An existing file with the wrong version or layout parameter, or
// one that was never completed, is deleted and recreated. A read-only
// file must exist and be complete.
func openCheckpointFile(path string, kind fileKind, version, param int32, readOnly bool, log *slog.Logger) (*checkpointFile, error) {
	c := &checkpointFile{path: path, kind: kind, readOnly: readOnly}
	err := c.open(version, param)
	if err == nil {
		return c, nil
	}
	if readOnly {
		return nil, err
	}
	if !errors.Is(err, os.ErrNotExist) {
		log.Info("rebuilding index file", "path", path, "reason", err)
		metrics.IndexRebuilds.WithLabelValues(kind.String()).Inc()
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrap(err, "removing stale index")
		}
	}
	if err := c.create(version, param); err != nil {
		return nil, err
	}
	return c, nil
}

// checkComplete reports whether path holds a complete index file of
// the given version, without modifying it.
func checkComplete(path string, kind fileKind, version, param int32) error {
	c := &checkpointFile{path: path, kind: kind, readOnly: true}
	if err := c.open(version, param); err != nil {
		return err
	}
	return c.close()
}

func (c *checkpointFile) open(version, param int32) error {
	flag := os.O_RDWR
	if c.readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(c.path, flag, 0)
	if err != nil {
		return err
	}
	b := make([]byte, headerSize)
	if _, err := f.ReadAt(b, 0); err != nil {
		f.Close()
		if err == io.EOF {
			return errors.Wrap(ErrIncomplete, "short header")
		}
		return err
	}
	h := decodeHeader(b, c.kind)
	switch {
	case h.version != version:
		err = errors.Wrapf(ErrVersionMismatch, "file version %d, want %d", h.version, version)
	case h.param != param:
		err = errors.Wrapf(ErrVersionMismatch, "file %s parameter %d, want %d", c.kind, h.param, param)
	case h.timeRangeOffset == 0:
		err = ErrIncomplete
	}
	if err == nil {
		var tr [16]byte
		if _, err = f.ReadAt(tr[:], h.timeRangeOffset); err == nil {
			c.start = int64(binary.BigEndian.Uint64(tr[0:]))
			c.end = int64(binary.BigEndian.Uint64(tr[8:]))
		} else {
			err = errors.Wrap(ErrIncomplete, "missing time range")
		}
	}
	if err != nil {
		f.Close()
		return err
	}
	c.f, c.hdr = f, h
	return nil
}

func (c *checkpointFile) create(version, param int32) error {
	f, err := os.OpenFile(c.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	c.f = f
	c.hdr = header{version: version, param: param}
	c.fromScratch = true
	return c.writeHeader()
}

func (c *checkpointFile) writeHeader() error {
	_, err := c.f.WriteAt(c.hdr.encode(c.kind), 0)
	return err
}

// complete writes the time range at off and marks the file complete.
func (c *checkpointFile) complete(off int64) error {
	var tr [16]byte
	binary.BigEndian.PutUint64(tr[0:], uint64(c.start))
	binary.BigEndian.PutUint64(tr[8:], uint64(c.end))
	if _, err := c.f.WriteAt(tr[:], off); err != nil {
		return err
	}
	c.hdr.timeRangeOffset = off
	if err := c.writeHeader(); err != nil {
		return err
	}
	return c.f.Sync()
}

// ErrReadOnly is returned when modifying an index opened without the
// index lock.
var ErrReadOnly = errors.New("index is read-only")

// modify prepares the file for writes. A complete file goes back to
// being incomplete until complete is called again.
func (c *checkpointFile) modify() error {
	if c.readOnly {
		return ErrReadOnly
	}
	if c.hdr.timeRangeOffset == 0 {
		return nil
	}
	c.hdr.timeRangeOffset = 0
	return c.writeHeader()
}

func (c *checkpointFile) close() error {
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}

// remove closes and deletes the file.
func (c *checkpointFile) remove() error {
	if err := c.close(); err != nil {
		return err
	}
	return os.Remove(c.path)
}
