// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package index

import (
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

const flatArrayVersion int32 = 2

// FlatArray is an append-only file of checkpoints addressed by rank.
// Checkpoints must be appended in increasing order. FlatArray is safe
// for concurrent use.
type FlatArray struct {
	mu   sync.Mutex
	file *checkpointFile
	size int64
	buf  [checkpointSize]byte
}

// OpenFlatArray opens the flat array file at path, creating it if it
// does not exist or cannot be reused. interval is the number of events
// between checkpoints; a file written with another interval is
// rebuilt.
func OpenFlatArray(path string, interval int, log *slog.Logger) (*FlatArray, error) {
	return openFlatArray(path, interval, false, log)
}

func openFlatArray(path string, interval int, readOnly bool, log *slog.Logger) (*FlatArray, error) {
	if log == nil {
		log = slog.Default()
	}
	file, err := openCheckpointFile(path, kindFlatArray, flatArrayVersion, int32(interval), readOnly, log)
	if err != nil {
		return nil, err
	}
	return &FlatArray{file: file, size: int64(file.hdr.size)}, nil
}

func recordOffset(rank int64) int64 { return headerSize + rank*checkpointSize }

// Insert appends cp. Its Rank is set to its position in the array.
func (a *FlatArray) Insert(cp Checkpoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.file.modify(); err != nil {
		return err
	}
	if a.size > 0 {
		last, err := a.get(a.size - 1)
		if err != nil {
			return err
		}
		if c := cp.Compare(last); c == 0 {
			return nil
		} else if c < 0 {
			return errors.Newf("checkpoint %v inserted after %v", cp, last)
		}
	}
	cp.Rank = a.size
	cp.encode(a.buf[:])
	if _, err := a.file.f.WriteAt(a.buf[:], recordOffset(a.size)); err != nil {
		return errors.Wrap(err, "appending checkpoint")
	}
	a.size++
	return nil
}

// Get returns the checkpoint of the given rank.
func (a *FlatArray) Get(rank int64) (Checkpoint, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.get(rank)
}

func (a *FlatArray) get(rank int64) (Checkpoint, error) {
	if rank < 0 || rank >= a.size {
		return Checkpoint{}, errors.Newf("checkpoint rank %d out of range [0, %d)", rank, a.size)
	}
	if _, err := a.file.f.ReadAt(a.buf[:], recordOffset(rank)); err != nil {
		return Checkpoint{}, errors.Wrapf(err, "reading checkpoint %d", rank)
	}
	return decodeCheckpoint(a.buf[:]), nil
}

// BinarySearch returns the rank of the checkpoint equal to cp, or
// -(insertion point)-1 if there is none.
func (a *FlatArray) BinarySearch(cp Checkpoint) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	lo, hi := int64(0), a.size-1
	for lo <= hi {
		mid := int64(uint64(lo+hi) >> 1)
		e, err := a.get(mid)
		if err != nil {
			return 0, err
		}
		switch c := e.Compare(cp); {
		case c < 0:
			lo = mid + 1
		case c > 0:
			hi = mid - 1
		default:
			return mid, nil
		}
	}
	return -(lo + 1), nil
}

// Floor returns the last checkpoint at or before time ts.
func (a *FlatArray) Floor(ts int64) (Checkpoint, bool, error) {
	r, err := a.BinarySearch(floorKey(ts))
	if err != nil {
		return Checkpoint{}, false, err
	}
	if r < 0 {
		r = -r - 2
	}
	if r < 0 {
		return Checkpoint{}, false, nil
	}
	cp, err := a.Get(r)
	return cp, err == nil, err
}

// Size returns the number of checkpoints.
func (a *FlatArray) Size() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

// CreatedFromScratch reports whether the file was created, as opposed
// to restored from a complete previous run.
func (a *FlatArray) CreatedFromScratch() bool { return a.file.fromScratch }

// NbEvents returns the number of events in the indexed trace.
func (a *FlatArray) NbEvents() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.hdr.nbEvents
}

// SetNbEvents records the number of events in the indexed trace.
func (a *FlatArray) SetNbEvents(n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.file.hdr.nbEvents = n
}

// TimeRange returns the time range of the indexed trace.
func (a *FlatArray) TimeRange() (start, end int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.start, a.file.end
}

// SetTimeRange records the time range of the indexed trace.
func (a *FlatArray) SetTimeRange(start, end int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.file.start, a.file.end = start, end
}

// SetIndexComplete writes the header and marks the file reusable.
func (a *FlatArray) SetIndexComplete() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file.readOnly {
		return ErrReadOnly
	}
	a.file.hdr.size = int32(a.size)
	return a.file.complete(recordOffset(a.size))
}

// Close closes the file. An index that was not completed is rebuilt
// when next opened.
func (a *FlatArray) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file.f == nil {
		return nil
	}
	if !a.file.readOnly {
		a.file.hdr.size = int32(a.size)
		if err := a.file.writeHeader(); err != nil {
			a.file.close()
			return err
		}
	}
	return a.file.close()
}

// Delete closes and removes the file.
func (a *FlatArray) Delete() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.remove()
}
