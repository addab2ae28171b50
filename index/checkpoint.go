// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package index stores checkpoints that map event ranks and
// timestamps to positions in a trace, so that readers can seek
// without decoding the trace from the start.
//
// Checkpoints are kept twice: in a disk B-tree ordered by time for
// time-based seeks and in a flat array ordered by rank for rank-based
// seeks. Both live in files next to each other and are reused across
// runs once complete.
package index

import (
	"cmp"
	"encoding/binary"
	"fmt"
)

// Location identifies an event in the merged event order: the
// timestamp of the event and the number of events with that same
// timestamp that precede it.
type Location struct {
	Timestamp int64
	Index     int64
}

// Checkpoint associates a trace position with the time and rank of
// the event found there.
type Checkpoint struct {
	Time int64
	Loc  Location
	Rank int64
}

// checkpointSize is the encoded size of a Checkpoint.
const checkpointSize = 32

// Compare orders checkpoints by time, then by location.
func (c Checkpoint) Compare(o Checkpoint) int {
	if r := cmp.Compare(c.Time, o.Time); r != 0 {
		return r
	}
	if r := cmp.Compare(c.Loc.Timestamp, o.Loc.Timestamp); r != 0 {
		return r
	}
	return cmp.Compare(c.Loc.Index, o.Loc.Index)
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("{time %d, loc %d+%d, rank %d}", c.Time, c.Loc.Timestamp, c.Loc.Index, c.Rank)
}

// floorKey returns the smallest checkpoint key at time ts.
func floorKey(ts int64) Checkpoint {
	return Checkpoint{Time: ts, Loc: Location{Timestamp: ts}}
}

func (c Checkpoint) encode(b []byte) {
	binary.BigEndian.PutUint64(b[0:], uint64(c.Loc.Timestamp))
	binary.BigEndian.PutUint64(b[8:], uint64(c.Loc.Index))
	binary.BigEndian.PutUint64(b[16:], uint64(c.Time))
	binary.BigEndian.PutUint64(b[24:], uint64(c.Rank))
}

func decodeCheckpoint(b []byte) Checkpoint {
	return Checkpoint{
		Loc: Location{
			Timestamp: int64(binary.BigEndian.Uint64(b[0:])),
			Index:     int64(binary.BigEndian.Uint64(b[8:])),
		},
		Time: int64(binary.BigEndian.Uint64(b[16:])),
		Rank: int64(binary.BigEndian.Uint64(b[24:])),
	}
}
