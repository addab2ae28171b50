// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package index

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
)

// MemoryIndex is an Index held entirely in memory. It is used when
// the index files cannot be created, and is never reused across runs.
type MemoryIndex struct {
	mu       sync.Mutex
	tree     *btree.BTreeG[Checkpoint]
	byRank   []Checkpoint
	nbEvents int64
	start    int64
	end      int64
	complete bool
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		tree: btree.NewG(DefaultDegree, func(a, b Checkpoint) bool { return a.Compare(b) < 0 }),
	}
}

func (m *MemoryIndex) Insert(cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tree.Has(cp) {
		return nil
	}
	if n := len(m.byRank); n > 0 && cp.Compare(m.byRank[n-1]) < 0 {
		return errors.Newf("checkpoint %v inserted after %v", cp, m.byRank[n-1])
	}
	cp.Rank = int64(len(m.byRank))
	m.tree.ReplaceOrInsert(cp)
	m.byRank = append(m.byRank, cp)
	m.complete = false
	return nil
}

func (m *MemoryIndex) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.byRank))
}

func (m *MemoryIndex) Get(rank int64) (Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rank < 0 || rank >= int64(len(m.byRank)) {
		return Checkpoint{}, errors.Newf("checkpoint rank %d out of range [0, %d)", rank, len(m.byRank))
	}
	return m.byRank[rank], nil
}

func (m *MemoryIndex) Floor(ts int64) (Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		found Checkpoint
		ok    bool
	)
	m.tree.DescendLessOrEqual(floorKey(ts), func(cp Checkpoint) bool {
		found, ok = cp, true
		return false
	})
	return found, ok, nil
}

// CreatedFromScratch reports whether the index still has to be built.
func (m *MemoryIndex) CreatedFromScratch() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.complete
}

func (m *MemoryIndex) NbEvents() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nbEvents
}

func (m *MemoryIndex) SetNbEvents(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nbEvents = n
}

func (m *MemoryIndex) TimeRange() (start, end int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.start, m.end
}

func (m *MemoryIndex) SetTimeRange(start, end int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.start, m.end = start, end
}

func (m *MemoryIndex) SetIndexComplete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.complete = true
	return nil
}

func (m *MemoryIndex) Close() error { return nil }
