// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package index

import (
	"encoding/binary"
	"sort"
)

// nullOffset marks an absent child.
const nullOffset int64 = -1

// node is a B-tree node. On disk a node of degree d is
//
//	children [2d]int64, entryCount int32, entries [2d-1]Checkpoint
//
// with unused slots zeroed.
type node struct {
	offset   int64
	entries  []Checkpoint
	children []int64
	dirty    bool
}

func nodeSize(degree int) int64 {
	return int64(2*degree)*8 + 4 + int64(2*degree-1)*checkpointSize
}

func newNode(offset int64, degree int) *node {
	n := &node{
		offset:   offset,
		entries:  make([]Checkpoint, 0, 2*degree-1),
		children: make([]int64, 2*degree),
		dirty:    true,
	}
	for i := range n.children {
		n.children[i] = nullOffset
	}
	return n
}

func (n *node) isLeaf() bool { return n.children[0] == nullOffset }

// search returns the index of the first entry not less than cp and
// whether that entry equals cp.
func (n *node) search(cp Checkpoint) (int, bool) {
	i := sort.Search(len(n.entries), func(i int) bool { return n.entries[i].Compare(cp) >= 0 })
	return i, i < len(n.entries) && n.entries[i].Compare(cp) == 0
}

// insertEntry inserts cp at position i.
func (n *node) insertEntry(i int, cp Checkpoint) {
	n.entries = append(n.entries, Checkpoint{})
	copy(n.entries[i+1:], n.entries[i:])
	n.entries[i] = cp
}

// insertChild inserts off at child position i, shifting the rest.
func (n *node) insertChild(i int, off int64) {
	copy(n.children[i+1:], n.children[i:len(n.children)-1])
	n.children[i] = off
}

func (n *node) encode(b []byte) {
	clear(b)
	p := 0
	for _, c := range n.children {
		binary.BigEndian.PutUint64(b[p:], uint64(c))
		p += 8
	}
	binary.BigEndian.PutUint32(b[p:], uint32(len(n.entries)))
	p += 4
	for _, e := range n.entries {
		e.encode(b[p:])
		p += checkpointSize
	}
}

func decodeNode(b []byte, offset int64, degree int) *node {
	n := newNode(offset, degree)
	n.dirty = false
	p := 0
	for i := range n.children {
		n.children[i] = int64(binary.BigEndian.Uint64(b[p:]))
		p += 8
	}
	count := int(binary.BigEndian.Uint32(b[p:]))
	p += 4
	for i := 0; i < count && i < 2*degree-1; i++ {
		n.entries = append(n.entries, decodeCheckpoint(b[p:]))
		p += checkpointSize
	}
	return n
}
