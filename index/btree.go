// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package index

import (
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

const (
	btreeVersion int32 = 3

	// DefaultDegree is the B-tree degree used when none is configured.
	DefaultDegree = 15

	// DefaultCacheSize is the number of B-tree nodes kept in memory
	// besides the root.
	DefaultCacheSize = 15
)

// Visitor guides a B-tree traversal. Compare is called with entries
// on the search path and returns a negative number if the entry is
// before the target, zero if it is the target (which ends the
// traversal) and a positive number if it is after the target.
type Visitor interface {
	Compare(cp Checkpoint) int
}

// FloorVisitor finds the greatest checkpoint less than or equal to a
// key.
type FloorVisitor struct {
	key   Checkpoint
	found Checkpoint
	ok    bool
	exact bool
}

// NewFloorVisitor returns a visitor searching for key.
func NewFloorVisitor(key Checkpoint) *FloorVisitor {
	return &FloorVisitor{key: key}
}

func (v *FloorVisitor) Compare(cp Checkpoint) int {
	c := cp.Compare(v.key)
	if c <= 0 {
		v.found, v.ok, v.exact = cp, true, c == 0
	}
	return c
}

// Result returns the checkpoint found, whether there is one, and
// whether it equals the key.
func (v *FloorVisitor) Result() (cp Checkpoint, ok, exact bool) {
	return v.found, v.ok, v.exact
}

// BTree is a disk-resident B-tree of checkpoints ordered by time.
//
// Nodes are fixed-size records addressed by file offset. A bounded
// cache of nodes sits in front of the file with the root always
// resident. BTree is safe for concurrent use.
type BTree struct {
	mu sync.Mutex

	file       *checkpointFile
	degree     int
	maxEntries int
	nodeSize   int64
	nodeCount  int64
	size       int
	cache      *nodeCache
	buf        []byte
}

// OpenBTree opens the B-tree file at path, creating it if it does not
// exist or cannot be reused.
func OpenBTree(path string, degree, cacheSize int, log *slog.Logger) (*BTree, error) {
	return openBTree(path, degree, cacheSize, false, log)
}

func openBTree(path string, degree, cacheSize int, readOnly bool, log *slog.Logger) (*BTree, error) {
	if degree < 2 {
		return nil, errors.Newf("btree degree %d is below 2", degree)
	}
	if log == nil {
		log = slog.Default()
	}
	file, err := openCheckpointFile(path, kindBTree, btreeVersion, int32(degree), readOnly, log)
	if err != nil {
		return nil, err
	}
	t := &BTree{
		file:       file,
		degree:     degree,
		maxEntries: 2*degree - 1,
		nodeSize:   nodeSize(degree),
	}
	t.buf = make([]byte, t.nodeSize)
	t.cache = newNodeCache(cacheSize, t.readNode, t.writeNode)

	if file.fromScratch {
		root := newNode(headerSize, degree)
		t.nodeCount = 1
		file.hdr.rootOffset = root.offset
		return t, t.cache.setRoot(root)
	}
	t.nodeCount = (file.hdr.timeRangeOffset - headerSize) / t.nodeSize
	t.size = int(file.hdr.size)
	root, err := t.readNode(file.hdr.rootOffset)
	if err != nil {
		file.close()
		return nil, err
	}
	return t, t.cache.setRoot(root)
}

func (t *BTree) readNode(off int64) (*node, error) {
	if _, err := t.file.f.ReadAt(t.buf, off); err != nil {
		return nil, errors.Wrapf(err, "reading btree node at offset %d", off)
	}
	return decodeNode(t.buf, off, t.degree), nil
}

func (t *BTree) writeNode(n *node) error {
	n.encode(t.buf)
	if _, err := t.file.f.WriteAt(t.buf, n.offset); err != nil {
		return errors.Wrapf(err, "writing btree node at offset %d", n.offset)
	}
	n.dirty = false
	return nil
}

func (t *BTree) allocateNode() (*node, error) {
	n := newNode(headerSize+t.nodeCount*t.nodeSize, t.degree)
	t.nodeCount++
	return n, t.cache.put(n)
}

// Insert adds a checkpoint. Inserting a checkpoint equal to an
// existing one does nothing.
func (t *BTree) Insert(cp Checkpoint) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.file.modify(); err != nil {
		return err
	}
	root := t.cache.root
	if len(root.entries) == t.maxEntries {
		if _, found := root.search(cp); found {
			return nil
		}
		s, err := t.allocateNode()
		if err != nil {
			return err
		}
		s.children[0] = root.offset
		if err := t.splitChild(s, 0, root); err != nil {
			return err
		}
		if err := t.cache.setRoot(s); err != nil {
			return err
		}
		t.file.hdr.rootOffset = s.offset
		root = s
	}
	inserted, err := t.insertNonFull(root, cp)
	if inserted {
		t.size++
	}
	return err
}

// splitChild splits the full node y, the i'th child of x, moving its
// median entry up into x.
func (t *BTree) splitChild(x *node, i int, y *node) error {
	z, err := t.allocateNode()
	if err != nil {
		return err
	}
	d := t.degree
	z.entries = append(z.entries, y.entries[d:]...)
	if !y.isLeaf() {
		copy(z.children, y.children[d:])
		for j := d; j < 2*d; j++ {
			y.children[j] = nullOffset
		}
	}
	median := y.entries[d-1]
	y.entries = y.entries[:d-1]
	x.insertChild(i+1, z.offset)
	x.insertEntry(i, median)
	x.dirty, y.dirty, z.dirty = true, true, true
	for _, n := range []*node{x, y, z} {
		if err := t.cache.put(n); err != nil {
			return err
		}
	}
	return nil
}

func (t *BTree) insertNonFull(n *node, cp Checkpoint) (bool, error) {
	for {
		i, found := n.search(cp)
		if found {
			return false, nil
		}
		if n.isLeaf() {
			n.insertEntry(i, cp)
			n.dirty = true
			return true, t.cache.put(n)
		}
		child, err := t.cache.get(n.children[i])
		if err != nil {
			return false, err
		}
		if len(child.entries) == t.maxEntries {
			if _, found := child.search(cp); found {
				return false, nil
			}
			if err := t.splitChild(n, i, child); err != nil {
				return false, err
			}
			if cp.Compare(n.entries[i]) > 0 {
				if child, err = t.cache.get(n.children[i+1]); err != nil {
					return false, err
				}
			}
		}
		n = child
	}
}

// Accept walks the tree from the root, binary searching each node
// with v and descending until v reports a match or a leaf is
// exhausted.
func (t *BTree) Accept(v Visitor) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.cache.root
	for {
		lower, upper := 0, len(n.entries)-1
		for lower <= upper {
			mid := (lower + upper) / 2
			c := v.Compare(n.entries[mid])
			if c == 0 {
				return nil
			}
			if c > 0 {
				upper = mid - 1
			} else {
				lower = mid + 1
			}
		}
		if n.isLeaf() {
			return nil
		}
		next, err := t.cache.get(n.children[lower])
		if err != nil {
			return err
		}
		n = next
	}
}

// BinarySearch returns the rank of the checkpoint equal to cp, or
// -(insertion rank)-1 if there is none.
func (t *BTree) BinarySearch(cp Checkpoint) (int64, error) {
	v := NewFloorVisitor(cp)
	if err := t.Accept(v); err != nil {
		return 0, err
	}
	found, ok, exact := v.Result()
	if exact {
		return found.Rank, nil
	}
	var ins int64
	if ok {
		ins = found.Rank + 1
	}
	return -ins - 1, nil
}

// Floor returns the last checkpoint at or before time ts.
func (t *BTree) Floor(ts int64) (Checkpoint, bool, error) {
	v := NewFloorVisitor(floorKey(ts))
	if err := t.Accept(v); err != nil {
		return Checkpoint{}, false, err
	}
	cp, ok, _ := v.Result()
	return cp, ok, nil
}

// Size returns the number of checkpoints.
func (t *BTree) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(t.size)
}

// CacheMisses returns the number of node reads that missed the cache.
func (t *BTree) CacheMisses() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.misses
}

// CreatedFromScratch reports whether the file was created, as opposed
// to restored from a complete previous run.
func (t *BTree) CreatedFromScratch() bool { return t.file.fromScratch }

// NbEvents returns the number of events in the indexed trace.
func (t *BTree) NbEvents() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.hdr.nbEvents
}

// SetNbEvents records the number of events in the indexed trace.
func (t *BTree) SetNbEvents(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.file.hdr.nbEvents = n
}

// TimeRange returns the time range of the indexed trace.
func (t *BTree) TimeRange() (start, end int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.start, t.file.end
}

// SetTimeRange records the time range of the indexed trace.
func (t *BTree) SetTimeRange(start, end int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.file.start, t.file.end = start, end
}

// SetIndexComplete writes back all cached nodes and the header and
// marks the file reusable.
func (t *BTree) SetIndexComplete() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file.readOnly {
		return ErrReadOnly
	}
	if err := t.cache.flush(); err != nil {
		return err
	}
	t.file.hdr.size = int32(t.size)
	return t.file.complete(headerSize + t.nodeCount*t.nodeSize)
}

// Close writes back cached nodes and closes the file. An index that
// was not completed is rebuilt when next opened.
func (t *BTree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file.f == nil {
		return nil
	}
	if !t.file.readOnly {
		if err := t.cache.flush(); err != nil {
			t.file.close()
			return err
		}
		t.file.hdr.size = int32(t.size)
		if err := t.file.writeHeader(); err != nil {
			t.file.close()
			return err
		}
	}
	return t.file.close()
}

// Delete closes and removes the file.
func (t *BTree) Delete() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.remove()
}
