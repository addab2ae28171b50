// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package index

import (
	"container/list"

	"github.com/goctf/ctf/internal/metrics"
)

// nodeCache keeps recently used B-tree nodes in memory. The root is
// held outside the LRU list and is never evicted. Dirty nodes are
// written back when evicted or flushed.
type nodeCache struct {
	capacity int
	root     *node
	list     *list.List
	nodes    map[int64]*list.Element

	load  func(off int64) (*node, error)
	store func(n *node) error

	hits, misses int64
}

func newNodeCache(capacity int, load func(int64) (*node, error), store func(*node) error) *nodeCache {
	return &nodeCache{
		capacity: max(capacity, 3),
		list:     list.New(),
		nodes:    make(map[int64]*list.Element),
		load:     load,
		store:    store,
	}
}

// get returns the node at off, reading it from disk on a miss.
func (c *nodeCache) get(off int64) (*node, error) {
	if c.root != nil && c.root.offset == off {
		c.hits++
		metrics.NodeCacheHits.Inc()
		return c.root, nil
	}
	if elem, ok := c.nodes[off]; ok {
		c.list.MoveToFront(elem)
		c.hits++
		metrics.NodeCacheHits.Inc()
		return elem.Value.(*node), nil
	}
	c.misses++
	metrics.NodeCacheMisses.Inc()
	n, err := c.load(off)
	if err != nil {
		return nil, err
	}
	return n, c.put(n)
}

// put inserts n, or refreshes it if already cached. Callers put a
// node again after modifying it so that the change survives even if
// the node was evicted while they held it.
func (c *nodeCache) put(n *node) error {
	if n == c.root {
		return nil
	}
	if elem, ok := c.nodes[n.offset]; ok {
		elem.Value = n
		c.list.MoveToFront(elem)
		return nil
	}
	c.nodes[n.offset] = c.list.PushFront(n)
	for c.list.Len() > c.capacity {
		if err := c.removeOldest(); err != nil {
			return err
		}
	}
	return nil
}

func (c *nodeCache) removeOldest() error {
	oldest := c.list.Back()
	n := oldest.Value.(*node)
	if n.dirty {
		if err := c.store(n); err != nil {
			return err
		}
	}
	c.list.Remove(oldest)
	delete(c.nodes, n.offset)
	return nil
}

// setRoot pins n as the root. The previous root becomes an ordinary
// cached node.
func (c *nodeCache) setRoot(n *node) error {
	if elem, ok := c.nodes[n.offset]; ok {
		c.list.Remove(elem)
		delete(c.nodes, n.offset)
	}
	old := c.root
	c.root = n
	if old != nil && old != n {
		return c.put(old)
	}
	return nil
}

// flush writes back every dirty node, the root included.
func (c *nodeCache) flush() error {
	if c.root != nil && c.root.dirty {
		if err := c.store(c.root); err != nil {
			return err
		}
	}
	for elem := c.list.Front(); elem != nil; elem = elem.Next() {
		if n := elem.Value.(*node); n.dirty {
			if err := c.store(n); err != nil {
				return err
			}
		}
	}
	return nil
}
