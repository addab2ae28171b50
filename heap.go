// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

// readerLess orders readers by their current event: by time, then
// stream id, then stream file name, then the file's position in the
// trace. The order is total, so merging is deterministic.
func readerLess(a, b *StreamInputReader) bool {
	x, y := &a.cur, &b.cur
	if x.Timestamp != y.Timestamp {
		return x.Timestamp < y.Timestamp
	}
	if x.StreamID != y.StreamID {
		return x.StreamID < y.StreamID
	}
	if a.input.name != b.input.name {
		return a.input.name < b.input.name
	}
	return a.input.pos < b.input.pos
}

// The merge heap holds the stream file readers that have a current
// event, the reader of the next merged event at index 0. Checkpoint
// locations count events with equal times in heap order, so the same
// trace must pop in the same order on every run; readerLess being
// total guarantees that whatever order the files were listed in.

func heapInsert(heap []*StreamInputReader, r *StreamInputReader) []*StreamInputReader {
	// Add the reader to the end of the heap.
	heap = append(heap, r)

	// Sift the new entry up to the right place.
	heapSiftUp(heap, len(heap)-1)
	return heap
}

func heapUpdate(heap []*StreamInputReader, i int) {
	// Try to sift up.
	if heapSiftUp(heap, i) != i {
		return
	}
	// Try to sift down, if sifting up failed.
	heapSiftDown(heap, i)
}

func heapRemove(heap []*StreamInputReader, i int) []*StreamInputReader {
	// Sift index i up to the root, ignoring actual values.
	for i > 0 {
		heap[(i-1)/2], heap[i] = heap[i], heap[(i-1)/2]
		i = (i - 1) / 2
	}
	// Swap the root with the last element, then remove it.
	heap[0], heap[len(heap)-1] = heap[len(heap)-1], heap[0]
	heap[len(heap)-1] = nil
	heap = heap[:len(heap)-1]
	// Sift the root down.
	heapSiftDown(heap, 0)
	return heap
}

func heapSiftUp(heap []*StreamInputReader, i int) int {
	for i > 0 && readerLess(heap[i], heap[(i-1)/2]) {
		heap[(i-1)/2], heap[i] = heap[i], heap[(i-1)/2]
		i = (i - 1) / 2
	}
	return i
}

func heapSiftDown(heap []*StreamInputReader, i int) int {
	for {
		m := min3(heap, i, 2*i+1, 2*i+2)
		if m == i {
			// Heap invariant already applies.
			break
		}
		heap[i], heap[m] = heap[m], heap[i]
		i = m
	}
	return i
}

func min3(heap []*StreamInputReader, i0, i1, i2 int) int {
	m := i0
	if i1 < len(heap) && readerLess(heap[i1], heap[m]) {
		m = i1
	}
	if i2 < len(heap) && readerLess(heap[i2], heap[m]) {
		m = i2
	}
	return m
}
