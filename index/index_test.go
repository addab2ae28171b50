// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package index

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/exp/slog"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func checkpointAt(i int) Checkpoint {
	ts := int64(i) * 10
	return Checkpoint{Time: ts, Loc: Location{Timestamp: ts}, Rank: int64(i)}
}

func TestBTreeRandomInsert(t *testing.T) {
	const n = 2000
	path := filepath.Join(t.TempDir(), btreeFile)
	tree, err := OpenBTree(path, 3, 3, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if !tree.CreatedFromScratch() {
		t.Fatal("new tree not created from scratch")
	}
	r := rand.New(rand.NewSource(1))
	for _, i := range r.Perm(n) {
		if err := tree.Insert(checkpointAt(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	// Duplicates are ignored.
	for i := 0; i < n; i += 97 {
		if err := tree.Insert(checkpointAt(i)); err != nil {
			t.Fatal(err)
		}
	}
	if got := tree.Size(); got != n {
		t.Fatalf("Size = %d, want %d", got, n)
	}
	checkTree(t, tree, n)
	if tree.CacheMisses() == 0 {
		t.Errorf("no cache misses with a 3-node cache")
	}

	tree.SetNbEvents(n * 1000)
	tree.SetTimeRange(0, (n-1)*10)
	if err := tree.SetIndexComplete(); err != nil {
		t.Fatal(err)
	}
	if err := tree.Close(); err != nil {
		t.Fatal(err)
	}

	tree, err = OpenBTree(path, 3, 3, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()
	if tree.CreatedFromScratch() {
		t.Fatal("complete tree rebuilt on reopen")
	}
	if got := tree.NbEvents(); got != n*1000 {
		t.Errorf("NbEvents = %d, want %d", got, n*1000)
	}
	if start, end := tree.TimeRange(); start != 0 || end != (n-1)*10 {
		t.Errorf("TimeRange = [%d, %d], want [0, %d]", start, end, (n-1)*10)
	}
	checkTree(t, tree, n)
}

func checkTree(t *testing.T, tree *BTree, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		want := checkpointAt(i)
		v := NewFloorVisitor(want)
		if err := tree.Accept(v); err != nil {
			t.Fatal(err)
		}
		got, ok, exact := v.Result()
		if !ok || !exact || got != want {
			t.Fatalf("Accept(%v) = %v, %v, %v; want exact match", want, got, ok, exact)
		}

		// Between i and i+1 the floor is i.
		cp, ok, err := tree.Floor(want.Time + 5)
		if err != nil {
			t.Fatal(err)
		}
		if !ok || cp != want {
			t.Fatalf("Floor(%d) = %v, %v; want %v", want.Time+5, cp, ok, want)
		}
		between := Checkpoint{Time: want.Time + 5, Loc: Location{Timestamp: want.Time + 5}}
		if r, err := tree.BinarySearch(between); err != nil || r != -int64(i+1)-1 {
			t.Fatalf("BinarySearch(%v) = %d, %v; want %d", between, r, err, -int64(i+1)-1)
		}
	}
	if _, ok, _ := tree.Floor(-5); ok {
		t.Errorf("Floor before first checkpoint found one")
	}
	if r, _ := tree.BinarySearch(checkpointAt(-1)); r != -1 {
		t.Errorf("BinarySearch before first = %d, want -1", r)
	}
}

func TestBTreeRebuild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, btreeFile)

	build := func(t *testing.T, degree int) {
		t.Helper()
		tree, err := OpenBTree(path, degree, DefaultCacheSize, quietLogger())
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 50; i++ {
			if err := tree.Insert(checkpointAt(i)); err != nil {
				t.Fatal(err)
			}
		}
		if err := tree.SetIndexComplete(); err != nil {
			t.Fatal(err)
		}
		if err := tree.Close(); err != nil {
			t.Fatal(err)
		}
	}
	reopen := func(t *testing.T, degree int) *BTree {
		t.Helper()
		tree, err := OpenBTree(path, degree, DefaultCacheSize, quietLogger())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { tree.Close() })
		return tree
	}

	t.Run("degree", func(t *testing.T) {
		build(t, 4)
		if tree := reopen(t, 5); !tree.CreatedFromScratch() || tree.Size() != 0 {
			t.Errorf("tree with another degree reused")
		}
	})
	t.Run("version", func(t *testing.T) {
		build(t, 4)
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.WriteAt([]byte{0, 0, 0, 99}, 0); err != nil {
			t.Fatal(err)
		}
		f.Close()
		if err := checkComplete(path, kindBTree, btreeVersion, 4); !errors.Is(err, ErrVersionMismatch) {
			t.Errorf("checkComplete = %v, want ErrVersionMismatch", err)
		}
		if tree := reopen(t, 4); !tree.CreatedFromScratch() {
			t.Errorf("tree with another version reused")
		}
	})
	t.Run("incomplete", func(t *testing.T) {
		tree, err := OpenBTree(path, 4, DefaultCacheSize, quietLogger())
		if err != nil {
			t.Fatal(err)
		}
		tree.Insert(checkpointAt(1))
		tree.Close()
		if tree := reopen(t, 4); !tree.CreatedFromScratch() {
			t.Errorf("incomplete tree reused")
		}
	})
}

func TestFlatArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), flatArrayFile)
	a, err := OpenFlatArray(path, 10, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	const n = 300
	for i := 0; i < n; i++ {
		cp := checkpointAt(i)
		cp.Rank = 12345 // reassigned by the array
		if err := a.Insert(cp); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Insert(checkpointAt(3)); err == nil {
		t.Errorf("out-of-order insert accepted")
	}
	for i := 0; i < n; i++ {
		want := checkpointAt(i)
		if r, err := a.BinarySearch(want); err != nil || r != int64(i) {
			t.Fatalf("BinarySearch(%v) = %d, %v; want %d", want, r, err, i)
		}
		got, err := a.Get(int64(i))
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("Get(%d) mismatch (-want +got):\n%s", i, diff)
		}
		missing := Checkpoint{Time: want.Time + 1, Loc: Location{Timestamp: want.Time + 1}}
		if r, _ := a.BinarySearch(missing); r != -int64(i+1)-1 {
			t.Fatalf("BinarySearch(%v) = %d, want %d", missing, r, -int64(i+1)-1)
		}
	}
	if r, _ := a.BinarySearch(checkpointAt(-1)); r != -1 {
		t.Errorf("BinarySearch before first = %d, want -1", r)
	}
	if _, err := a.Get(n); err == nil {
		t.Errorf("Get past end succeeded")
	}
	if cp, ok, _ := a.Floor(55); !ok || cp.Rank != 5 {
		t.Errorf("Floor(55) = %v, %v; want rank 5", cp, ok)
	}
	if err := a.SetIndexComplete(); err != nil {
		t.Fatal(err)
	}
	a.Close()

	a, err = OpenFlatArray(path, 10, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if a.CreatedFromScratch() || a.Size() != n {
		t.Errorf("reopened array: fromScratch=%v size=%d, want false, %d", a.CreatedFromScratch(), a.Size(), n)
	}
	a.Close()

	a, err = OpenFlatArray(path, 20, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if !a.CreatedFromScratch() {
		t.Errorf("array with another interval reused")
	}
}

func TestMemoryIndex(t *testing.T) {
	m := NewMemoryIndex()
	for i := 0; i < 100; i++ {
		if err := m.Insert(checkpointAt(i)); err != nil {
			t.Fatal(err)
		}
	}
	m.Insert(checkpointAt(50))
	if m.Size() != 100 {
		t.Errorf("Size = %d, want 100", m.Size())
	}
	if cp, ok, _ := m.Floor(505); !ok || cp != checkpointAt(50) {
		t.Errorf("Floor(505) = %v, %v", cp, ok)
	}
	if cp, err := m.Get(7); err != nil || cp != checkpointAt(7) {
		t.Errorf("Get(7) = %v, %v", cp, err)
	}
	if !m.CreatedFromScratch() {
		t.Errorf("unbuilt memory index not from scratch")
	}
	m.SetIndexComplete()
	if m.CreatedFromScratch() {
		t.Errorf("complete memory index still from scratch")
	}
}

func TestTraceIndexLock(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Degree: 4, Interval: 10, Logger: quietLogger()}
	x, err := Open(dir, opts)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 40; i++ {
		if err := x.Insert(checkpointAt(i)); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := Open(dir, opts); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Open of incomplete index = %v, want ErrLocked", err)
	}
	if idx := OpenOrMemory(dir, opts); !idx.CreatedFromScratch() {
		t.Errorf("fallback index not from scratch")
	} else if _, ok := idx.(*MemoryIndex); !ok {
		t.Errorf("fallback is %T, want *MemoryIndex", idx)
	}

	x.SetNbEvents(400)
	x.SetTimeRange(0, 390)
	if err := x.SetIndexComplete(); err != nil {
		t.Fatal(err)
	}

	ro, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("read-only Open: %v", err)
	}
	if ro.CreatedFromScratch() {
		t.Errorf("read-only index not restored")
	}
	if cp, ok, err := ro.Floor(255); err != nil || !ok || cp.Rank != 25 {
		t.Errorf("Floor(255) = %v, %v, %v; want rank 25", cp, ok, err)
	}
	if err := ro.Insert(checkpointAt(100)); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Insert into read-only index = %v, want ErrReadOnly", err)
	}
	if err := ro.Close(); err != nil {
		t.Fatal(err)
	}
	if err := x.Close(); err != nil {
		t.Fatal(err)
	}

	x, err = Open(dir, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer x.Close()
	if x.CreatedFromScratch() || x.Size() != 40 || x.NbEvents() != 400 {
		t.Errorf("reopened index: fromScratch=%v size=%d events=%d", x.CreatedFromScratch(), x.Size(), x.NbEvents())
	}
	if cp, err := x.Get(39); err != nil || cp.Time != 390 {
		t.Errorf("Get(39) = %v, %v", cp, err)
	}
}
