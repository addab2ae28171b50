// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"io"
	"sort"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/goctf/ctf/index"
	"github.com/goctf/ctf/internal/ctftest"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// next reads up to n events from c.
func next(t *testing.T, c *Context, n int) []eventKey {
	t.Helper()
	var evs []eventKey
	for len(evs) < n {
		ev, err := c.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		evs = append(evs, keyOf(&ev))
	}
	return evs
}

// checkSeeks compares every seek by time and by rank on tr against
// the full event list.
func checkSeeks(t *testing.T, tr *Trace, all []eventKey, ranked bool) {
	t.Helper()
	const window = 7
	last := all[len(all)-1].Timestamp
	for ts := all[0].Timestamp - 1; ts <= last+1; ts++ {
		i := sort.Search(len(all), func(i int) bool { return all[i].Timestamp >= ts })
		c, err := tr.Seek(ts)
		if err != nil {
			t.Fatalf("Seek(%d): %v", ts, err)
		}
		wantRank := int64(i)
		if !ranked {
			wantRank = -1
		}
		if c.Rank() != wantRank {
			t.Errorf("Seek(%d): Rank = %d, want %d", ts, c.Rank(), wantRank)
		}
		want := all[i:min(i+window, len(all))]
		if diff := cmp.Diff(want, next(t, c, window), cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("events after Seek(%d) mismatch (-want +got):\n%s", ts, diff)
		}
	}
	if !ranked {
		return
	}
	for rank := int64(0); rank <= int64(len(all)); rank++ {
		c, err := tr.SeekRank(rank)
		if err != nil {
			t.Fatalf("SeekRank(%d): %v", rank, err)
		}
		if c.Rank() != rank {
			t.Errorf("SeekRank(%d): Rank = %d", rank, c.Rank())
		}
		got := next(t, c, 2)
		want := all[rank:min(rank+2, int64(len(all)))]
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("events after SeekRank(%d) mismatch (-want +got):\n%s", rank, diff)
		}
	}
}

func TestSeekWithoutIndex(t *testing.T) {
	tr := randomTrace(t, 3)
	all := readAll(t, tr.NewReader())
	checkSeeks(t, tr, all, false)

	rank := len(all) / 2
	c, err := tr.SeekRank(int64(rank))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(all[rank:rank+1], next(t, c, 1)); diff != "" {
		t.Errorf("SeekRank without index mismatch (-want +got):\n%s", diff)
	}
}

func TestSeekMemoryIndex(t *testing.T) {
	for seed := int64(0); seed < 4; seed++ {
		tr := randomTrace(t, seed)
		all := readAll(t, tr.NewReader())
		idx := index.NewMemoryIndex()
		x := NewIndexer(tr, idx, 3)
		if err := x.Run(); err != nil {
			t.Fatal(err)
		}
		if got := x.Events(); got != int64(len(all)) {
			t.Fatalf("indexed %d events, want %d", got, len(all))
		}
		if x.Progress() != 1 {
			t.Errorf("Progress = %v after Run", x.Progress())
		}
		if got, want := idx.Size(), int64((len(all)+2)/3); got != want {
			t.Errorf("%d checkpoints, want %d", got, want)
		}
		if start, end := idx.TimeRange(); start != all[0].Timestamp || end != all[len(all)-1].Timestamp {
			t.Errorf("TimeRange = [%d, %d], want [%d, %d]", start, end, all[0].Timestamp, all[len(all)-1].Timestamp)
		}
		if tr.Index() != index.Index(idx) {
			t.Fatal("index not attached after Run")
		}
		checkSeeks(t, tr, all, true)
	}
}

func TestSeekTraceIndex(t *testing.T) {
	dir := t.TempDir()
	opts := index.Options{Degree: 3, CacheSize: 4, Interval: 4, Logger: quietLogger()}
	tr := randomTrace(t, 5)
	all := readAll(t, tr.NewReader())

	idx, err := index.Open(dir, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !idx.CreatedFromScratch() {
		t.Fatal("new index not created from scratch")
	}
	if err := BuildIndex(tr, idx, opts.Interval); err != nil {
		t.Fatal(err)
	}
	checkSeeks(t, tr, all, true)
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	// A complete index is reused as is.
	tr = randomTrace(t, 5)
	idx, err = index.Open(dir, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	if idx.CreatedFromScratch() {
		t.Fatal("complete index rebuilt on reopen")
	}
	x := NewIndexer(tr, idx, opts.Interval)
	if err := x.Run(); err != nil {
		t.Fatal(err)
	}
	if got := x.Events(); got != int64(len(all)) {
		t.Errorf("reused index has %d events, want %d", got, len(all))
	}
	start, end, err := tr.TimeRange()
	if err != nil {
		t.Fatal(err)
	}
	if start != all[0].Timestamp || end != all[len(all)-1].Timestamp {
		t.Errorf("TimeRange = [%d, %d], want [%d, %d]", start, end, all[0].Timestamp, all[len(all)-1].Timestamp)
	}
	checkSeeks(t, tr, all, true)
}

func TestSeekTies(t *testing.T) {
	// Many events share a time, so checkpoints land in the middle of
	// runs of equal times.
	l := ctftest.Layout{Streams: 2}
	tr := newTrace(t, l, []namedStream{
		{"a", l.Stream(0, ctftest.Packet{Events: ctftest.Ticks(1, 1, 1, 1, 2, 2, 2)}, ctftest.Packet{Events: ctftest.Ticks(2, 2, 3)})},
		{"b", l.Stream(1, ctftest.Packet{Events: ctftest.Ticks(1, 1, 2, 2, 2, 3, 3)})},
	})
	all := readAll(t, tr.NewReader())
	if err := BuildIndex(tr, index.NewMemoryIndex(), 2); err != nil {
		t.Fatal(err)
	}
	checkSeeks(t, tr, all, true)
}

func TestContextEOF(t *testing.T) {
	l := ctftest.Layout{}
	tr := newTrace(t, l, []namedStream{{"s", l.Stream(0, ctftest.Packet{Events: ctftest.Ticks(1, 2)})}})
	c, err := tr.Seek(2)
	if err != nil {
		t.Fatal(err)
	}
	if ev, err := c.Next(); err != nil || ev.Timestamp != 2 {
		t.Fatalf("Next = %v, %v; want the event at 2", ev.Timestamp, err)
	}
	for i := 0; i < 2; i++ {
		if _, err := c.Next(); err != io.EOF {
			t.Fatalf("Next past the end = %v, want io.EOF", err)
		}
	}
	if _, err := tr.SeekRank(-1); err == nil {
		t.Error("SeekRank(-1) succeeded")
	}
}

func TestContextDecodeError(t *testing.T) {
	l := ctftest.Layout{Streams: 2}
	tr := newTrace(t, l, []namedStream{
		{"a", l.Stream(0, ctftest.Packet{Events: ctftest.Ticks(10, 20, 30)})},
		{"b", l.Stream(1, ctftest.Packet{Events: []ctftest.Event{
			{ID: ctftest.TickID, Time: 15, Msg: "ok"},
			{ID: 5, Time: 25},
		}})},
	})
	c, err := tr.SeekRank(0)
	if err != nil {
		t.Fatal(err)
	}
	var got []int64
	for _, want := range []int64{10, 15} {
		ev, err := c.Next()
		if err != nil || ev.Timestamp != want {
			t.Fatalf("Next = %d, %v; want the event at %d", ev.Timestamp, err, want)
		}
	}
	if _, err := c.Next(); !errors.Is(err, ErrDecode) {
		t.Fatalf("Next = %v, want ErrDecode", err)
	}
	if c.Rank() != -1 {
		t.Errorf("Rank after a decode error = %d, want -1", c.Rank())
	}
	for {
		ev, err := c.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, ev.Timestamp)
	}
	if diff := cmp.Diff([]int64{20, 30}, got); diff != "" {
		t.Errorf("events after the error mismatch (-want +got):\n%s", diff)
	}
}
