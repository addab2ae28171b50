// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/goctf/ctf/internal/ctftest"
	"github.com/google/go-cmp/cmp"
)

func TestMergeTwoStreams(t *testing.T) {
	l := ctftest.Layout{Streams: 2}
	a := namedStream{"a", l.Stream(0, ctftest.Packet{Events: ctftest.Ticks(10, 20, 30)})}
	b := namedStream{"b", l.Stream(1, ctftest.Packet{Events: ctftest.Ticks(15, 25)})}
	want := []eventKey{
		{Timestamp: 10, Input: "a", Name: "tick", Value: int64(0)},
		{Timestamp: 15, Input: "b", Name: "tick", Value: int64(0)},
		{Timestamp: 20, Input: "a", Name: "tick", Value: int64(1)},
		{Timestamp: 25, Input: "b", Name: "tick", Value: int64(1)},
		{Timestamp: 30, Input: "a", Name: "tick", Value: int64(2)},
	}
	for _, streams := range [][]namedStream{{a, b}, {b, a}} {
		tr := newTrace(t, l, streams)
		r := tr.NewReader()
		if r.State() != Uninitialized || r.Current() != nil {
			t.Fatalf("new reader: state %v, current %v", r.State(), r.Current())
		}
		got := readAll(t, r)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("merge of %s,%s mismatch (-want +got):\n%s", streams[0].name, streams[1].name, diff)
		}
		if r.State() != Exhausted {
			t.Errorf("state after the last event = %v, want %v", r.State(), Exhausted)
		}
		if r.EndTime() != 30 {
			t.Errorf("EndTime = %d, want 30", r.EndTime())
		}
		if p := r.Progress(); p != 1 {
			t.Errorf("Progress = %v at the end, want 1", p)
		}
		if ok, err := r.Advance(); ok || err != nil {
			t.Errorf("Advance when exhausted = %v, %v", ok, err)
		}
	}
}

func TestMergeTieBreak(t *testing.T) {
	l := ctftest.Layout{Streams: 2}
	// Equal times order by stream id, then by file name.
	streams := []namedStream{
		{"z", l.Stream(0, ctftest.Packet{Events: ctftest.Ticks(5, 5)})},
		{"y", l.Stream(1, ctftest.Packet{Events: ctftest.Ticks(5)})},
		{"x", l.Stream(1, ctftest.Packet{Events: ctftest.Ticks(5)})},
		{"w", l.Stream(0, ctftest.Packet{Events: ctftest.Ticks(5)})},
	}
	tr := newTrace(t, l, streams)
	var got []string
	for _, ev := range readAll(t, tr.NewReader()) {
		got = append(got, fmt.Sprintf("%s%v", ev.Input, ev.Value))
	}
	want := []string{"w0", "z0", "z1", "x0", "y0"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tie order mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeDecodeError(t *testing.T) {
	l := ctftest.Layout{Streams: 2}
	good := namedStream{"a", l.Stream(0, ctftest.Packet{Events: ctftest.Ticks(10, 20, 30)})}
	for _, tc := range []struct {
		name   string
		events []ctftest.Event
		// before is the number of events read before the error.
		before int
		want   []int64
	}{
		{
			name: "Midway",
			events: []ctftest.Event{
				{ID: ctftest.TickID, Time: 15, Msg: "ok"},
				{ID: 5, Time: 25},
			},
			before: 2,
			want:   []int64{10, 15, 20, 30},
		},
		{
			name:   "FirstEvent",
			events: []ctftest.Event{{ID: 5, Time: 5}},
			before: 0,
			want:   []int64{10, 20, 30},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			bad := namedStream{"b", l.Stream(1, ctftest.Packet{Events: tc.events})}
			tr := newTrace(t, l, []namedStream{good, bad})
			r := tr.NewReader()
			var got []int64
			var errs int
			for {
				ok, err := r.Advance()
				if err != nil {
					errs++
					if !errors.Is(err, ErrDecode) {
						t.Fatalf("Advance = %v, want ErrDecode", err)
					}
					if len(got) != tc.before {
						t.Errorf("error after %d events, want %d", len(got), tc.before)
					}
				}
				if ok != (r.State() == Positioned) || ok != (r.Current() != nil) {
					t.Fatalf("Advance = %v with state %v and current %v", ok, r.State(), r.Current())
				}
				if !ok {
					break
				}
				if in := r.Current().Input; err != nil && in != "a" {
					t.Errorf("positioned on %s after the error in b", in)
				}
				got = append(got, r.Current().Timestamp)
			}
			if errs != 1 {
				t.Errorf("got %d errors, want 1", errs)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("event times mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// randomTrace returns a trace of several stream files, each made of
// packets of ticks at random non-decreasing times, some with lost
// events.
func randomTrace(t *testing.T, seed int64, opts ...Option) *Trace {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	l := ctftest.Layout{Streams: 3, Compact: seed%2 == 0}
	var streams []namedStream
	for s := 0; s < 5; s++ {
		var (
			packets   []ctftest.Packet
			ts        = uint64(r.Intn(50))
			discarded uint32
		)
		for p := 0; p < 1+r.Intn(4); p++ {
			var times []uint64
			for e := 0; e < 1+r.Intn(20); e++ {
				ts += uint64(r.Intn(4))
				times = append(times, ts)
			}
			if r.Intn(3) == 0 {
				discarded += uint32(1 + r.Intn(3))
			}
			packets = append(packets, ctftest.Packet{Events: ctftest.Ticks(times...), Discarded: discarded, CPU: uint32(s)})
			ts += uint64(r.Intn(10))
		}
		id := uint32(s % l.Streams)
		streams = append(streams, namedStream{fmt.Sprintf("chan_%d", s), l.Stream(id, packets...)})
	}
	return newTrace(t, l, streams, opts...)
}

func TestMergeRandom(t *testing.T) {
	for seed := int64(0); seed < 8; seed++ {
		tr := randomTrace(t, seed)
		evs := readAll(t, tr.NewReader())

		perInput := make(map[string][]eventKey)
		for i, ev := range evs {
			if i > 0 && ev.Timestamp < evs[i-1].Timestamp {
				t.Fatalf("seed %d: event %d at %d after %d", seed, i, ev.Timestamp, evs[i-1].Timestamp)
			}
			perInput[ev.Input] = append(perInput[ev.Input], ev)
		}
		// Each file's events come out in file order.
		for _, in := range tr.Inputs() {
			single, err := New(tr.Metadata(), []NamedSource{{Name: in.Name(), Source: in.src}}, WithLogger(quietLogger()))
			if err != nil {
				t.Fatal(err)
			}
			want := readAll(t, single.NewReader())
			single.Close()
			if diff := cmp.Diff(want, perInput[in.Name()]); diff != "" {
				t.Errorf("seed %d: %s events reordered (-want +got):\n%s", seed, in.Name(), diff)
			}
		}
	}
}

func TestTraceReaderSeek(t *testing.T) {
	for seed := int64(0); seed < 4; seed++ {
		tr := randomTrace(t, seed)
		all := readAll(t, tr.NewReader())
		if len(all) == 0 {
			t.Fatalf("seed %d: empty trace", seed)
		}
		last := all[len(all)-1].Timestamp

		r := tr.NewReader()
		for ts := int64(-1); ts <= last+1; ts++ {
			i := sort.Search(len(all), func(i int) bool { return all[i].Timestamp >= ts })
			ok, err := r.Seek(ts)
			if err != nil {
				t.Fatal(err)
			}
			if ok != (i < len(all)) {
				t.Fatalf("seed %d: Seek(%d) = %v with %d events left", seed, ts, ok, len(all)-i)
			}
			if !ok {
				if r.State() != Exhausted {
					t.Errorf("seed %d: state after failed Seek(%d) = %v", seed, ts, r.State())
				}
				continue
			}
			got := []eventKey{keyOf(r.Current())}
			got = append(got, readAll(t, r)...)
			if diff := cmp.Diff(all[i:], got); diff != "" {
				t.Fatalf("seed %d: events after Seek(%d) mismatch (-want +got):\n%s", seed, ts, diff)
			}
		}

		// Seeking before the trace start yields every event.
		if ok, err := r.Seek(math.MinInt64); !ok || err != nil {
			t.Fatalf("Seek(MinInt64) = %v, %v", ok, err)
		}
	}
}
