// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"math/rand"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/goctf/ctf/bitbuf"
	"github.com/goctf/ctf/internal/ctftest"
	"github.com/goctf/ctf/metadata"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestReconstructTimestamp(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for n := 1; n < 64; n++ {
		mask := uint64(1)<<n - 1
		for i := 0; i < 200; i++ {
			last := r.Uint64() >> 2
			delta := r.Uint64() & mask
			want := last + delta
			if got := reconstructTimestamp(last, want&mask, n); got != want {
				t.Fatalf("n=%d: reconstructTimestamp(%#x, %#x) = %#x, want %#x", n, last, want&mask, got, want)
			}
		}
	}
	if got := reconstructTimestamp(12345, 99, 64); got != 99 {
		t.Errorf("64-bit timestamp: got %d, want 99", got)
	}
}

func TestEventFields(t *testing.T) {
	for _, order := range []bitbuf.ByteOrder{bitbuf.LittleEndian, bitbuf.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			l := ctftest.Layout{Order: order}
			data := l.Stream(0, ctftest.Packet{
				Events: []ctftest.Event{
					{ID: ctftest.TickID, Time: 100, Value: -7, Msg: "hello"},
					{ID: ctftest.BlobID, Time: 110, Data: []byte{1, 2, 3}},
				},
				CPU: 2,
			})
			tr := newTrace(t, l, []namedStream{{"chan", data}})
			r := tr.NewReader()

			var got []Event
			for {
				ok, err := r.Advance()
				if err != nil {
					t.Fatal(err)
				}
				if !ok {
					break
				}
				got = append(got, *r.Current())
			}
			want := []Event{
				{
					Timestamp: 100,
					Cycles:    100,
					ID:        ctftest.TickID,
					Name:      "tick",
					CPU:       2,
					Input:     "chan",
					Offset:    payloadBits / 8,
					Fields:    map[string]any{"value": int64(-7), "msg": "hello"},
				},
				{
					Timestamp: 110,
					Cycles:    110,
					ID:        ctftest.BlobID,
					Name:      "blob",
					CPU:       2,
					Input:     "chan",
					Offset:    (payloadBits + 32 + 64 + 32 + 6*8) / 8,
					Fields:    map[string]any{"len": uint64(3), "data": []any{uint64(1), uint64(2), uint64(3)}},
				},
			}
			if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Event{}, "Decl")); diff != "" {
				t.Errorf("events mismatch (-want +got):\n%s", diff)
			}
			if got[0].Decl == nil || got[0].Decl.Name != "tick" {
				t.Errorf("tick event Decl = %v", got[0].Decl)
			}
		})
	}
}

func TestCompactTimestamps(t *testing.T) {
	const wrap = 1 << 27
	times := []uint64{
		wrap - 5,
		wrap - 3,
		wrap + 10, // low bits wrap
		2*wrap + 9,
		1 << 40, // too far from the packet start for a compact header
		1<<40 + 1<<26,
		1<<40 + 1<<26,
	}
	l := ctftest.Layout{Compact: true}
	data := l.Stream(0,
		ctftest.Packet{Events: ctftest.Ticks(times[:4]...)},
		ctftest.Packet{Begin: times[3], Events: []ctftest.Event{
			{ID: ctftest.TickID, Time: times[4], Msg: "a"},
			{ID: ctftest.BlobID, Time: times[5], Data: []byte{9}},
			{ID: ctftest.TickID, Time: times[6], Msg: "b"},
		}},
	)
	tr := newTrace(t, l, []namedStream{{"s", data}})
	r := tr.NewReader()
	var got []uint64
	for {
		ok, err := r.Advance()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		ev := r.Current()
		if ev.Timestamp != int64(ev.Cycles) {
			t.Errorf("Timestamp %d != Cycles %d with a 1 GHz clock", ev.Timestamp, ev.Cycles)
		}
		got = append(got, ev.Cycles)
	}
	if diff := cmp.Diff(times, got); diff != "" {
		t.Errorf("timestamps mismatch (-want +got):\n%s", diff)
	}
}

func TestClockConversion(t *testing.T) {
	l := ctftest.Layout{Freq: 1000, OffsetS: 5}
	data := l.Stream(0, ctftest.Packet{Events: ctftest.Ticks(1500, 2000)})
	tr := newTrace(t, l, []namedStream{{"s", data}})
	evs := readAll(t, tr.NewReader())
	want := []int64{5_000_000_000 + 1_500_000_000, 5_000_000_000 + 2_000_000_000}
	for i, ev := range evs {
		if ev.Timestamp != want[i] {
			t.Errorf("event %d at %d ns, want %d", i, ev.Timestamp, want[i])
		}
	}
}

func TestLostEvents(t *testing.T) {
	l := ctftest.Layout{}
	data := l.Stream(0,
		ctftest.Packet{Events: ctftest.Ticks(10, 20)},
		ctftest.Packet{Events: ctftest.Ticks(30, 40), Begin: 25, Discarded: 3},
	)
	lost := eventKey{Timestamp: 25, Input: "s", Name: metadata.LostEvent.Name, Lost: 1}
	tick := func(ts int64, v int64) eventKey {
		return eventKey{Timestamp: ts, Input: "s", Name: "tick", Value: v}
	}

	t.Run("Replay", func(t *testing.T) {
		tr := newTrace(t, l, []namedStream{{"s", data}})
		got := readAll(t, tr.NewReader())
		want := []eventKey{tick(10, 0), tick(20, 1), lost, lost, lost, tick(30, 0), tick(40, 1)}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("Aggregate", func(t *testing.T) {
		tr := newTrace(t, l, []namedStream{{"s", data}}, WithAggregateLostEvents(true))
		r := tr.NewReader()
		var got []eventKey
		for {
			ok, err := r.Advance()
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				break
			}
			ev := r.Current()
			if ev.Kind == EventLost && ev.ID != metadata.LostEventID {
				t.Errorf("lost event record has id %d", ev.ID)
			}
			got = append(got, keyOf(ev))
		}
		agg := lost
		agg.Lost = 3
		want := []eventKey{tick(10, 0), tick(20, 1), agg, tick(30, 0), tick(40, 1)}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestUnknownEventID(t *testing.T) {
	l := ctftest.Layout{}
	data := l.Stream(0, ctftest.Packet{Events: []ctftest.Event{
		{ID: ctftest.TickID, Time: 10, Msg: "ok"},
		{ID: 5, Time: 20},
	}})
	tr := newTrace(t, l, []namedStream{{"s", data}})
	r := tr.NewReader()
	if ok, err := r.Advance(); !ok || err != nil {
		t.Fatalf("first Advance = %v, %v", ok, err)
	}
	if name := r.Current().Name; name != "tick" {
		t.Fatalf("first event is %q, want tick", name)
	}
	_, err := r.Advance()
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("Advance = %v, want ErrDecode", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("Advance error %T is not a *DecodeError", err)
	}
	if want := int64(payloadBits/8 + 19); de.Offset != want {
		t.Errorf("error at offset %d, want %d", de.Offset, want)
	}
}
