// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/goctf/ctf/internal/ctftest"
	"github.com/goctf/ctf/metadata"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type namedStream struct {
	name string
	data []byte
}

// newTrace returns an in-memory trace of the given layout and stream
// files.
func newTrace(t *testing.T, l ctftest.Layout, streams []namedStream, opts ...Option) *Trace {
	t.Helper()
	meta, err := metadata.Parse(l.Metadata())
	if err != nil {
		t.Fatalf("parsing metadata: %v", err)
	}
	var srcs []NamedSource
	for _, s := range streams {
		srcs = append(srcs, NamedSource{Name: s.name, Source: bytes.NewReader(s.data)})
	}
	tr, err := New(meta, srcs, append([]Option{WithLogger(quietLogger())}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

// eventKey is the part of an event the ordering tests compare.
type eventKey struct {
	Timestamp int64
	Input     string
	Name      string
	Value     any
	Lost      uint64
}

func keyOf(ev *Event) eventKey {
	k := eventKey{Timestamp: ev.Timestamp, Input: ev.Input, Name: ev.Name, Lost: ev.Lost}
	if ev.Fields != nil {
		k.Value = ev.Fields["value"]
	}
	return k
}

// readAll returns every event of r from its current state.
func readAll(t *testing.T, r *TraceReader) []eventKey {
	t.Helper()
	var evs []eventKey
	for {
		ok, err := r.Advance()
		if err != nil {
			t.Fatalf("Advance after %d events: %v", len(evs), err)
		}
		if !ok {
			return evs
		}
		evs = append(evs, keyOf(r.Current()))
	}
}

func TestOpen(t *testing.T) {
	l := ctftest.Layout{Streams: 2}
	dir := t.TempDir()
	err := ctftest.WriteTrace(dir, l.Metadata(), map[string][]byte{
		"chan_0":     l.Stream(0, ctftest.Packet{Events: ctftest.Ticks(10, 20, 30), CPU: 0}),
		"chan_1":     l.Stream(1, ctftest.Packet{Events: ctftest.Ticks(15, 25), CPU: 1}),
		".hidden":    []byte("not a stream"),
		"old.idx":    []byte("not a stream either"),
		"index.lock": nil,
	})
	if err != nil {
		t.Fatal(err)
	}
	tr, err := Open(dir, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if got := len(tr.Inputs()); got != 2 {
		t.Fatalf("got %d stream files, want 2", got)
	}
	if tr.Path() != dir {
		t.Errorf("Path = %q, want %q", tr.Path(), dir)
	}
	evs := readAll(t, tr.NewReader())
	var times []int64
	for _, ev := range evs {
		times = append(times, ev.Timestamp)
	}
	if want := []int64{10, 15, 20, 25, 30}; !slices.Equal(times, want) {
		t.Errorf("times = %v, want %v", times, want)
	}
	start, end, err := tr.TimeRange()
	if err != nil {
		t.Fatal(err)
	}
	if start != 10 || end != 30 {
		t.Errorf("TimeRange = [%d, %d], want [10, 30]", start, end)
	}
	if p := tr.IndexProgress(); p != 1 {
		t.Errorf("IndexProgress = %v after TimeRange, want 1", p)
	}
}

func TestOpenErrors(t *testing.T) {
	l := ctftest.Layout{}

	t.Run("BadMetadata", func(t *testing.T) {
		dir := t.TempDir()
		if err := ctftest.WriteTrace(dir, "trace { major = ; };", map[string][]byte{"s": l.Stream(0)}); err != nil {
			t.Fatal(err)
		}
		_, err := Open(dir, WithLogger(quietLogger()))
		var me *MalformedTraceError
		if !errors.As(err, &me) {
			t.Fatalf("Open = %v, want a MalformedTraceError", err)
		}
		if me.File != filepath.Join(dir, MetadataFile) {
			t.Errorf("error names %q, want the metadata file", me.File)
		}
		if !errors.Is(err, ErrMalformedTrace) {
			t.Errorf("errors.Is(%v, ErrMalformedTrace) = false", err)
		}
	})
	t.Run("NoStreams", func(t *testing.T) {
		dir := t.TempDir()
		if err := ctftest.WriteTrace(dir, l.Metadata(), nil); err != nil {
			t.Fatal(err)
		}
		if _, err := Open(dir, WithLogger(quietLogger())); err == nil || !strings.Contains(err.Error(), "no stream files") {
			t.Fatalf("Open = %v, want a no stream files error", err)
		}
	})
	t.Run("NoMetadata", func(t *testing.T) {
		if _, err := Open(t.TempDir(), WithLogger(quietLogger())); err == nil {
			t.Fatal("Open succeeded without metadata")
		}
	})
}

func TestNewDuplicateNames(t *testing.T) {
	l := ctftest.Layout{}
	meta, err := metadata.Parse(l.Metadata())
	if err != nil {
		t.Fatal(err)
	}
	data := l.Stream(0, ctftest.Packet{Events: ctftest.Ticks(1)})
	_, err = New(meta, []NamedSource{
		{Name: "s", Source: bytes.NewReader(data)},
		{Name: "s", Source: bytes.NewReader(data)},
	})
	if err == nil {
		t.Fatal("New accepted duplicate stream file names")
	}
}

func TestIndexDir(t *testing.T) {
	base := t.TempDir()
	a1, err := IndexDir(base, "/traces/a")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := IndexDir(base, "/traces/./a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := IndexDir(base, "/other/a")
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Errorf("same trace got directories %q and %q", a1, a2)
	}
	if a1 == b {
		t.Errorf("distinct traces share directory %q", a1)
	}
	if filepath.Dir(a1) != base || !strings.HasPrefix(filepath.Base(a1), "a-") {
		t.Errorf("IndexDir = %q, want %s/a-<hash>", a1, base)
	}
}
