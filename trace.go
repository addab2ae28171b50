// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/goctf/ctf/index"
	"github.com/goctf/ctf/internal/metrics"
	"github.com/goctf/ctf/metadata"
	"golang.org/x/exp/mmap"
	"golang.org/x/sync/errgroup"
)

// MetadataFile is the name of the metadata file in a trace directory.
const MetadataFile = "metadata"

// Trace is an open CTF trace.
type Trace struct {
	path    string
	meta    *metadata.Trace
	inputs  []*StreamInput
	closers []io.Closer
	cfg     config

	idx      index.Index
	interval int
}

// Open opens the trace in directory path: it parses the metadata file
// and maps every other regular file as a stream file. Hidden files and
// checkpoint index files are skipped.
func Open(path string, opts ...Option) (*Trace, error) {
	mpath := filepath.Join(path, MetadataFile)
	meta, err := metadata.ReadFile(mpath)
	if err != nil {
		var pe *metadata.ParseError
		if errors.As(err, &pe) {
			return nil, &MalformedTraceError{File: mpath, Reason: "parsing metadata", Err: err}
		}
		return nil, errors.Wrap(err, "reading metadata")
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrap(err, "listing trace directory")
	}
	var (
		srcs    []NamedSource
		closers []io.Closer
	)
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || name == MetadataFile || strings.HasPrefix(name, ".") ||
			strings.HasSuffix(name, ".idx") || strings.HasSuffix(name, ".lock") {
			continue
		}
		r, err := mmap.Open(filepath.Join(path, name))
		if err != nil {
			closeAll(closers)
			return nil, errors.Wrapf(err, "opening stream file %s", name)
		}
		srcs = append(srcs, NamedSource{Name: name, Source: r})
		closers = append(closers, r)
	}
	if len(srcs) == 0 {
		return nil, errors.Newf("%s: no stream files", path)
	}
	t, err := New(meta, srcs, opts...)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	t.path, t.closers = path, closers
	t.cfg.log.Debug("opened trace", "path", path, "streams", len(srcs))
	return t, nil
}

// New returns a trace reading the given stream files, laid out as
// described by meta. Stream file names must be unique.
func New(meta *metadata.Trace, srcs []NamedSource, opts ...Option) (*Trace, error) {
	t := &Trace{meta: meta, cfg: newConfig(opts)}
	seen := make(map[string]bool, len(srcs))
	for i, src := range srcs {
		if seen[src.Name] {
			return nil, errors.Newf("duplicate stream file name %q", src.Name)
		}
		seen[src.Name] = true
		t.inputs = append(t.inputs, newStreamInput(meta, src, i, &t.cfg))
	}
	metrics.OpenStreams.Add(float64(len(t.inputs)))
	return t, nil
}

func closeAll(closers []io.Closer) error {
	var err error
	for _, c := range closers {
		err = errors.CombineErrors(err, c.Close())
	}
	return err
}

// Close releases the stream files. It does not close an index set
// with SetIndex.
func (t *Trace) Close() error {
	if t.inputs == nil {
		return nil
	}
	metrics.OpenStreams.Sub(float64(len(t.inputs)))
	t.inputs = nil
	return closeAll(t.closers)
}

// Path returns the trace directory, or "" for a trace made with New.
func (t *Trace) Path() string { return t.path }

// Metadata returns the parsed trace metadata.
func (t *Trace) Metadata() *metadata.Trace { return t.meta }

// Inputs returns the stream files of the trace.
func (t *Trace) Inputs() []*StreamInput { return t.inputs }

// IndexPackets indexes the packets of every stream file, in parallel.
func (t *Trace) IndexPackets() error {
	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(-1))
	for _, in := range t.inputs {
		eg.Go(in.IndexAll)
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("indexing packets: %w", err)
	}
	return nil
}

// IndexProgress returns a float64 value between 0 and 1 indicating the
// approximate progress of packet indexing.
func (t *Trace) IndexProgress() float64 {
	var done, total int64
	for _, in := range t.inputs {
		done += in.indexed.Load()
		total += in.Len()
	}
	if total == 0 {
		return 1
	}
	return float64(done) / float64(total)
}

// TimeRange returns the time range of the trace in nanoseconds. It
// comes from the checkpoint index if one is set, and otherwise from
// the packet time bounds, which requires indexing every packet.
func (t *Trace) TimeRange() (start, end int64, err error) {
	if t.idx != nil {
		start, end = t.idx.TimeRange()
		return start, end, nil
	}
	if err := t.IndexPackets(); err != nil {
		return 0, 0, err
	}
	start, end = math.MaxInt64, math.MinInt64
	for _, in := range t.inputs {
		for _, p := range in.Packets() {
			start = min(start, p.Begin)
			if p.End != math.MaxInt64 {
				end = max(end, p.End)
			}
		}
	}
	if start > end {
		return 0, 0, nil
	}
	return start, end, nil
}

// SetIndex makes Seek and SeekRank use idx, a complete checkpoint
// index with a checkpoint every interval events.
func (t *Trace) SetIndex(idx index.Index, interval int) {
	t.idx, t.interval = idx, interval
}

// Index returns the checkpoint index set on t, or nil.
func (t *Trace) Index() index.Index { return t.idx }

// IndexDir returns the directory under base holding the checkpoint
// index of the trace in traceDir. The name is derived from a hash of
// the absolute trace path, so distinct traces never share an index.
func IndexDir(base, traceDir string) (string, error) {
	abs, err := filepath.Abs(traceDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, fmt.Sprintf("%s-%016x", filepath.Base(abs), xxhash.Sum64String(abs))), nil
}
