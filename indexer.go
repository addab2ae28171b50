// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goctf/ctf/index"
	"github.com/goctf/ctf/internal/metrics"
)

// Indexer builds a checkpoint index by walking every event of a trace
// in merged order.
type Indexer struct {
	t        *Trace
	idx      index.Index
	interval int

	mu     sync.Mutex
	r      *TraceReader
	events int64
}

// NewIndexer returns an indexer inserting into idx a checkpoint every
// interval events of t. A non-positive interval means
// index.DefaultInterval.
func NewIndexer(t *Trace, idx index.Index, interval int) *Indexer {
	if interval <= 0 {
		interval = index.DefaultInterval
	}
	return &Indexer{t: t, idx: idx, interval: interval, r: t.NewReader()}
}

// BuildIndex builds idx for t and attaches it to t for seeking.
func BuildIndex(t *Trace, idx index.Index, interval int) error {
	return NewIndexer(t, idx, interval).Run()
}

// Run builds the index and attaches it to the trace. An index restored
// complete from disk is attached as is.
func (x *Indexer) Run() error {
	log := x.t.cfg.log
	if !x.idx.CreatedFromScratch() {
		log.Debug("reusing complete index", "checkpoints", x.idx.Size(), "events", x.idx.NbEvents())
		x.t.SetIndex(x.idx, x.interval)
		x.mu.Lock()
		x.events = x.idx.NbEvents()
		x.mu.Unlock()
		return nil
	}

	began := time.Now()
	var (
		first, last int64
		same        int64
	)
	for rank := int64(0); ; rank++ {
		x.mu.Lock()
		ok, err := x.r.Advance()
		x.mu.Unlock()
		if err != nil {
			return errors.Wrapf(err, "indexing event %d", rank)
		}
		if !ok {
			break
		}
		ts := x.r.Current().Timestamp
		switch {
		case rank == 0:
			first, same = ts, 0
		case ts == last:
			same++
		default:
			same = 0
		}
		last = ts
		if rank%int64(x.interval) == 0 {
			cp := index.Checkpoint{Time: ts, Loc: index.Location{Timestamp: ts, Index: same}}
			if err := x.idx.Insert(cp); err != nil {
				return errors.Wrapf(err, "inserting checkpoint at event %d", rank)
			}
			metrics.CheckpointsInserted.Inc()
		}
		x.mu.Lock()
		x.events = rank + 1
		x.mu.Unlock()
	}

	x.idx.SetNbEvents(x.Events())
	x.idx.SetTimeRange(first, last)
	if err := x.idx.SetIndexComplete(); err != nil {
		return errors.Wrap(err, "completing index")
	}
	metrics.IndexDuration.Observe(time.Since(began).Seconds())
	log.Info("built index", "events", x.Events(), "checkpoints", x.idx.Size(), "elapsed", time.Since(began))
	x.t.SetIndex(x.idx, x.interval)
	return nil
}

// Progress returns a float64 value between 0 and 1 indicating the
// approximate progress of Run. It may be called from another goroutine.
func (x *Indexer) Progress() float64 {
	if !x.idx.CreatedFromScratch() {
		return 1
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.r.Progress()
}

// Events returns the number of events indexed so far.
func (x *Indexer) Events() int64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.events
}
