// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/goctf/ctf/index"
)

// Context is a position in the merged events of a trace, returned by
// Trace.Seek and Trace.SeekRank.
type Context struct {
	r       *TraceReader
	rank    int64
	advance bool
}

// Seek returns a context positioned at the first event at or after
// time ts, in nanoseconds. With a checkpoint index set, it starts from
// the last checkpoint at or before ts and the rank of the event is
// known; otherwise every stream file is searched through its packet
// index and Rank reports -1.
func (t *Trace) Seek(ts int64) (*Context, error) {
	c := &Context{r: t.NewReader()}
	if t.idx == nil {
		t.cfg.log.Debug("seeking without index", "time", ts)
		if _, err := c.r.Seek(ts); err != nil {
			return nil, err
		}
		c.rank = -1
		return c, nil
	}

	cp, ok, err := t.idx.Floor(ts)
	if err != nil {
		return nil, errors.Wrap(err, "searching index")
	}
	if ok {
		t.cfg.log.Debug("seeking from checkpoint", "time", ts, "checkpoint", cp)
		if err := c.seekLocation(cp.Loc); err != nil {
			return nil, err
		}
		c.rank = cp.Rank * int64(t.interval)
	} else if _, err := c.r.Advance(); err != nil {
		return nil, err
	}
	for c.r.State() == Positioned && c.r.Current().Timestamp < ts {
		if err := c.skip(1); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SeekRank returns a context positioned at the event of the given
// rank, counting from 0 in merged order. Past the last event the
// context is exhausted.
func (t *Trace) SeekRank(rank int64) (*Context, error) {
	if rank < 0 {
		return nil, errors.Newf("negative event rank %d", rank)
	}
	c := &Context{r: t.NewReader()}
	var n int64
	if t.idx != nil && t.idx.Size() > 0 {
		cpRank := min(rank/int64(t.interval), t.idx.Size()-1)
		cp, err := t.idx.Get(cpRank)
		if err != nil {
			return nil, errors.Wrap(err, "reading index")
		}
		if err := c.seekLocation(cp.Loc); err != nil {
			return nil, err
		}
		c.rank = cpRank * int64(t.interval)
		n = rank - c.rank
	} else {
		if _, err := c.r.Advance(); err != nil {
			return nil, err
		}
		n = rank
	}
	if err := c.skip(n); err != nil {
		return nil, err
	}
	return c, nil
}

// seekLocation positions the reader on the event at loc.
func (c *Context) seekLocation(loc index.Location) error {
	ok, err := c.r.Seek(loc.Timestamp)
	if err != nil {
		return err
	}
	if !ok || c.r.Current().Timestamp != loc.Timestamp {
		return errors.Newf("no event at checkpoint time %d: index does not match trace", loc.Timestamp)
	}
	return c.skip(loc.Index)
}

func (c *Context) skip(n int64) error {
	for ; n > 0 && c.r.State() == Positioned; n-- {
		if _, err := c.r.Advance(); err != nil {
			return err
		}
		if c.rank >= 0 {
			c.rank++
		}
	}
	return nil
}

// Next returns the next event, or io.EOF after the last one. After a
// decode error, Next goes on with the other stream files.
func (c *Context) Next() (Event, error) {
	if c.advance {
		_, err := c.r.Advance()
		c.advance = false
		if err != nil {
			// The failing stream file's remaining events are gone.
			c.rank = -1
			return Event{}, err
		}
	}
	if c.r.State() != Positioned {
		return Event{}, io.EOF
	}
	ev := *c.r.Current()
	c.advance = true
	if c.rank >= 0 {
		c.rank++
	}
	return ev, nil
}

// Rank returns the rank of the event Next returns, or -1 if it is not
// known.
func (c *Context) Rank() int64 { return c.rank }

// Reader returns the underlying reader. Advancing it directly
// invalidates Rank.
func (c *Context) Reader() *TraceReader { return c.r }
