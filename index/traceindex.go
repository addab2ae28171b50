// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package index

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
	"golang.org/x/exp/slog"
)

// Index is a checkpoint store.
type Index interface {
	// Insert adds a checkpoint. Checkpoints are inserted in
	// increasing order; the index assigns their rank.
	Insert(cp Checkpoint) error

	// Size returns the number of checkpoints.
	Size() int64

	// Get returns the checkpoint of the given rank.
	Get(rank int64) (Checkpoint, error)

	// Floor returns the last checkpoint at or before time ts.
	Floor(ts int64) (Checkpoint, bool, error)

	// CreatedFromScratch reports whether the index must be built, as
	// opposed to having been restored complete from disk.
	CreatedFromScratch() bool

	NbEvents() int64
	SetNbEvents(n int64)
	TimeRange() (start, end int64)
	SetTimeRange(start, end int64)

	// SetIndexComplete persists the index and marks it reusable.
	SetIndexComplete() error

	Close() error
}

const (
	btreeFile     = "checkpoint_btree.idx"
	flatArrayFile = "checkpoint_flatarray.idx"
	lockFile      = "index.lock"

	// DefaultInterval is the number of events between checkpoints.
	DefaultInterval = 1000
)

// ErrLocked is returned by Open when another process holds the index
// lock and the index is not complete yet.
var ErrLocked = errors.New("index is being built by another process")

// Options configures Open.
type Options struct {
	// Degree is the B-tree degree. Zero means DefaultDegree.
	Degree int
	// CacheSize is the number of B-tree nodes cached. Zero means
	// DefaultCacheSize.
	CacheSize int
	// Interval is the number of events between checkpoints. Zero
	// means DefaultInterval.
	Interval int
	// Logger receives diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.Degree == 0 {
		opts.Degree = DefaultDegree
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// TraceIndex is the on-disk Index: a B-tree for lookups by time and a
// flat array for lookups by rank, kept in one directory under a file
// lock.
type TraceIndex struct {
	dir   string
	tree  *BTree
	array *FlatArray
	lock  *flock.Flock
}

// Open opens or creates the index stored in dir.
//
// The first process to open dir takes the index lock and may build
// the index. Other processes can open the index read-only once it is
// complete, and get ErrLocked until then.
func Open(dir string, opts Options) (*TraceIndex, error) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating index directory")
	}
	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "locking index")
	}
	treePath := filepath.Join(dir, btreeFile)
	arrayPath := filepath.Join(dir, flatArrayFile)

	readOnly := !locked
	if readOnly {
		if checkComplete(treePath, kindBTree, btreeVersion, int32(opts.Degree)) != nil ||
			checkComplete(arrayPath, kindFlatArray, flatArrayVersion, int32(opts.Interval)) != nil {
			return nil, ErrLocked
		}
		opts.Logger.Debug("opening index read-only", "dir", dir)
	}

	x := &TraceIndex{dir: dir, lock: lock}
	if err := x.open(treePath, arrayPath, readOnly, opts); err != nil {
		if locked {
			lock.Unlock()
		}
		return nil, err
	}
	if x.tree.CreatedFromScratch() != x.array.CreatedFromScratch() {
		// One file survived without the other: start both over.
		opts.Logger.Info("index files out of sync, rebuilding", "dir", dir)
		if err := x.tree.Delete(); err != nil {
			x.array.Close()
			lock.Unlock()
			return nil, err
		}
		if err := x.array.Delete(); err != nil {
			lock.Unlock()
			return nil, err
		}
		if err := x.open(treePath, arrayPath, false, opts); err != nil {
			lock.Unlock()
			return nil, err
		}
	}
	return x, nil
}

func (x *TraceIndex) open(treePath, arrayPath string, readOnly bool, opts Options) error {
	tree, err := openBTree(treePath, opts.Degree, opts.CacheSize, readOnly, opts.Logger)
	if err != nil {
		return err
	}
	array, err := openFlatArray(arrayPath, opts.Interval, readOnly, opts.Logger)
	if err != nil {
		tree.Close()
		return err
	}
	x.tree, x.array = tree, array
	return nil
}

// OpenOrMemory opens the index in dir, falling back to a MemoryIndex
// if the index files cannot be used.
func OpenOrMemory(dir string, opts Options) Index {
	x, err := Open(dir, opts)
	if err == nil {
		return x
	}
	opts = opts.withDefaults()
	opts.Logger.Warn("using in-memory index", "dir", dir, "reason", err)
	return NewMemoryIndex()
}

// Dir returns the directory holding the index files.
func (x *TraceIndex) Dir() string { return x.dir }

// Insert adds cp to both the B-tree and the flat array.
func (x *TraceIndex) Insert(cp Checkpoint) error {
	cp.Rank = x.array.Size()
	if err := x.array.Insert(cp); err != nil {
		return err
	}
	return x.tree.Insert(cp)
}

func (x *TraceIndex) Size() int64                        { return x.array.Size() }
func (x *TraceIndex) Get(rank int64) (Checkpoint, error) { return x.array.Get(rank) }
func (x *TraceIndex) Floor(ts int64) (Checkpoint, bool, error) {
	return x.tree.Floor(ts)
}

// BinarySearch returns the rank of the checkpoint equal to cp, or
// -(insertion rank)-1.
func (x *TraceIndex) BinarySearch(cp Checkpoint) (int64, error) {
	return x.tree.BinarySearch(cp)
}

func (x *TraceIndex) CreatedFromScratch() bool { return x.tree.CreatedFromScratch() }
func (x *TraceIndex) NbEvents() int64          { return x.tree.NbEvents() }

func (x *TraceIndex) SetNbEvents(n int64) {
	x.tree.SetNbEvents(n)
	x.array.SetNbEvents(n)
}

func (x *TraceIndex) TimeRange() (start, end int64) { return x.tree.TimeRange() }

func (x *TraceIndex) SetTimeRange(start, end int64) {
	x.tree.SetTimeRange(start, end)
	x.array.SetTimeRange(start, end)
}

func (x *TraceIndex) SetIndexComplete() error {
	if err := x.tree.SetIndexComplete(); err != nil {
		return err
	}
	return x.array.SetIndexComplete()
}

// CacheMisses returns the B-tree node cache miss count.
func (x *TraceIndex) CacheMisses() int64 { return x.tree.CacheMisses() }

// Close closes both files and releases the lock.
func (x *TraceIndex) Close() error {
	err := errors.CombineErrors(x.tree.Close(), x.array.Close())
	if x.lock.Locked() {
		err = errors.CombineErrors(err, x.lock.Unlock())
	}
	return err
}
