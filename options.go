// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import "golang.org/x/exp/slog"

// Option configures a Trace.
type Option func(cfg *config)

type config struct {
	log           *slog.Logger
	aggregateLost bool
	window        int
}

const defaultHeaderWindow = 4 << 10

func newConfig(opts []Option) config {
	cfg := config{window: defaultHeaderWindow}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = slog.Default()
	}
	if cfg.window < 64 {
		cfg.window = 64
	}
	return cfg
}

// WithLogger returns an option that sends diagnostics to log.
func WithLogger(log *slog.Logger) Option {
	return func(cfg *config) {
		cfg.log = log
	}
}

// WithAggregateLostEvents returns an option that controls how events
// discarded by the tracer are reported. By default every lost event
// is replayed as its own record. When aggregate is true, a packet's
// lost events are reported by a single record whose Lost field holds
// their number.
func WithAggregateLostEvents(aggregate bool) Option {
	return func(cfg *config) {
		cfg.aggregateLost = aggregate
	}
}

// WithHeaderWindow returns an option that sets the number of bytes
// read to decode a packet header and context. The window grows as
// needed; a larger initial window saves reads for unusually large
// headers.
func WithHeaderWindow(n int) Option {
	return func(cfg *config) {
		cfg.window = n
	}
}
