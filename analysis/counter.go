// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"github.com/goctf/ctf"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Counter counts events by name, CPU and stream class.
type Counter struct {
	byName   map[string]uint64
	byCPU    map[int]uint64
	byStream map[int64]uint64
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{
		byName:   make(map[string]uint64),
		byCPU:    make(map[int]uint64),
		byStream: make(map[int64]uint64),
	}
}

// RegisterStats implements Analyzer.
func (c *Counter) RegisterStats(stats *Stats) {
	stats.RegisterOther("names")
	stats.RegisterOther("cpus")
}

// Process implements Analyzer.
func (c *Counter) Process(ev *ctf.Event, stats *Stats) {
	if _, ok := c.byName[ev.Name]; !ok {
		stats.AddOther("names", 1)
	}
	c.byName[ev.Name]++
	if _, ok := c.byCPU[ev.CPU]; !ok {
		stats.AddOther("cpus", 1)
	}
	c.byCPU[ev.CPU]++
	c.byStream[ev.StreamID]++
}

// Names returns the event names seen, sorted.
func (c *Counter) Names() []string {
	names := maps.Keys(c.byName)
	slices.Sort(names)
	return names
}

// CPUs returns the CPUs seen, sorted. -1 stands for events of
// packets without a CPU.
func (c *Counter) CPUs() []int {
	cpus := maps.Keys(c.byCPU)
	slices.Sort(cpus)
	return cpus
}

// Streams returns the stream class ids seen, sorted.
func (c *Counter) Streams() []int64 {
	ids := maps.Keys(c.byStream)
	slices.Sort(ids)
	return ids
}

// Name, CPU and Stream return the number of events with the given
// name, CPU or stream class.
func (c *Counter) Name(name string) uint64 { return c.byName[name] }
func (c *Counter) CPU(cpu int) uint64      { return c.byCPU[cpu] }
func (c *Counter) Stream(id int64) uint64  { return c.byStream[id] }
