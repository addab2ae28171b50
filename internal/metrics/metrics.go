// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics holds the process-wide Prometheus collectors of the
// trace reader and its index.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "ctf"

var (
	PacketsIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_indexed_total",
			Help:      "Total packet headers read into packet indexes.",
		},
	)
	EventsDecoded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_decoded_total",
			Help:      "Total events decoded from stream inputs.",
		},
	)
	LostEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lost_events_total",
			Help:      "Total events reported lost by tracers.",
		},
	)
	DecodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total decode errors by stage.",
		},
		[]string{"stage"},
	)
	CheckpointsInserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_inserted_total",
			Help:      "Total checkpoints inserted into trace indexes.",
		},
	)
	IndexRebuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_rebuilds_total",
			Help:      "Total index files discarded and rebuilt, by file kind.",
		},
		[]string{"kind"},
	)
	NodeCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "btree_node_cache_hits_total",
			Help:      "Total B-tree node reads served from the cache.",
		},
	)
	NodeCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "btree_node_cache_misses_total",
			Help:      "Total B-tree node reads that went to disk.",
		},
	)
	IndexDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Time spent building checkpoint indexes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)
	OpenStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_stream_inputs",
			Help:      "Stream inputs currently mapped.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PacketsIndexed,
		EventsDecoded,
		LostEvents,
		DecodeErrors,
		CheckpointsInserted,
		IndexRebuilds,
		NodeCacheHits,
		NodeCacheMisses,
		IndexDuration,
		OpenStreams,
	)
}
