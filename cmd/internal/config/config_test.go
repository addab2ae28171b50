// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goctf/ctf/index"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"golang.org/x/exp/slog"
)

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	return Load(fs)
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t)
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		LogLevel: slog.LevelWarn,
		Index: IndexConfig{
			Backend:   BackendBTree,
			Degree:    index.DefaultDegree,
			CacheSize: index.DefaultCacheSize,
			Interval:  index.DefaultInterval,
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("default config mismatch (-want +got):\n%s", diff)
	}
}

func TestPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctf.yaml")
	err := os.WriteFile(path, []byte(`
log:
  level: debug
index:
  dir: /from/file
  degree: 7
  interval: 50
reader:
  aggregate_lost: true
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("CTF_INDEX_DEGREE", "9")
	t.Setenv("CTF_METRICS_ADDR", ":9100")

	cfg, err := load(t, "--config", path, "--index-interval", "20")
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		LogLevel: slog.LevelDebug,
		Index: IndexConfig{
			Dir:       "/from/file",
			Backend:   BackendBTree,
			Degree:    9,
			CacheSize: index.DefaultCacheSize,
			Interval:  20,
		},
		AggregateLost: true,
		MetricsAddr:   ":9100",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalid(t *testing.T) {
	for _, tc := range []struct {
		args []string
		want string
	}{
		{[]string{"--index-backend", "rocksdb"}, "index.backend"},
		{[]string{"--index-degree", "1"}, "index.degree"},
		{[]string{"--index-interval", "0"}, "index.interval"},
		{[]string{"--log-level", "loud"}, "log.level"},
		{[]string{"--config", "/does/not/exist.yaml"}, "reading config file"},
	} {
		_, err := load(t, tc.args...)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("Load(%v) = %v, want an error about %s", tc.args, err, tc.want)
		}
	}
}

func TestOpenIndex(t *testing.T) {
	base := t.TempDir()
	cfg, err := load(t, "--index-dir", base)
	if err != nil {
		t.Fatal(err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	idx, err := cfg.OpenIndex("/traces/run1", log)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	x, ok := idx.(*index.TraceIndex)
	if !ok {
		t.Fatalf("OpenIndex returned %T, want *index.TraceIndex", idx)
	}
	dir, err := cfg.IndexDir("/traces/run1")
	if err != nil {
		t.Fatal(err)
	}
	if x.Dir() != dir || filepath.Dir(dir) != base {
		t.Errorf("index in %s, want %s under %s", x.Dir(), dir, base)
	}

	cfg.Index.Backend = BackendMemory
	mem, err := cfg.OpenIndex("/traces/run1", log)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mem.(*index.MemoryIndex); !ok {
		t.Errorf("memory backend returned %T", mem)
	}
}
