// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the settings shared by the ctf tools. Settings
// come from, in increasing order of precedence, defaults, a config
// file named by --config, CTF_ environment variables (CTF_INDEX_DIR
// for index.dir) and flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goctf/ctf"
	"github.com/goctf/ctf/index"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/exp/slog"
)

// Index backends.
const (
	BackendBTree  = "btree"
	BackendMemory = "memory"
)

type IndexConfig struct {
	Dir       string // base directory of per-trace index directories
	Backend   string
	Degree    int
	CacheSize int
	Interval  int
}

type Config struct {
	LogLevel      slog.Level
	Index         IndexConfig
	AggregateLost bool
	MetricsAddr   string
}

// keys maps configuration keys to the flags that set them.
var keys = map[string]string{
	"log.level":             "log-level",
	"index.dir":             "index-dir",
	"index.backend":         "index-backend",
	"index.degree":          "index-degree",
	"index.cache_size":      "index-cache-size",
	"index.interval":        "index-interval",
	"reader.aggregate_lost": "aggregate-lost",
	"metrics.addr":          "metrics-addr",
}

// Flags registers the shared flags on fs.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "configuration file (yaml, toml or json)")
	fs.String("log-level", "warn", "log level: debug, info, warn or error")
	fs.String("index-dir", "", "base directory for checkpoint indexes (default: user cache directory)")
	fs.String("index-backend", BackendBTree, "checkpoint index backend: btree or memory")
	fs.Int("index-degree", index.DefaultDegree, "B-tree degree of the checkpoint index")
	fs.Int("index-cache-size", index.DefaultCacheSize, "number of B-tree nodes kept in memory")
	fs.Int("index-interval", index.DefaultInterval, "number of events between checkpoints")
	fs.Bool("aggregate-lost", false, "report each packet's lost events as one record")
	fs.String("metrics-addr", "", "address to serve prometheus metrics on, if any")
}

// Load reads the configuration from fs, which must have been set up
// by Flags and parsed, the environment and the config file.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CTF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, flag := range keys {
		f := fs.Lookup(flag)
		if f == nil {
			return nil, fmt.Errorf("flag --%s not registered", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, err
		}
	}
	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %v", err)
		}
	}
	return loadConfig(v)
}

func loadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log.level"))); err != nil {
		return nil, fmt.Errorf("log.level: %v", err)
	}

	cfg.Index.Dir = v.GetString("index.dir")
	cfg.Index.Backend = v.GetString("index.backend")
	cfg.Index.Degree = v.GetInt("index.degree")
	cfg.Index.CacheSize = v.GetInt("index.cache_size")
	cfg.Index.Interval = v.GetInt("index.interval")
	switch cfg.Index.Backend {
	case BackendBTree, BackendMemory:
	default:
		return nil, fmt.Errorf("index.backend must be %s or %s, not %q", BackendBTree, BackendMemory, cfg.Index.Backend)
	}
	if cfg.Index.Degree < 2 {
		return nil, fmt.Errorf("index.degree must be at least 2, not %d", cfg.Index.Degree)
	}
	if cfg.Index.CacheSize < 1 {
		return nil, fmt.Errorf("index.cache_size must be positive, not %d", cfg.Index.CacheSize)
	}
	if cfg.Index.Interval < 1 {
		return nil, fmt.Errorf("index.interval must be positive, not %d", cfg.Index.Interval)
	}

	cfg.AggregateLost = v.GetBool("reader.aggregate_lost")
	cfg.MetricsAddr = v.GetString("metrics.addr")
	return cfg, nil
}

// Logger returns a text logger on standard error at the configured
// level, and makes it the default logger.
func (c *Config) Logger() *slog.Logger {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel}))
	slog.SetDefault(log)
	return log
}

// TraceOptions returns the options to open traces with.
func (c *Config) TraceOptions(log *slog.Logger) []ctf.Option {
	return []ctf.Option{ctf.WithLogger(log), ctf.WithAggregateLostEvents(c.AggregateLost)}
}

// IndexDir returns the checkpoint index directory of the trace in
// traceDir.
func (c *Config) IndexDir(traceDir string) (string, error) {
	base := c.Index.Dir
	if base == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("finding index directory: %v", err)
		}
		base = filepath.Join(cache, "ctf")
	}
	return ctf.IndexDir(base, traceDir)
}

// OpenIndex opens the checkpoint index of the trace in traceDir with
// the configured backend. A btree index that cannot be opened falls
// back to memory.
func (c *Config) OpenIndex(traceDir string, log *slog.Logger) (index.Index, error) {
	if c.Index.Backend == BackendMemory {
		return index.NewMemoryIndex(), nil
	}
	dir, err := c.IndexDir(traceDir)
	if err != nil {
		return nil, err
	}
	return index.OpenOrMemory(dir, index.Options{
		Degree:    c.Index.Degree,
		CacheSize: c.Index.CacheSize,
		Interval:  c.Index.Interval,
		Logger:    log,
	}), nil
}
