// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goctf/ctf"
	"github.com/goctf/ctf/cmd/internal/config"
	"github.com/goctf/ctf/cmd/internal/spinner"
	"github.com/goctf/ctf/index"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/exp/slog"
)

var rebuild = pflag.Bool("rebuild", false, "discard any existing index and build it again")

func init() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Utility that builds the checkpoint index\n")
		fmt.Fprintf(os.Stderr, "of a CTF trace, or reports on an existing one.\n")
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <trace-dir>\n", os.Args[0])
		pflag.PrintDefaults()
	}
	config.Flags(pflag.CommandLine)
}

func checkFlags() error {
	if pflag.NArg() != 1 {
		return errors.New("incorrect number of arguments")
	}
	return nil
}

func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("serving metrics", "addr", addr, "err", err)
		}
	}()
}

func run() error {
	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		return err
	}
	log := cfg.Logger()
	if cfg.MetricsAddr != "" {
		serveMetrics(cfg.MetricsAddr, log)
	}

	dir := pflag.Arg(0)
	tr, err := ctf.Open(dir, cfg.TraceOptions(log)...)
	if err != nil {
		return fmt.Errorf("opening trace: %v", err)
	}
	defer tr.Close()

	if *rebuild && cfg.Index.Backend == config.BackendBTree {
		idxDir, err := cfg.IndexDir(dir)
		if err != nil {
			return err
		}
		if err := os.RemoveAll(idxDir); err != nil {
			return fmt.Errorf("removing old index: %v", err)
		}
	}
	idx, err := cfg.OpenIndex(dir, log)
	if err != nil {
		return fmt.Errorf("opening index: %v", err)
	}
	defer idx.Close()

	x := ctf.NewIndexer(tr, idx, cfg.Index.Interval)
	if idx.CreatedFromScratch() {
		fmt.Println("Building index...")
	} else {
		fmt.Println("Reusing index...")
	}
	start := time.Now()
	spinner.Start(x.Progress, spinner.Format("Indexing... %.4f%%"))
	err = x.Run()
	spinner.Stop()
	if err != nil {
		return err
	}

	first, last := idx.TimeRange()
	fmt.Printf("Checkpoints: %s\n", humanize.Comma(idx.Size()))
	fmt.Printf("Events:      %s\n", humanize.Comma(x.Events()))
	fmt.Printf("Time range:  [%d, %d] (%v)\n", first, last, time.Duration(last-first))
	fmt.Printf("Took:        %v\n", time.Since(start).Round(time.Millisecond))
	if ti, ok := idx.(*index.TraceIndex); ok {
		fmt.Printf("Cache misses: %s\n", humanize.Comma(ti.CacheMisses()))
		files, err := filepath.Glob(filepath.Join(ti.Dir(), "*.idx"))
		if err != nil {
			return err
		}
		for _, f := range files {
			fi, err := os.Stat(f)
			if err != nil {
				return err
			}
			fmt.Printf("  %-28s %s\n", filepath.Base(f), humanize.Bytes(uint64(fi.Size())))
		}
	} else if cfg.Index.Backend == config.BackendBTree {
		fmt.Fprintf(os.Stderr, "warning: index kept in memory only\n")
	}
	return nil
}

func main() {
	pflag.Parse()
	if err := checkFlags(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		pflag.Usage()
		os.Exit(1)
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}
