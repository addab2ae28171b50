// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/goctf/ctf"
	"github.com/goctf/ctf/analysis"
	"github.com/goctf/ctf/cmd/internal/config"
	"github.com/goctf/ctf/cmd/internal/spinner"
	"github.com/spf13/pflag"
)

var (
	from    int64
	rank    int64
	count   int
	noIndex bool
)

func init() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Utility that prints the events of a CTF trace\n")
		fmt.Fprintf(os.Stderr, "starting at a time or at an event rank.\n")
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <trace-dir>\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Int64Var(&from, "from", math.MinInt64, "print events at or after this time in nanoseconds")
	pflag.Int64Var(&rank, "rank", -1, "print events starting at this rank; overrides --from")
	pflag.IntVarP(&count, "count", "n", 20, "number of events to print, 0 for all")
	pflag.BoolVar(&noIndex, "no-index", false, "seek by scanning instead of through the checkpoint index")
	config.Flags(pflag.CommandLine)
}

func checkFlags() error {
	if pflag.NArg() != 1 {
		return errors.New("incorrect number of arguments")
	}
	if count < 0 {
		return errors.New("--count must not be negative")
	}
	return nil
}

func run() error {
	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		return err
	}
	log := cfg.Logger()

	dir := pflag.Arg(0)
	tr, err := ctf.Open(dir, cfg.TraceOptions(log)...)
	if err != nil {
		return fmt.Errorf("opening trace: %v", err)
	}
	defer tr.Close()

	if !noIndex {
		idx, err := cfg.OpenIndex(dir, log)
		if err != nil {
			return fmt.Errorf("opening index: %v", err)
		}
		defer idx.Close()
		x := ctf.NewIndexer(tr, idx, cfg.Index.Interval)
		if idx.CreatedFromScratch() {
			spinner.Start(x.Progress, spinner.Format("Indexing... %.4f%%"))
		}
		err = x.Run()
		spinner.Stop()
		if err != nil {
			return err
		}
	}

	var c *ctf.Context
	if rank >= 0 {
		c, err = tr.SeekRank(rank)
	} else {
		c, err = tr.Seek(from)
	}
	if err != nil {
		return fmt.Errorf("seeking: %v", err)
	}

	counter := analysis.NewCounter()
	stats := analysis.NewStats()
	counter.RegisterStats(stats)
	for n := 0; count == 0 || n < count; n++ {
		r := c.Rank()
		ev, err := c.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading events: %v", err)
		}
		if r >= 0 {
			fmt.Printf("#%-10d %s\n", r, &ev)
		} else {
			fmt.Printf("#?          %s\n", &ev)
		}
		counter.Process(&ev, stats)
	}

	fmt.Println("By CPU:")
	for _, cpu := range counter.CPUs() {
		fmt.Printf("  %-8d %s\n", cpu, humanize.Comma(int64(counter.CPU(cpu))))
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
