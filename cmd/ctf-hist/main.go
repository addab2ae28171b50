// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/goctf/ctf"
	"github.com/goctf/ctf/analysis"
	"github.com/goctf/ctf/cmd/internal/config"
	"github.com/goctf/ctf/cmd/internal/spinner"
	"github.com/spf13/pflag"
)

var (
	outputFile string
	period     int64
	cumulative bool
)

func init() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Utility that generates an event name\n")
		fmt.Fprintf(os.Stderr, "distribution from a CTF trace.\n")
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <trace-dir>\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.StringVarP(&outputFile, "output", "o", "./names.data", "location to write output file, or - for standard output")
	pflag.Int64Var(&period, "period", 1000000000, "the period in nanoseconds to capture a distribution")
	pflag.BoolVar(&cumulative, "cum", false, "instead of snapshotting the distribution of each period, accumulate a total distribution")
	config.Flags(pflag.CommandLine)
}

func checkFlags() error {
	if pflag.NArg() != 1 {
		return errors.New("incorrect number of arguments")
	}
	if period < 0 {
		return errors.New("--period must not be negative")
	}
	return nil
}

func run() error {
	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		return err
	}
	log := cfg.Logger()

	tr, err := ctf.Open(pflag.Arg(0), cfg.TraceOptions(log)...)
	if err != nil {
		return fmt.Errorf("opening trace: %v", err)
	}
	defer tr.Close()

	f := os.Stdout
	if outputFile != "-" {
		f, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("creating data file: %v", err)
		}
		defer f.Close()
	}
	out := bufio.NewWriter(f)

	r := tr.NewReader()
	var pMu sync.Mutex
	spinner.Start(func() float64 {
		pMu.Lock()
		prog := r.Progress()
		pMu.Unlock()
		return prog
	}, spinner.Format("Processing... %.4f%%"))

	hist := analysis.NewNameHist(period, cumulative, func(start int64, h *analysis.NameHist) {
		fmt.Fprintf(out, ">%d\n", start)
		h.ForEach(func(name string, count uint64) {
			fmt.Fprintf(out, "%s:%d\n", name, count)
		})
	})
	stats := analysis.NewStats()
	chain := analysis.Chain{hist}
	chain.RegisterStats(stats)
	for {
		pMu.Lock()
		ok, err := r.Advance()
		pMu.Unlock()
		if err != nil {
			spinner.Stop()
			return fmt.Errorf("reading events: %v", err)
		}
		if !ok {
			break
		}
		chain.Process(r.Current(), stats)
	}
	hist.Flush()
	spinner.Stop()

	if err := out.Flush(); err != nil {
		return fmt.Errorf("writing data file: %v", err)
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
