// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goctf/ctf"
	"github.com/goctf/ctf/analysis"
	"github.com/goctf/ctf/cmd/internal/config"
	"github.com/goctf/ctf/cmd/internal/spinner"
	"github.com/spf13/pflag"
)

var printFlag = pflag.Bool("print", false, "print events as they're seen")

func init() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Utility that sanity-checks CTF traces\n")
		fmt.Fprintf(os.Stderr, "and prints some statistics.\n")
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

const maxErrors = 20

func run() error {
	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		return err
	}
	log := cfg.Logger()

	fmt.Println("Opening trace...")
	tr, err := ctf.Open(pflag.Arg(0), cfg.TraceOptions(log)...)
	if err != nil {
		return fmt.Errorf("opening trace: %v", err)
	}
	defer tr.Close()

	fmt.Println("Indexing packets...")
	spinner.Start(tr.IndexProgress, spinner.Format("Indexing... %.4f%%"))
	err = tr.IndexPackets()
	spinner.Stop()
	if err != nil {
		return err
	}

	fmt.Println("Reading events...")
	r := tr.NewReader()
	var pMu sync.Mutex
	spinner.Start(func() float64 {
		pMu.Lock()
		prog := r.Progress()
		pMu.Unlock()
		return prog
	}, spinner.Format("Processing... %.4f%%"))

	counter := analysis.NewCounter()
	order := analysis.NewOrderChecker(maxErrors)
	chain := analysis.Chain{counter, order}
	stats := analysis.NewStats()
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
		ev := r.Current()
		if *printFlag {
			fmt.Println(ev)
		}
		chain.Process(ev, stats)
	}
	spinner.Stop()

	if len(order.Violations) != 0 {
		if order.TooMany(stats) {
			fmt.Fprintf(os.Stderr, "found >%d errors in trace:\n", maxErrors)
		} else {
			fmt.Fprintf(os.Stderr, "found %d errors in trace:\n", len(order.Violations))
		}
		for _, v := range order.Violations {
			fmt.Fprintf(os.Stderr, "  %s\n", v)
		}
		if order.TooMany(stats) {
			fmt.Fprintf(os.Stderr, "too many errors\n")
		}
	}

	fmt.Printf("Events:   %s\n", humanize.Comma(int64(stats.Events)))
	fmt.Printf("Lost:     %s (%s records)\n", humanize.Comma(int64(stats.LostEvents)), humanize.Comma(int64(stats.LostRecords)))
	fmt.Printf("Duration: %v\n", time.Duration(stats.Duration()))
	fmt.Println("By stream:")
	for _, id := range counter.Streams() {
		fmt.Printf("  %-8d %s\n", id, humanize.Comma(int64(counter.Stream(id))))
	}
	fmt.Println("By CPU:")
	for _, cpu := range counter.CPUs() {
		fmt.Printf("  %-8d %s\n", cpu, humanize.Comma(int64(counter.CPU(cpu))))
	}
	fmt.Println("By name:")
	for _, name := range counter.Names() {
		fmt.Printf("  %-32s %s\n", name, humanize.Comma(int64(counter.Name(name))))
	}
	if len(order.Violations) != 0 {
		return errors.New("events out of order")
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
