// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestCheckFlags(t *testing.T) {
	for _, tc := range []struct {
		args []string
		ok   bool
	}{
		{[]string{"trace"}, true},
		{[]string{"--count", "5", "--rank", "3", "trace"}, true},
		{[]string{"-n", "0", "trace"}, true},
		{[]string{"--count=-1", "trace"}, false},
		{[]string{"--count", "1"}, false},
		{[]string{"--count", "1", "a", "b"}, false},
	} {
		if err := pflag.CommandLine.Parse(tc.args); err != nil {
			t.Fatalf("Parse(%v): %v", tc.args, err)
		}
		if err := checkFlags(); (err == nil) != tc.ok {
			t.Errorf("checkFlags after %v = %v, want ok=%v", tc.args, err, tc.ok)
		}
	}
}

func TestUsage(t *testing.T) {
	// Usage writes to standard error.
	if pflag.Lookup("index-dir") == nil || pflag.Lookup("count") == nil {
		t.Fatal("flags not registered")
	}
	pflag.Usage()
}
