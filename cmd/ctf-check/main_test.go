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
		{[]string{"--print", "--index-backend", "memory", "trace"}, true},
		{nil, false},
		{[]string{"a", "b"}, false},
	} {
		if err := pflag.CommandLine.Parse(tc.args); err != nil {
			t.Fatalf("Parse(%v): %v", tc.args, err)
		}
		if err := checkFlags(); (err == nil) != tc.ok {
			t.Errorf("checkFlags after %v = %v, want ok=%v", tc.args, err, tc.ok)
		}
	}
	pflag.Usage()
}
