// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spinner

import (
	"bytes"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestSpinner(t *testing.T) {
	var (
		buf  bytes.Buffer
		prog atomic.Int64
	)
	Start(func() float64 {
		return float64(prog.Load()) / 4
	}, Output(&buf), Period(time.Millisecond), Format("at %.0f%%"))
	for i := 0; i < 4; i++ {
		time.Sleep(5 * time.Millisecond)
		prog.Add(1)
	}
	Stop()

	out := buf.String()
	if !strings.HasPrefix(out, "at ") || !strings.Contains(out, "%\r") {
		t.Errorf("output %q has no progress line", out)
	}
	if !strings.HasSuffix(out, "at 100%\n") {
		t.Errorf("output %q does not end with the final progress", out)
	}

	// Stop without a running spinner does nothing, and a new spinner
	// can start.
	Stop()
	Start(func() float64 { return 1 }, Output(&buf))
	Stop()
}
