// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrMalformedTrace matches every *MalformedTraceError.
	ErrMalformedTrace = errors.New("malformed trace")

	// ErrDecode matches every *DecodeError.
	ErrDecode = errors.New("decode error")
)

// MalformedTraceError reports a trace whose structure is invalid: a
// bad packet magic, UUID or stream id, or packet sizes inconsistent
// with each other or with the file. It is fatal for the file.
type MalformedTraceError struct {
	File string
	// Offset is the byte offset of the offending packet.
	Offset int64
	Reason string
	Err    error
}

func (e *MalformedTraceError) Error() string {
	msg := fmt.Sprintf("%s: offset %d: %s", e.File, e.Offset, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedTraceError) Unwrap() error { return e.Err }

func (e *MalformedTraceError) Is(target error) bool { return target == ErrMalformedTrace }

func malformed(file string, off int64, format string, args ...any) error {
	return &MalformedTraceError{File: file, Offset: off, Reason: fmt.Sprintf(format, args...)}
}

// DecodeError reports an event that could not be decoded: an unknown
// event id, a missing length or tag field, or a read past the end of
// the packet. Events returned before it are unaffected.
type DecodeError struct {
	File string
	// Offset is the byte offset of the event in the file.
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: offset %d: %v", e.File, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
