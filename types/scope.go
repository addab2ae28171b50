// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import "strings"

// ScopeName names one of the six dynamic scopes of an event.
type ScopeName uint8

const (
	ScopeTracePacketHeader ScopeName = iota
	ScopeStreamPacketContext
	ScopeStreamEventHeader
	ScopeStreamEventContext
	ScopeEventContext
	ScopeEventFields
)

var scopePrefixes = [...]string{
	ScopeTracePacketHeader:   "trace.packet.header",
	ScopeStreamPacketContext: "stream.packet.context",
	ScopeStreamEventHeader:   "stream.event.header",
	ScopeStreamEventContext:  "stream.event.context",
	ScopeEventContext:        "event.context",
	ScopeEventFields:         "event.fields",
}

func (s ScopeName) String() string {
	if int(s) < len(scopePrefixes) {
		return scopePrefixes[s]
	}
	return "unknown scope"
}

// Scope is the stack of already-decoded dynamic scopes that field
// references (sequence lengths and variant tags) resolve against.
//
// The zero value is an empty scope.
type Scope struct {
	frames []frame
}

type frame struct {
	name ScopeName
	def  *Definition
}

// Push adds a decoded scope as the innermost frame.
func (s *Scope) Push(name ScopeName, def *Definition) {
	s.frames = append(s.frames, frame{name, def})
}

// Depth returns the number of frames.
func (s *Scope) Depth() int { return len(s.frames) }

// Truncate drops all frames above depth n.
func (s *Scope) Truncate(n int) {
	clear(s.frames[n:])
	s.frames = s.frames[:n]
}

// Get returns the innermost frame with the given name, or nil.
func (s *Scope) Get(name ScopeName) *Definition {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].name == name {
			return s.frames[i].def
		}
	}
	return nil
}

// Lookup resolves a field reference. A path starting with one of the
// absolute scope prefixes, such as "stream.packet.context.", is
// resolved in that scope only. Any other path is resolved relative
// to each frame, innermost first.
func (s *Scope) Lookup(path string) *Definition {
	for name, prefix := range scopePrefixes {
		if rest, ok := strings.CutPrefix(path, prefix+"."); ok {
			return s.Get(ScopeName(name)).Lookup(rest)
		}
	}
	parts := strings.Split(path, ".")
	for i := len(s.frames) - 1; i >= 0; i-- {
		if d := s.frames[i].def.lookup(parts); d != nil {
			return d
		}
	}
	return nil
}
