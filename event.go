// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goctf/ctf/metadata"
)

// EventKind indicates whether an event was recorded or stands for
// events the tracer discarded.
type EventKind uint8

const (
	EventRegular EventKind = iota // Recorded event.
	EventLost                     // Placeholder for discarded events.
)

func (k EventKind) String() string {
	switch k {
	case EventRegular:
		return "regular"
	case EventLost:
		return "lost"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event represents a single trace event.
type Event struct {
	// Timestamp is the time of the event in nanoseconds, converted
	// from clock cycles with the stream's clock.
	Timestamp int64

	// Cycles is the raw timestamp of the event in clock cycles, with
	// compact timestamps expanded to 64 bits.
	Cycles uint64

	// ID and Name identify the event class. Lost event records have
	// ID metadata.LostEventID.
	ID   int64
	Name string

	// StreamID is the stream class of the event.
	StreamID int64

	// CPU is the CPU of the packet holding the event, or -1 if the
	// packet context does not say.
	CPU int

	// Kind indicates what kind of event this is.
	Kind EventKind

	// Lost is the number of discarded events the record stands for.
	// Only valid when Kind == EventLost.
	Lost uint64

	// Input is the name of the stream file holding the event.
	Input string

	// Offset is the byte offset of the event in the stream file. For
	// lost event records it is the offset of the packet.
	Offset int64

	// Decl is the event class.
	Decl *metadata.Event

	// Context holds the stream event context and event context
	// fields by name, and Fields the payload fields. Values are as
	// returned by types.Definition.Value.
	Context map[string]any
	Fields  map[string]any
}

func (e *Event) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] %s cpu=%d stream=%d", e.Timestamp, e.Name, e.CPU, e.StreamID)
	if e.Kind == EventLost {
		fmt.Fprintf(&sb, " lost=%d", e.Lost)
	}
	writeFields(&sb, e.Context)
	writeFields(&sb, e.Fields)
	return sb.String()
}

func writeFields(sb *strings.Builder, m map[string]any) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(sb, " %s=%v", name, m[name])
	}
}
