// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package types describes CTF field layouts and decodes them from
// packet data.
//
// A Declaration is the layout of a field as written in the trace
// metadata. Decoding a Declaration against a bit buffer yields a
// Definition, which carries the decoded value and, for compound
// types, the definitions of its children.
package types

import (
	"fmt"

	"github.com/goctf/ctf/bitbuf"
)

// Kind identifies the variant of a Declaration.
type Kind uint8

const (
	KindInteger Kind = iota + 1
	KindFloat
	KindString
	KindEnum
	KindStruct
	KindVariant
	KindArray
	KindSequence
)

var kindNames = [...]string{
	KindInteger:  "integer",
	KindFloat:    "floating_point",
	KindString:   "string",
	KindEnum:     "enum",
	KindStruct:   "struct",
	KindVariant:  "variant",
	KindArray:    "array",
	KindSequence: "sequence",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Encoding is the character encoding of strings and of byte-sized
// integers used as characters.
type Encoding uint8

const (
	EncodingNone Encoding = iota
	EncodingUTF8
	EncodingASCII
)

// Declaration is the layout of a field. The set of implementations
// is closed: *Integer, *Float, *String, *Enum, *Struct, *Variant,
// *Array and *Sequence.
type Declaration interface {
	Kind() Kind

	// Alignment returns the alignment of the field in bits.
	Alignment() int64

	declaration()
}

// Integer is a fixed-width integer of 1 to 64 bits.
type Integer struct {
	Size     int
	Align    int64
	Signed   bool
	Order    bitbuf.ByteOrder
	Base     int
	Encoding Encoding

	// Clock is the name of the clock this integer is mapped to, or
	// empty.
	Clock string
}

func (d *Integer) Kind() Kind { return KindInteger }

func (d *Integer) Alignment() int64 {
	if d.Align > 0 {
		return d.Align
	}
	if d.Size%8 == 0 {
		return 8
	}
	return 1
}

func (*Integer) declaration() {}

// IsChar reports whether the integer holds encoded characters.
func (d *Integer) IsChar() bool {
	return d.Size == 8 && d.Encoding != EncodingNone
}

// Float is an IEEE 754 binary floating point number described by its
// exponent and mantissa sizes. Only the 32 and 64 bit layouts are
// decoded.
type Float struct {
	ExpDig  int
	MantDig int
	Align   int64
	Order   bitbuf.ByteOrder
}

func (d *Float) Kind() Kind { return KindFloat }

func (d *Float) Alignment() int64 {
	if d.Align > 0 {
		return d.Align
	}
	return 8
}

func (*Float) declaration() {}

// Size returns the size of the float in bits.
func (d *Float) Size() int { return d.ExpDig + d.MantDig }

// String is a NUL-terminated byte string.
type String struct {
	Encoding Encoding
}

func (d *String) Kind() Kind        { return KindString }
func (d *String) Alignment() int64 { return 8 }
func (*String) declaration()        {}

// Mapping associates an inclusive range of values with a label.
type Mapping struct {
	Label     string
	Low, High int64
}

// Enum is an integer whose values map to labels.
type Enum struct {
	Container *Integer
	Mappings  []Mapping
}

func (d *Enum) Kind() Kind        { return KindEnum }
func (d *Enum) Alignment() int64 { return d.Container.Alignment() }
func (*Enum) declaration()        {}

// Label returns the label of the first mapping containing v.
func (d *Enum) Label(v int64) (string, bool) {
	for _, m := range d.Mappings {
		if v >= m.Low && v <= m.High {
			return m.Label, true
		}
	}
	return "", false
}

// Value returns the low value of the mapping with the given label.
func (d *Enum) Value(label string) (int64, bool) {
	for _, m := range d.Mappings {
		if m.Label == label {
			return m.Low, true
		}
	}
	return 0, false
}

// Field is a named member of a struct or a choice of a variant.
type Field struct {
	Name string
	Decl Declaration
}

// Struct is an ordered list of named fields.
type Struct struct {
	Fields []Field

	// MinAlign is an explicit minimum alignment in bits, as set by
	// align(N) in the metadata.
	MinAlign int64
}

func (d *Struct) Kind() Kind { return KindStruct }

func (d *Struct) Alignment() int64 {
	align := max(d.MinAlign, 1)
	for _, f := range d.Fields {
		align = max(align, f.Decl.Alignment())
	}
	return align
}

func (*Struct) declaration() {}

// Field returns the declaration of the named field.
func (d *Struct) Field(name string) (Declaration, bool) {
	if i := d.Index(name); i >= 0 {
		return d.Fields[i].Decl, true
	}
	return nil, false
}

// Index returns the position of the named field, or -1.
func (d *Struct) Index(name string) int {
	for i, f := range d.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Variant is a tagged union. The tag names an enum field, found by
// scope lookup at decode time, whose label selects the choice.
type Variant struct {
	Tag     string
	Choices []Field
}

func (d *Variant) Kind() Kind        { return KindVariant }
func (d *Variant) Alignment() int64 { return 1 }
func (*Variant) declaration()        {}

// Choice returns the declaration selected by label.
func (d *Variant) Choice(label string) (Declaration, bool) {
	for _, c := range d.Choices {
		if c.Name == label {
			return c.Decl, true
		}
	}
	return nil, false
}

// WithTag returns a copy of the variant using a different tag.
func (d *Variant) WithTag(tag string) *Variant {
	v := *d
	v.Tag = tag
	return &v
}

// Array is a fixed-length list of elements.
type Array struct {
	Elem   Declaration
	Length int
}

func (d *Array) Kind() Kind        { return KindArray }
func (d *Array) Alignment() int64 { return d.Elem.Alignment() }
func (*Array) declaration()        {}

// Sequence is a list whose length is read from the integer field
// named by LengthRef.
type Sequence struct {
	Elem      Declaration
	LengthRef string
}

func (d *Sequence) Kind() Kind        { return KindSequence }
func (d *Sequence) Alignment() int64 { return d.Elem.Alignment() }
func (*Sequence) declaration()        {}

// isText reports whether a list of elem decodes as a string.
func isText(elem Declaration) bool {
	i, ok := elem.(*Integer)
	return ok && i.IsChar()
}
