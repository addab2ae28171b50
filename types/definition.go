// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"fmt"
	"strings"
)

// Definition is a decoded field.
type Definition struct {
	Decl Declaration
	Name string

	// Offset is the bit position of the field in its buffer, after
	// alignment.
	Offset int64

	bits   uint64
	float  float64
	str    string
	label  string
	fields []*Definition
}

// Kind returns the kind of the field's declaration.
func (d *Definition) Kind() Kind { return d.Decl.Kind() }

// Int returns the value of an integer or enum field as a signed
// integer. Unsigned 64-bit values above math.MaxInt64 wrap.
func (d *Definition) Int() int64 { return int64(d.bits) }

// Uint returns the raw value of an integer or enum field.
func (d *Definition) Uint() uint64 { return d.bits }

// Float returns the value of a floating point field.
func (d *Definition) Float() float64 { return d.float }

// Text returns the value of a string field or of a text array or
// sequence.
func (d *Definition) Text() string { return d.str }

// Label returns the label of an enum value or the name of the
// selected variant choice.
func (d *Definition) Label() string { return d.label }

// Len returns the number of children: the fields of a struct or the
// elements of an array or sequence.
func (d *Definition) Len() int { return len(d.fields) }

// Elem returns the i'th child.
func (d *Definition) Elem(i int) *Definition { return d.fields[i] }

// Fields returns the children of the definition.
func (d *Definition) Fields() []*Definition { return d.fields }

// Selected returns the decoded choice of a variant.
func (d *Definition) Selected() *Definition {
	if d.Kind() != KindVariant || len(d.fields) == 0 {
		return nil
	}
	return d.fields[0]
}

// Field returns the named field of a struct, looking through
// variants to their selected choice. It returns nil if there is no
// such field.
func (d *Definition) Field(name string) *Definition {
	if d == nil {
		return nil
	}
	switch d.Kind() {
	case KindStruct:
		for _, f := range d.fields {
			if f.Name == name {
				return f
			}
		}
	case KindVariant:
		return d.Selected().Field(name)
	}
	return nil
}

// Lookup resolves a dot-separated path relative to d.
func (d *Definition) Lookup(path string) *Definition {
	return d.lookup(strings.Split(path, "."))
}

func (d *Definition) lookup(parts []string) *Definition {
	for _, p := range parts {
		d = d.Field(p)
		if d == nil {
			return nil
		}
	}
	return d
}

// Value returns the decoded value as a plain Go value: int64 or
// uint64 for integers, the label (or the integer if unmapped) for
// enums, float64, string, map[string]any for structs and []any for
// lists. Variants return the value of their selected choice.
func (d *Definition) Value() any {
	switch decl := d.Decl.(type) {
	case *Integer:
		if decl.Signed {
			return int64(d.bits)
		}
		return d.bits
	case *Enum:
		if d.label != "" {
			return d.label
		}
		if decl.Container.Signed {
			return int64(d.bits)
		}
		return d.bits
	case *Float:
		return d.float
	case *String:
		return d.str
	case *Struct:
		m := make(map[string]any, len(d.fields))
		for _, f := range d.fields {
			m[f.Name] = f.Value()
		}
		return m
	case *Variant:
		if s := d.Selected(); s != nil {
			return s.Value()
		}
		return nil
	case *Array:
		if isText(decl.Elem) {
			return d.str
		}
	case *Sequence:
		if isText(decl.Elem) {
			return d.str
		}
	}
	s := make([]any, len(d.fields))
	for i, f := range d.fields {
		s[i] = f.Value()
	}
	return s
}

func (d *Definition) String() string {
	var sb strings.Builder
	d.format(&sb)
	return sb.String()
}

func (d *Definition) format(sb *strings.Builder) {
	switch decl := d.Decl.(type) {
	case *Integer:
		switch {
		case decl.Base == 16:
			fmt.Fprintf(sb, "%#x", d.bits)
		case decl.Signed:
			fmt.Fprintf(sb, "%d", int64(d.bits))
		default:
			fmt.Fprintf(sb, "%d", d.bits)
		}
	case *Enum:
		fmt.Fprintf(sb, "( %q : container = %d )", d.label, int64(d.bits))
	case *Float:
		fmt.Fprintf(sb, "%g", d.float)
	case *String:
		fmt.Fprintf(sb, "%q", d.str)
	case *Struct:
		sb.WriteString("{ ")
		for i, f := range d.fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Name)
			sb.WriteString(" = ")
			f.format(sb)
		}
		sb.WriteString(" }")
	case *Variant:
		if s := d.Selected(); s != nil {
			s.format(sb)
		}
	default:
		if d.fields == nil {
			fmt.Fprintf(sb, "%q", d.str)
			return
		}
		sb.WriteString("[ ")
		for i, f := range d.fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			f.format(sb)
		}
		sb.WriteString(" ]")
	}
}
