// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/goctf/ctf/bitbuf"
)

var (
	// ErrFieldNotFound is returned when a sequence length or variant
	// tag reference does not resolve.
	ErrFieldNotFound = errors.New("referenced field not found")

	// ErrBadTag is returned when a variant tag is not an enum or its
	// label selects no choice.
	ErrBadTag = errors.New("invalid variant tag")

	// ErrUnsupported is returned for layouts this package cannot
	// decode.
	ErrUnsupported = errors.New("unsupported declaration")
)

// DecodeError reports a failure to decode a field.
type DecodeError struct {
	// Path is the dotted name of the field being decoded.
	Path string
	// Bit is the buffer position at which decoding failed.
	Bit int64
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s at bit %d: %v", e.Path, e.Bit, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode reads a field laid out by decl from buf, aligning the
// buffer first. References inside decl are resolved against the
// fields of the enclosing structs decoded so far, innermost first,
// and then against scope.
func Decode(decl Declaration, name string, scope *Scope, buf *bitbuf.Buffer) (*Definition, error) {
	d := decoder{buf: buf, scope: scope}
	return d.decode(decl, name)
}

type decoder struct {
	buf   *bitbuf.Buffer
	scope *Scope

	// open holds the structs being decoded, innermost last.
	open []*Definition
	path []string
}

func (d *decoder) errorf(err error) error {
	return &DecodeError{Path: strings.Join(d.path, "."), Bit: d.buf.Position(), Err: err}
}

// lookup resolves a reference from inside the struct being decoded.
func (d *decoder) lookup(ref string) *Definition {
	parts := strings.Split(ref, ".")
	for i := len(d.open) - 1; i >= 0; i-- {
		if def := d.open[i].lookup(parts); def != nil {
			return def
		}
	}
	if d.scope == nil {
		return nil
	}
	return d.scope.Lookup(ref)
}

func (d *decoder) decode(decl Declaration, name string) (*Definition, error) {
	d.path = append(d.path, name)
	defer func() { d.path = d.path[:len(d.path)-1] }()

	if err := d.buf.Align(decl.Alignment()); err != nil {
		return nil, d.errorf(err)
	}
	def := &Definition{Decl: decl, Name: name, Offset: d.buf.Position()}
	switch decl := decl.(type) {
	case *Integer:
		v, err := d.buf.ReadOrder(decl.Size, decl.Signed, decl.Order)
		if err != nil {
			return nil, d.errorf(err)
		}
		def.bits = v
	case *Enum:
		c := decl.Container
		v, err := d.buf.ReadOrder(c.Size, c.Signed, c.Order)
		if err != nil {
			return nil, d.errorf(err)
		}
		def.bits = v
		def.label, _ = decl.Label(int64(v))
	case *Float:
		v, err := d.buf.ReadOrder(decl.Size(), false, decl.Order)
		if err != nil {
			return nil, d.errorf(err)
		}
		switch decl.Size() {
		case 32:
			def.float = float64(math.Float32frombits(uint32(v)))
		case 64:
			def.float = math.Float64frombits(v)
		default:
			return nil, d.errorf(errors.Wrapf(ErrUnsupported, "%d-bit float", decl.Size()))
		}
		def.bits = v
	case *String:
		s, err := d.buf.ReadCString()
		if err != nil {
			return nil, d.errorf(err)
		}
		def.str = s
	case *Struct:
		def.fields = make([]*Definition, 0, len(decl.Fields))
		d.open = append(d.open, def)
		for _, f := range decl.Fields {
			fd, err := d.decode(f.Decl, f.Name)
			if err != nil {
				d.open = d.open[:len(d.open)-1]
				return nil, err
			}
			def.fields = append(def.fields, fd)
		}
		d.open = d.open[:len(d.open)-1]
	case *Variant:
		tag := d.lookup(decl.Tag)
		if tag == nil {
			return nil, d.errorf(errors.Wrapf(ErrFieldNotFound, "variant tag %q", decl.Tag))
		}
		if tag.Kind() != KindEnum {
			return nil, d.errorf(errors.Wrapf(ErrBadTag, "tag %q is a %v", decl.Tag, tag.Kind()))
		}
		choice, ok := decl.Choice(tag.label)
		if !ok {
			return nil, d.errorf(errors.Wrapf(ErrBadTag, "no choice for %q = %d", decl.Tag, tag.Int()))
		}
		cd, err := d.decode(choice, tag.label)
		if err != nil {
			return nil, err
		}
		def.label = tag.label
		def.fields = []*Definition{cd}
	case *Array:
		if err := d.decodeList(def, decl.Elem, decl.Length); err != nil {
			return nil, err
		}
	case *Sequence:
		ld := d.lookup(decl.LengthRef)
		if ld == nil {
			return nil, d.errorf(errors.Wrapf(ErrFieldNotFound, "sequence length %q", decl.LengthRef))
		}
		if ld.Kind() != KindInteger {
			return nil, d.errorf(errors.Newf("sequence length %q is a %v", decl.LengthRef, ld.Kind()))
		}
		n := ld.Uint()
		if n > uint64(d.buf.Remaining()) {
			return nil, d.errorf(errors.Wrapf(bitbuf.ErrOutOfBounds, "sequence of %d elements", n))
		}
		if err := d.decodeList(def, decl.Elem, int(n)); err != nil {
			return nil, err
		}
	default:
		return nil, d.errorf(errors.Wrapf(ErrUnsupported, "%T", decl))
	}
	return def, nil
}

func (d *decoder) decodeList(def *Definition, elem Declaration, n int) error {
	if isText(elem) {
		if err := d.buf.Align(elem.Alignment()); err != nil {
			return d.errorf(err)
		}
		p, err := d.buf.ReadBytes(n)
		if err != nil {
			return d.errorf(err)
		}
		if i := bytes.IndexByte(p, 0); i >= 0 {
			p = p[:i]
		}
		def.str = string(p)
		return nil
	}
	def.fields = make([]*Definition, 0, n)
	for i := 0; i < n; i++ {
		ed, err := d.decode(elem, fmt.Sprintf("[%d]", i))
		if err != nil {
			return err
		}
		def.fields = append(def.fields, ed)
	}
	return nil
}
