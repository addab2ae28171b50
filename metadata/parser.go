// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metadata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/goctf/ctf/bitbuf"
	"github.com/goctf/ctf/types"
	"github.com/google/uuid"
)

// Parse parses TSDL metadata text.
func Parse(text string) (*Trace, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{
		toks:     toks,
		aliases:  make(map[string]types.Declaration),
		structs:  make(map[string]*types.Struct),
		variants: make(map[string]*types.Variant),
		enums:    make(map[string]*types.Enum),
		trace: &Trace{
			ByteOrder: bitbuf.LittleEndian,
			Env:       make(map[string]any),
			Clocks:    make(map[string]*Clock),
			Streams:   make(map[int64]*Stream),
		},
	}
	for p.peek().kind != tokEOF {
		if err := p.parseTopLevel(); err != nil {
			return nil, err
		}
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return p.trace, nil
}

type parser struct {
	toks []token
	pos  int

	aliases  map[string]types.Declaration
	structs  map[string]*types.Struct
	variants map[string]*types.Variant
	enums    map[string]*types.Enum

	// native holds the integers and floats declared without an
	// explicit byte order. They take the trace's byte order once it
	// is known.
	native []types.Declaration

	trace        *Trace
	byteOrderSet bool
	unsetStream  bool
	events       []pendingEvent
}

// pendingEvent is an event block waiting for its stream to be known.
type pendingEvent struct {
	ev       *Event
	streamID int64
	line     int
}

// attr is a "name = value;" or "name := type;" statement.
type attr struct {
	name string
	line int
	decl types.Declaration
	val  value
}

type value struct {
	kind tokenKind
	u    uint64
	neg  bool
	s    string
}

func (p *parser) peek() token { return p.peekN(0) }

func (p *parser) peekN(n int) token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) is(text string) bool {
	t := p.peek()
	return (t.kind == tokPunct || t.kind == tokIdent) && t.text == text
}

func (p *parser) accept(text string) bool {
	if p.is(text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.accept(text) {
		return p.errorf("expected %q, found %v", text, p.peek())
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.peek().line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseTopLevel() error {
	t := p.peek()
	if t.kind != tokIdent {
		return p.errorf("unexpected %v", t)
	}
	switch t.text {
	case "typealias":
		return p.parseTypealias()
	case "typedef":
		return p.parseTypedef()
	case "trace":
		p.next()
		return p.parseBlock(p.traceAttr)
	case "env":
		p.next()
		return p.parseBlock(p.envAttr)
	case "clock":
		p.next()
		c := &Clock{Freq: nsPerSec}
		if err := p.parseBlock(func(a *attr) error { return clockAttr(c, a) }); err != nil {
			return err
		}
		if c.Name == "" {
			return &ParseError{Line: t.line, Msg: "clock without a name"}
		}
		p.trace.Clocks[c.Name] = c
		return nil
	case "stream":
		p.next()
		s := newStream(UnsetID)
		if err := p.parseBlock(func(a *attr) error { return streamAttr(s, a) }); err != nil {
			return err
		}
		return p.addStream(s, t.line)
	case "event":
		p.next()
		pe := pendingEvent{ev: &Event{ID: UnsetID, StreamID: UnsetID, LogLevel: -1}, streamID: UnsetID, line: t.line}
		if err := p.parseBlock(func(a *attr) error { return eventAttr(&pe, a) }); err != nil {
			return err
		}
		p.events = append(p.events, pe)
		return nil
	case "callsite":
		p.next()
		return p.parseBlock(func(*attr) error { return nil })
	}
	// A named type declaration such as "struct name { ... };".
	if _, err := p.parseTypeSpec(); err != nil {
		return err
	}
	return p.expect(";")
}

func (p *parser) addStream(s *Stream, line int) error {
	if p.unsetStream {
		return &ParseError{Line: line, Msg: "multiple streams declared but one has no id"}
	}
	if s.ID == UnsetID {
		if len(p.trace.Streams) != 0 {
			return &ParseError{Line: line, Msg: "stream without id in a trace with multiple streams"}
		}
		p.unsetStream = true
		s.ID = 0
	}
	if _, dup := p.trace.Streams[s.ID]; dup {
		return &ParseError{Line: line, Msg: fmt.Sprintf("duplicate stream id %d", s.ID)}
	}
	p.trace.Streams[s.ID] = s
	return nil
}

// parseBlock parses "{ attr; ... };".
func (p *parser) parseBlock(f func(a *attr) error) error {
	if err := p.parseAttrList(f); err != nil {
		return err
	}
	return p.expect(";")
}

// parseAttrList parses "{ attr; ... }".
func (p *parser) parseAttrList(f func(a *attr) error) error {
	if err := p.expect("{"); err != nil {
		return err
	}
	for !p.accept("}") {
		switch {
		case p.peek().kind == tokEOF:
			return p.errorf("unexpected end of file in block")
		case p.is("typealias"):
			if err := p.parseTypealias(); err != nil {
				return err
			}
		case p.is("typedef"):
			if err := p.parseTypedef(); err != nil {
				return err
			}
		default:
			a, err := p.parseAttr()
			if err != nil {
				return err
			}
			if err := f(a); err != nil {
				var pe *ParseError
				if errors.As(err, &pe) {
					return err
				}
				return &ParseError{Line: a.line, Msg: a.name, Err: err}
			}
		}
	}
	return nil
}

func (p *parser) parseAttr() (*attr, error) {
	a := &attr{line: p.peek().line}
	name, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	a.name = name
	switch {
	case p.accept(":="):
		a.decl, err = p.parseTypeSpec()
	case p.accept("="):
		a.val, err = p.parseValue()
	default:
		return nil, p.errorf("expected = or := after %s", name)
	}
	if err != nil {
		return nil, err
	}
	return a, p.expect(";")
}

// parsePath parses a dotted identifier.
func (p *parser) parsePath() (string, error) {
	t := p.next()
	if t.kind != tokIdent {
		return "", &ParseError{Line: t.line, Msg: fmt.Sprintf("expected identifier, found %v", t)}
	}
	path := t.text
	for p.is(".") && p.peekN(1).kind == tokIdent {
		p.next()
		path += "." + p.next().text
	}
	return path, nil
}

func (p *parser) parseValue() (value, error) {
	neg := p.accept("-")
	t := p.peek()
	switch t.kind {
	case tokInt:
		p.next()
		u, err := parseInt(t.text)
		if err != nil {
			return value{}, &ParseError{Line: t.line, Msg: err.Error()}
		}
		return value{kind: tokInt, u: u, neg: neg}, nil
	case tokString:
		if !neg {
			p.next()
			return value{kind: tokString, s: t.text}, nil
		}
	case tokIdent:
		if !neg {
			path, err := p.parsePath()
			return value{kind: tokIdent, s: path}, err
		}
	}
	return value{}, p.errorf("expected value, found %v", t)
}

func (p *parser) parseSigned() (int64, error) {
	v, err := p.parseValue()
	if err != nil {
		return 0, err
	}
	if v.kind != tokInt {
		return 0, p.errorf("expected integer")
	}
	return v.int(), nil
}

func parseInt(s string) (uint64, error) {
	s = strings.TrimRight(s, "uUlL")
	u, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer literal %q", s)
	}
	return u, nil
}

func (v value) int() int64 {
	if v.neg {
		return -int64(v.u)
	}
	return int64(v.u)
}

func (a *attr) int() (int64, error) {
	if a.decl != nil || a.val.kind != tokInt {
		return 0, errors.New("expected an integer")
	}
	return a.val.int(), nil
}

func (a *attr) uint() (uint64, error) {
	if a.decl != nil || a.val.kind != tokInt || a.val.neg {
		return 0, errors.New("expected an unsigned integer")
	}
	return a.val.u, nil
}

func (a *attr) str() (string, error) {
	if a.decl != nil || (a.val.kind != tokString && a.val.kind != tokIdent) {
		return "", errors.New("expected a string")
	}
	return a.val.s, nil
}

func (a *attr) bool() (bool, error) {
	if a.decl == nil {
		switch a.val.kind {
		case tokInt:
			return a.val.u != 0, nil
		case tokIdent:
			switch strings.ToLower(a.val.s) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
	}
	return false, errors.New("expected a boolean")
}

// byteOrder returns the order named by the attribute, or native=true.
func (a *attr) byteOrder() (order bitbuf.ByteOrder, native bool, err error) {
	s, err := a.str()
	if err != nil {
		return 0, false, err
	}
	switch s {
	case "le", "little":
		return bitbuf.LittleEndian, false, nil
	case "be", "big", "network":
		return bitbuf.BigEndian, false, nil
	case "native":
		return 0, true, nil
	}
	return 0, false, errors.Newf("unknown byte order %q", s)
}

func (a *attr) structDecl() (*types.Struct, error) {
	s, ok := a.decl.(*types.Struct)
	if !ok {
		return nil, errors.New("expected a struct type")
	}
	return s, nil
}

func (p *parser) traceAttr(a *attr) error {
	var err error
	switch a.name {
	case "major":
		var v int64
		v, err = a.int()
		p.trace.Major = int(v)
	case "minor":
		var v int64
		v, err = a.int()
		p.trace.Minor = int(v)
	case "uuid":
		var s string
		if s, err = a.str(); err == nil {
			p.trace.UUID, err = uuid.Parse(s)
			p.trace.HasUUID = err == nil
		}
	case "byte_order":
		var native bool
		p.trace.ByteOrder, native, err = a.byteOrder()
		if err == nil && native {
			err = errors.New("trace byte order cannot be native")
		}
		p.byteOrderSet = err == nil
	case "packet.header":
		p.trace.PacketHeader, err = a.structDecl()
	}
	return err
}

func (p *parser) envAttr(a *attr) error {
	switch a.val.kind {
	case tokInt:
		p.trace.Env[a.name] = a.val.int()
	case tokString, tokIdent:
		p.trace.Env[a.name] = a.val.s
	default:
		return errors.New("expected an integer or string")
	}
	return nil
}

func clockAttr(c *Clock, a *attr) error {
	var err error
	switch a.name {
	case "name":
		c.Name, err = a.str()
	case "uuid":
		var s string
		if s, err = a.str(); err == nil {
			c.UUID, err = uuid.Parse(s)
		}
	case "description":
		c.Description, err = a.str()
	case "freq":
		c.Freq, err = a.uint()
		if err == nil && c.Freq == 0 {
			err = errors.New("clock frequency must be positive")
		}
	case "precision":
		c.Precision, err = a.uint()
	case "offset_s":
		c.OffsetS, err = a.int()
	case "offset":
		c.Offset, err = a.uint()
	case "absolute":
		c.Absolute, err = a.bool()
	}
	return err
}

func streamAttr(s *Stream, a *attr) error {
	var err error
	switch a.name {
	case "id":
		s.ID, err = a.int()
	case "packet.context":
		s.PacketContext, err = a.structDecl()
	case "event.header":
		s.EventHeader, err = a.structDecl()
	case "event.context":
		s.EventContext, err = a.structDecl()
	}
	return err
}

func eventAttr(pe *pendingEvent, a *attr) error {
	var err error
	switch a.name {
	case "name":
		pe.ev.Name, err = a.str()
	case "id":
		pe.ev.ID, err = a.int()
	case "stream_id":
		pe.streamID, err = a.int()
	case "loglevel":
		pe.ev.LogLevel, err = a.int()
	case "context":
		pe.ev.Context, err = a.structDecl()
	case "fields":
		pe.ev.Fields, err = a.structDecl()
	}
	return err
}

func (p *parser) parseTypealias() error {
	p.next()
	decl, err := p.parseTypeSpec()
	if err != nil {
		return err
	}
	if err := p.expect(":="); err != nil {
		return err
	}
	var words []string
	for p.peek().kind == tokIdent {
		words = append(words, p.next().text)
	}
	if len(words) == 0 {
		return p.errorf("expected alias name")
	}
	p.aliases[strings.Join(words, " ")] = decl
	return p.expect(";")
}

func (p *parser) parseTypedef() error {
	p.next()
	decl, err := p.parseTypeSpec()
	if err != nil {
		return err
	}
	for {
		name, d, err := p.parseDeclarator(decl)
		if err != nil {
			return err
		}
		p.aliases[name] = d
		if !p.accept(",") {
			break
		}
	}
	return p.expect(";")
}

func (p *parser) parseTypeSpec() (types.Declaration, error) {
	for p.accept("const") || p.accept("volatile") {
	}
	t := p.peek()
	if t.kind != tokIdent {
		return nil, p.errorf("expected type, found %v", t)
	}
	switch t.text {
	case "integer":
		p.next()
		return p.parseInteger()
	case "floating_point":
		p.next()
		return p.parseFloat()
	case "string":
		p.next()
		return p.parseString()
	case "struct":
		p.next()
		return p.parseStruct()
	case "variant":
		p.next()
		return p.parseVariant()
	case "enum":
		p.next()
		return p.parseEnum()
	}
	name, ok := p.aliasPrefix()
	if !ok {
		return nil, p.errorf("unknown type %v", t)
	}
	return p.aliases[name], nil
}

// aliasPrefix consumes the longest run of identifiers that names a
// type alias, so that "unsigned long x" resolves "unsigned long".
func (p *parser) aliasPrefix() (string, bool) {
	var best, name string
	bestN := 0
	for n := 0; p.peekN(n).kind == tokIdent; n++ {
		if n > 0 {
			name += " "
		}
		name += p.peekN(n).text
		if _, ok := p.aliases[name]; ok {
			best, bestN = name, n+1
		}
	}
	if bestN == 0 {
		return "", false
	}
	p.pos += bestN
	return best, true
}

func (p *parser) parseInteger() (types.Declaration, error) {
	d := &types.Integer{Base: 10}
	native := true
	line := p.peek().line
	err := p.parseAttrList(func(a *attr) error {
		var err error
		switch a.name {
		case "size":
			var v int64
			v, err = a.int()
			d.Size = int(v)
		case "align":
			d.Align, err = a.int()
		case "signed":
			d.Signed, err = a.bool()
		case "byte_order":
			d.Order, native, err = a.byteOrder()
		case "base":
			d.Base, err = base(a)
		case "encoding":
			d.Encoding, err = encoding(a)
		case "map":
			var s string
			if s, err = a.str(); err == nil {
				d.Clock = strings.TrimSuffix(strings.TrimPrefix(s, "clock."), ".value")
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if d.Size <= 0 || d.Size > 64 {
		return nil, &ParseError{Line: line, Msg: fmt.Sprintf("integer size %d out of range", d.Size)}
	}
	if native {
		p.native = append(p.native, d)
	}
	return d, nil
}

func base(a *attr) (int, error) {
	if a.val.kind == tokInt {
		switch a.val.u {
		case 2, 8, 10, 16:
			return int(a.val.u), nil
		}
		return 0, errors.Newf("invalid base %d", a.val.u)
	}
	s, err := a.str()
	if err != nil {
		return 0, err
	}
	switch s {
	case "decimal", "dec", "d", "i", "u":
		return 10, nil
	case "hexadecimal", "hex", "x", "X", "p":
		return 16, nil
	case "octal", "oct", "o":
		return 8, nil
	case "binary", "b":
		return 2, nil
	}
	return 0, errors.Newf("invalid base %q", s)
}

func encoding(a *attr) (types.Encoding, error) {
	s, err := a.str()
	if err != nil {
		return 0, err
	}
	switch strings.ToLower(s) {
	case "none":
		return types.EncodingNone, nil
	case "utf8":
		return types.EncodingUTF8, nil
	case "ascii":
		return types.EncodingASCII, nil
	}
	return 0, errors.Newf("unknown encoding %q", s)
}

func (p *parser) parseFloat() (types.Declaration, error) {
	d := &types.Float{}
	native := true
	line := p.peek().line
	err := p.parseAttrList(func(a *attr) error {
		var err error
		var v int64
		switch a.name {
		case "exp_dig":
			v, err = a.int()
			d.ExpDig = int(v)
		case "mant_dig":
			v, err = a.int()
			d.MantDig = int(v)
		case "align":
			d.Align, err = a.int()
		case "byte_order":
			d.Order, native, err = a.byteOrder()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if d.ExpDig <= 0 || d.MantDig <= 0 {
		return nil, &ParseError{Line: line, Msg: "floating_point needs exp_dig and mant_dig"}
	}
	if native {
		p.native = append(p.native, d)
	}
	return d, nil
}

func (p *parser) parseString() (types.Declaration, error) {
	d := &types.String{Encoding: types.EncodingUTF8}
	if !p.is("{") {
		return d, nil
	}
	err := p.parseAttrList(func(a *attr) error {
		var err error
		if a.name == "encoding" {
			d.Encoding, err = encoding(a)
		}
		return err
	})
	return d, err
}

func (p *parser) parseEnum() (types.Declaration, error) {
	var name string
	if p.peek().kind == tokIdent {
		name = p.next().text
	}
	var container *types.Integer
	if p.accept(":") {
		d, err := p.parseTypeSpec()
		if err != nil {
			return nil, err
		}
		i, ok := d.(*types.Integer)
		if !ok {
			return nil, p.errorf("enum container must be an integer")
		}
		container = i
	}
	if !p.is("{") {
		e, ok := p.enums[name]
		if !ok {
			return nil, p.errorf("unknown enum %q", name)
		}
		return e, nil
	}
	if container == nil {
		i, ok := p.aliases["int"].(*types.Integer)
		if !ok {
			return nil, p.errorf("enum without container type and no int alias")
		}
		container = i
	}
	p.next()
	e := &types.Enum{Container: container}
	var next int64
	for !p.accept("}") {
		t := p.next()
		if t.kind != tokIdent && t.kind != tokString {
			return nil, &ParseError{Line: t.line, Msg: fmt.Sprintf("expected enumerator, found %v", t)}
		}
		low, high := next, next
		if p.accept("=") {
			var err error
			if low, err = p.parseSigned(); err != nil {
				return nil, err
			}
			high = low
			if p.accept("...") {
				if high, err = p.parseSigned(); err != nil {
					return nil, err
				}
			}
		}
		if high < low {
			return nil, &ParseError{Line: t.line, Msg: fmt.Sprintf("enumerator %s has an empty range", t.text)}
		}
		e.Mappings = append(e.Mappings, types.Mapping{Label: t.text, Low: low, High: high})
		next = high + 1
		if !p.accept(",") {
			if err := p.expect("}"); err != nil {
				return nil, err
			}
			break
		}
	}
	if name != "" {
		p.enums[name] = e
	}
	return e, nil
}

func (p *parser) parseStruct() (types.Declaration, error) {
	var name string
	if p.peek().kind == tokIdent {
		name = p.next().text
	}
	if !p.is("{") {
		s, ok := p.structs[name]
		if !ok {
			return nil, p.errorf("unknown struct %q", name)
		}
		return s, nil
	}
	p.next()
	s := &types.Struct{}
	for !p.accept("}") {
		switch {
		case p.peek().kind == tokEOF:
			return nil, p.errorf("unexpected end of file in struct")
		case p.is("typealias"):
			if err := p.parseTypealias(); err != nil {
				return nil, err
			}
		case p.is("typedef"):
			if err := p.parseTypedef(); err != nil {
				return nil, err
			}
		default:
			fields, err := p.parseFieldDecl()
			if err != nil {
				return nil, err
			}
			s.Fields = append(s.Fields, fields...)
		}
	}
	if p.accept("align") {
		if err := p.expect("("); err != nil {
			return nil, err
		}
		v, err := p.parseSigned()
		if err != nil {
			return nil, err
		}
		s.MinAlign = v
		if err := p.expect(")"); err != nil {
			return nil, err
		}
	}
	if name != "" {
		p.structs[name] = s
	}
	return s, nil
}

func (p *parser) parseVariant() (types.Declaration, error) {
	var name, tag string
	if p.peek().kind == tokIdent {
		name = p.next().text
	}
	if p.accept("<") {
		var err error
		if tag, err = p.parsePath(); err != nil {
			return nil, err
		}
		if err := p.expect(">"); err != nil {
			return nil, err
		}
	}
	if !p.is("{") {
		v, ok := p.variants[name]
		if !ok {
			return nil, p.errorf("unknown variant %q", name)
		}
		if tag != "" {
			return v.WithTag(tag), nil
		}
		return v, nil
	}
	p.next()
	v := &types.Variant{Tag: tag}
	for !p.accept("}") {
		if p.peek().kind == tokEOF {
			return nil, p.errorf("unexpected end of file in variant")
		}
		fields, err := p.parseFieldDecl()
		if err != nil {
			return nil, err
		}
		v.Choices = append(v.Choices, fields...)
	}
	if name != "" {
		p.variants[name] = v
	}
	return v, nil
}

func (p *parser) parseFieldDecl() ([]types.Field, error) {
	decl, err := p.parseTypeSpec()
	if err != nil {
		return nil, err
	}
	var fields []types.Field
	for {
		name, d, err := p.parseDeclarator(decl)
		if err != nil {
			return nil, err
		}
		fields = append(fields, types.Field{Name: name, Decl: d})
		if !p.accept(",") {
			break
		}
	}
	return fields, p.expect(";")
}

// parseDeclarator parses a field name with optional array or sequence
// dimensions. "a[2][n]" is an array of two sequences of n elements.
func (p *parser) parseDeclarator(base types.Declaration) (string, types.Declaration, error) {
	t := p.next()
	if t.kind != tokIdent {
		return "", nil, &ParseError{Line: t.line, Msg: fmt.Sprintf("expected field name, found %v", t)}
	}
	type dim struct {
		n   int
		ref string
	}
	var dims []dim
	for p.accept("[") {
		if p.peek().kind == tokInt {
			n, err := parseInt(p.next().text)
			if err != nil {
				return "", nil, p.errorf("%v", err)
			}
			dims = append(dims, dim{n: int(n)})
		} else {
			ref, err := p.parsePath()
			if err != nil {
				return "", nil, err
			}
			dims = append(dims, dim{ref: ref})
		}
		if err := p.expect("]"); err != nil {
			return "", nil, err
		}
	}
	d := base
	for i := len(dims) - 1; i >= 0; i-- {
		if dims[i].ref != "" {
			d = &types.Sequence{Elem: d, LengthRef: dims[i].ref}
		} else {
			d = &types.Array{Elem: d, Length: dims[i].n}
		}
	}
	return t.text, d, nil
}

// finish attaches events to their streams, resolves native byte
// orders and picks each stream's clock.
func (p *parser) finish() error {
	tr := p.trace
	if len(tr.Streams) == 0 {
		tr.Streams[0] = newStream(0)
	}
	for _, pe := range p.events {
		sid := pe.streamID
		if sid == UnsetID {
			if len(tr.Streams) != 1 {
				return &ParseError{Line: pe.line, Msg: fmt.Sprintf("event %q has no stream_id and the trace has %d streams", pe.ev.Name, len(tr.Streams))}
			}
			for id := range tr.Streams {
				sid = id
			}
		}
		s, ok := tr.Streams[sid]
		if !ok {
			return &ParseError{Line: pe.line, Msg: fmt.Sprintf("event %q refers to unknown stream %d", pe.ev.Name, sid)}
		}
		if err := s.AddEvent(pe.ev); err != nil {
			return &ParseError{Line: pe.line, Msg: fmt.Sprintf("event %q", pe.ev.Name), Err: err}
		}
	}

	if len(p.native) > 0 && !p.byteOrderSet {
		return &ParseError{Line: 1, Msg: "native byte order used but the trace declares no byte_order"}
	}
	for _, d := range p.native {
		switch d := d.(type) {
		case *types.Integer:
			d.Order = tr.ByteOrder
		case *types.Float:
			d.Order = tr.ByteOrder
		}
	}

	for _, s := range tr.Streams {
		s.Clock = p.streamClock(s)
	}
	return nil
}

func (p *parser) streamClock(s *Stream) *Clock {
	for _, d := range []*types.Struct{s.EventHeader, s.PacketContext} {
		if d == nil {
			continue
		}
		if c, ok := p.trace.Clocks[clockName(d)]; ok {
			return c
		}
	}
	if len(p.trace.Clocks) == 1 {
		for _, c := range p.trace.Clocks {
			return c
		}
	}
	return nil
}

// clockName returns the clock mapped by the first clock-mapped integer
// in d, searched depth first.
func clockName(d types.Declaration) string {
	switch d := d.(type) {
	case *types.Integer:
		return d.Clock
	case *types.Enum:
		return d.Container.Clock
	case *types.Struct:
		for _, f := range d.Fields {
			if name := clockName(f.Decl); name != "" {
				return name
			}
		}
	case *types.Variant:
		for _, c := range d.Choices {
			if name := clockName(c.Decl); name != "" {
				return name
			}
		}
	}
	return ""
}
