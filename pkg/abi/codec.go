// Package abi is the fixed-layout boundary representation of values. It
// is what crosses into backends that do not share the host's memory: wasm
// linear memory, dynamically loaded libraries.
//
// Layout (little-endian): every value is a one byte tag followed by its
// payload.
//
//	none            tag
//	int / long      tag i32 / i64
//	float / double  tag f32 / f64 (IEEE bits)
//	bool            tag u8
//	string / error  tag u32(len) bytes
//	object          tag u32(count) { u32(len) key-bytes value }*
//	list            tag u32(count) value*
//	function_call   tag u32(len) name u32(count) value* definition
//	definition      tag definition
//	file            tag u32(len) path u32(len) format
//
// A definition body is one byte (0 none, 1 one, 2 many) followed by an
// object or list body.
//
// Strings crossing the boundary are UTF-8. A String holding invalid UTF-8
// is encoded as the Error value "invalid utf-8 in string", the same value
// decoding such bytes produces, so foreign code never sees them. Invalid
// bytes in an Error message are replaced with U+FFFD on decode.
package abi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"rigz/pkg/value"
)

// MaxDepth bounds nesting when decoding foreign buffers.
const MaxDepth = 256

var (
	ErrTruncated = errors.New("abi: truncated buffer")
	ErrTooDeep   = errors.New("abi: nesting too deep")
)

const (
	defNone byte = 0
	defOne  byte = 1
	defMany byte = 2
)

// errInvalidUTF8 is what a String with invalid UTF-8 becomes.
const errInvalidUTF8 = "invalid utf-8 in string"

// AppendValue appends the encoding of v to dst.
func AppendValue(dst []byte, v value.Value) []byte {
	if s, ok := v.AsString(); ok && !utf8.ValidString(s) {
		v = value.Error(errInvalidUTF8)
	}
	dst = append(dst, byte(v.Kind()))
	switch v.Kind() {
	case value.KindNone:
	case value.KindInt:
		i, _ := v.AsInt()
		dst = binary.LittleEndian.AppendUint32(dst, uint32(i))
	case value.KindLong:
		l, _ := v.AsLong()
		dst = binary.LittleEndian.AppendUint64(dst, uint64(l))
	case value.KindFloat:
		f, _ := v.AsFloat()
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	case value.KindDouble:
		d, _ := v.AsDouble()
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(d))
	case value.KindBool:
		b, _ := v.AsBool()
		if b {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case value.KindString:
		s, _ := v.AsString()
		dst = appendString(dst, s)
	case value.KindError:
		s, _ := v.AsError()
		dst = appendString(dst, s)
	case value.KindObject:
		m, _ := v.AsObject()
		dst = appendObject(dst, m)
	case value.KindList:
		items, _ := v.AsList()
		dst = appendList(dst, items)
	case value.KindFunctionCall:
		fc, _ := v.AsFunctionCall()
		dst = appendString(dst, fc.Name)
		dst = appendList(dst, fc.Args)
		dst = appendDefinition(dst, fc.Definition)
	case value.KindDefinition:
		d, _ := v.AsDefinition()
		dst = appendDefinition(dst, d)
	case value.KindFile:
		f, _ := v.AsFile()
		dst = appendString(dst, f.Path)
		dst = appendString(dst, f.Format)
	}
	return dst
}

func appendString(dst []byte, s string) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

func appendObject(dst []byte, m map[string]value.Value) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(m)))
	// Sorted so identical values encode identically.
	for _, k := range value.SortedKeys(m) {
		dst = appendString(dst, k)
		dst = AppendValue(dst, m[k])
	}
	return dst
}

func appendList(dst []byte, items []value.Value) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(items)))
	for _, item := range items {
		dst = AppendValue(dst, item)
	}
	return dst
}

func appendDefinition(dst []byte, d value.Definition) []byte {
	if fields, ok := d.Fields(); ok {
		return appendObject(append(dst, defOne), fields)
	}
	if items, ok := d.Items(); ok {
		return appendList(append(dst, defMany), items)
	}
	return append(dst, defNone)
}

// Encode returns a freshly allocated encoding of v.
func Encode(v value.Value) []byte {
	return AppendValue(nil, v)
}

// Decode decodes exactly one value from b.
func Decode(b []byte) (value.Value, error) {
	d := Decoder{buf: b}
	v, err := d.Value()
	if err != nil {
		return value.None(), err
	}
	if d.Remaining() != 0 {
		return value.None(), fmt.Errorf("abi: %d trailing bytes", d.Remaining())
	}
	return v, nil
}

// Decoder reads values from a buffer. Every string it returns is copied
// out of the buffer, so the buffer may be released as soon as decoding
// is done.
type Decoder struct {
	buf   []byte
	off   int
	depth int
}

func NewDecoder(b []byte) *Decoder { return &Decoder{buf: b} }

func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.off+n > len(d.buf) {
		return nil, ErrTruncated
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *Decoder) Byte() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// RawString reads a length-prefixed byte string without validating it.
func (d *Decoder) RawString() (string, error) {
	n, err := d.Uint32()
	if err != nil {
		return "", err
	}
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// count reads an element count and rejects counts that cannot fit in
// the rest of the buffer (each element is at least one byte).
func (d *Decoder) count() (int, error) {
	n, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	if int(n) > d.Remaining() {
		return 0, ErrTruncated
	}
	return int(n), nil
}

// Value decodes the next value. Malformed UTF-8 inside a string is not
// fatal: that element becomes an Error value and decoding continues.
func (d *Decoder) Value() (value.Value, error) {
	d.depth++
	defer func() { d.depth-- }()
	if d.depth > MaxDepth {
		return value.None(), ErrTooDeep
	}

	tag, err := d.Byte()
	if err != nil {
		return value.None(), err
	}

	switch value.Kind(tag) {
	case value.KindNone:
		return value.None(), nil
	case value.KindInt:
		u, err := d.Uint32()
		return value.Int(int32(u)), err
	case value.KindLong:
		u, err := d.Uint64()
		return value.Long(int64(u)), err
	case value.KindFloat:
		u, err := d.Uint32()
		return value.Float(math.Float32frombits(u)), err
	case value.KindDouble:
		u, err := d.Uint64()
		return value.Double(math.Float64frombits(u)), err
	case value.KindBool:
		b, err := d.Byte()
		return value.Bool(b != 0), err
	case value.KindString:
		s, err := d.RawString()
		if err != nil {
			return value.None(), err
		}
		if !utf8.ValidString(s) {
			return value.Error(errInvalidUTF8), nil
		}
		return value.String(s), nil
	case value.KindError:
		s, err := d.RawString()
		if err != nil {
			return value.None(), err
		}
		if !utf8.ValidString(s) {
			s = string([]rune(s))
		}
		return value.Error(s), nil
	case value.KindObject:
		m, err := d.object()
		return value.Object(m), err
	case value.KindList:
		items, err := d.list()
		return value.List(items), err
	case value.KindFunctionCall:
		name, err := d.RawString()
		if err != nil {
			return value.None(), err
		}
		args, err := d.list()
		if err != nil {
			return value.None(), err
		}
		def, err := d.definition()
		if err != nil {
			return value.None(), err
		}
		return value.Call(value.FunctionCall{Name: name, Args: args, Definition: def}), nil
	case value.KindDefinition:
		def, err := d.definition()
		return value.Def(def), err
	case value.KindFile:
		path, err := d.RawString()
		if err != nil {
			return value.None(), err
		}
		format, err := d.RawString()
		return value.FileRef(value.File{Path: path, Format: format}), err
	}
	return value.None(), fmt.Errorf("abi: unknown tag %d at offset %d", tag, d.off-1)
}

func (d *Decoder) object() (map[string]value.Value, error) {
	n, err := d.count()
	if err != nil {
		return nil, err
	}
	m := make(map[string]value.Value, n)
	for i := 0; i < n; i++ {
		key, err := d.RawString()
		if err != nil {
			return nil, err
		}
		v, err := d.Value()
		if err != nil {
			return nil, err
		}
		m[key] = v
	}
	return m, nil
}

func (d *Decoder) list() ([]value.Value, error) {
	n, err := d.count()
	if err != nil {
		return nil, err
	}
	items := make([]value.Value, n)
	for i := range items {
		if items[i], err = d.Value(); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (d *Decoder) definition() (value.Definition, error) {
	kind, err := d.Byte()
	if err != nil {
		return value.NoDefinition(), err
	}
	switch kind {
	case defNone:
		return value.NoDefinition(), nil
	case defOne:
		m, err := d.object()
		return value.One(m), err
	case defMany:
		items, err := d.list()
		return value.Many(items), err
	}
	return value.NoDefinition(), fmt.Errorf("abi: unknown definition kind %d", kind)
}
