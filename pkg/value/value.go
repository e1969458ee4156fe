package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindNone Kind = iota
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindBool
	KindString
	KindObject
	KindList
	KindFunctionCall
	KindDefinition
	KindError
	KindFile
)

var kindNames = [...]string{
	KindNone:         "none",
	KindInt:          "int",
	KindLong:         "long",
	KindFloat:        "float",
	KindDouble:       "double",
	KindBool:         "bool",
	KindString:       "string",
	KindObject:       "object",
	KindList:         "list",
	KindFunctionCall: "function_call",
	KindDefinition:   "definition",
	KindError:        "error",
	KindFile:         "file",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), true
		}
	}
	return KindNone, false
}

// Value is any value that can flow between statements, modules and the
// native boundary. The zero Value is None.
//
// OWNERSHIP: a Value owns its heap data (strings, maps, slices). Values
// handed to a module must be treated as read-only by the module.
type Value struct {
	kind Kind

	// Primitive payloads
	num int64
	flt float64

	// Complex payloads
	str  string
	obj  map[string]Value
	list []Value
	call *FunctionCall
	def  *Definition
	file *File
}

// File references an external file resource. The core never opens it.
type File struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
}

// Constructors

func None() Value { return Value{} }

func Int(i int32) Value { return Value{kind: KindInt, num: int64(i)} }

func Long(l int64) Value { return Value{kind: KindLong, num: l} }

func Float(f float32) Value { return Value{kind: KindFloat, flt: float64(f)} }

func Double(d float64) Value { return Value{kind: KindDouble, flt: d} }

func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

func String(s string) Value { return Value{kind: KindString, str: s} }

func Object(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindObject, obj: m}
}

func List(items []Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

func Call(fc FunctionCall) Value { return Value{kind: KindFunctionCall, call: &fc} }

func Def(d Definition) Value { return Value{kind: KindDefinition, def: &d} }

func Error(msg string) Value { return Value{kind: KindError, str: msg} }

func Errorf(format string, args ...any) Value { return Error(fmt.Sprintf(format, args...)) }

func FileRef(f File) Value { return Value{kind: KindFile, file: &f} }

// Type-safe accessors

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNone() bool { return v.kind == KindNone }

func (v Value) IsError() bool { return v.kind == KindError }

func (v Value) AsInt() (int32, bool) {
	if v.kind == KindInt {
		return int32(v.num), true
	}
	return 0, false
}

func (v Value) AsLong() (int64, bool) {
	if v.kind == KindLong {
		return v.num, true
	}
	return 0, false
}

func (v Value) AsFloat() (float32, bool) {
	if v.kind == KindFloat {
		return float32(v.flt), true
	}
	return 0, false
}

func (v Value) AsDouble() (float64, bool) {
	if v.kind == KindDouble {
		return v.flt, true
	}
	return 0, false
}

func (v Value) AsBool() (bool, bool) {
	if v.kind == KindBool {
		return v.num != 0, true
	}
	return false, false
}

func (v Value) AsString() (string, bool) {
	if v.kind == KindString {
		return v.str, true
	}
	return "", false
}

func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind == KindObject {
		return v.obj, true
	}
	return nil, false
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind == KindList {
		return v.list, true
	}
	return nil, false
}

func (v Value) AsFunctionCall() (FunctionCall, bool) {
	if v.kind == KindFunctionCall && v.call != nil {
		return *v.call, true
	}
	return FunctionCall{}, false
}

func (v Value) AsDefinition() (Definition, bool) {
	if v.kind == KindDefinition && v.def != nil {
		return *v.def, true
	}
	return Definition{}, false
}

// AsError returns the message of an Error value.
func (v Value) AsError() (string, bool) {
	if v.kind == KindError {
		return v.str, true
	}
	return "", false
}

func (v Value) AsFile() (File, bool) {
	if v.kind == KindFile && v.file != nil {
		return *v.file, true
	}
	return File{}, false
}

// AsNumber widens any numeric kind to float64.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindInt, KindLong:
		return float64(v.num), true
	case KindFloat, KindDouble:
		return v.flt, true
	}
	return 0, false
}

// Equal reports deep equality. Floats compare by bit pattern so NaN
// payloads survive round trips.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindInt, KindLong, KindBool:
		return v.num == o.num
	case KindFloat:
		return math.Float32bits(float32(v.flt)) == math.Float32bits(float32(o.flt))
	case KindDouble:
		return math.Float64bits(v.flt) == math.Float64bits(o.flt)
	case KindString, KindError:
		return v.str == o.str
	case KindObject:
		return equalMaps(v.obj, o.obj)
	case KindList:
		return equalLists(v.list, o.list)
	case KindFunctionCall:
		return v.call.Equal(*o.call)
	case KindDefinition:
		return v.def.Equal(*o.def)
	case KindFile:
		return *v.file == *o.file
	}
	return false
}

func equalMaps(a, b map[string]Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

func equalLists(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// String returns the human form used by logs and the print output.
func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "none"
	case KindInt, KindLong:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.flt, 'g', -1, 32)
	case KindDouble:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.num != 0)
	case KindString:
		return v.str
	case KindObject:
		return formatObject(v.obj)
	case KindList:
		return formatList(v.list)
	case KindFunctionCall:
		return v.call.String()
	case KindDefinition:
		return v.def.String()
	case KindError:
		return "error: " + v.str
	case KindFile:
		return "file(" + v.file.Path + ")"
	}
	return "unknown"
}

func formatObject(m map[string]Value) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(" = ")
		sb.WriteString(quoted(m[k]))
	}
	sb.WriteString("}")
	return sb.String()
}

func formatList(items []Value) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoted(item))
	}
	sb.WriteString("]")
	return sb.String()
}

// quoted renders nested strings with quotes so "[a, b]" is unambiguous.
func quoted(v Value) string {
	if v.kind == KindString {
		return strconv.Quote(v.str)
	}
	return v.String()
}
