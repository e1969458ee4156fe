package value

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// ToNative converts a Value to a plain Go value. This is the bridge
// embedded engines (expr, sql) use to see arguments.
func (v Value) ToNative() any {
	switch v.kind {
	case KindNone:
		return nil
	case KindInt:
		return int32(v.num)
	case KindLong:
		return v.num
	case KindFloat:
		return float32(v.flt)
	case KindDouble:
		return v.flt
	case KindBool:
		return v.num != 0
	case KindString:
		return v.str
	case KindObject:
		result := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			result[k] = item.ToNative()
		}
		return result
	case KindList:
		result := make([]any, len(v.list))
		for i, item := range v.list {
			result[i] = item.ToNative()
		}
		return result
	case KindFunctionCall:
		return *v.call
	case KindDefinition:
		return *v.def
	case KindError:
		return errors.New(v.str)
	case KindFile:
		return *v.file
	}
	return nil
}

// FromNative converts a Go value produced by an embedded engine or a
// decoder back into a Value. Values that cannot be represented become
// Error values rather than panicking: foreign input is not trusted.
func FromNative(in any) Value {
	switch val := in.(type) {
	case nil:
		return None()
	case Value:
		return val
	case *Value:
		if val == nil {
			return None()
		}
		return *val
	case int32:
		return Int(val)
	case int64:
		return Long(val)
	case int, int8, int16, uint, uint8, uint16, uint32, uint64:
		l, err := cast.ToInt64E(val)
		if err != nil {
			return Errorf("cannot convert %T: %v", in, err)
		}
		return Long(l)
	case float32:
		return Float(val)
	case float64:
		return Double(val)
	case decimal.Decimal:
		return Double(val.InexactFloat64())
	case bool:
		return Bool(val)
	case string:
		return String(val)
	case []byte:
		if !utf8.Valid(val) {
			return Error("invalid utf-8 in string")
		}
		return String(string(val))
	case error:
		return Error(val.Error())
	case FunctionCall:
		return Call(val)
	case Definition:
		return Def(val)
	case File:
		return FileRef(val)
	case map[string]any:
		m := make(map[string]Value, len(val))
		for k, item := range val {
			m[k] = FromNative(item)
		}
		return Object(m)
	case map[any]any:
		m := make(map[string]Value, len(val))
		for k, item := range val {
			key, err := cast.ToStringE(k)
			if err != nil {
				return Errorf("unsupported object key %T", k)
			}
			m[key] = FromNative(item)
		}
		return Object(m)
	case map[string]Value:
		return Object(val)
	case []Value:
		return List(val)
	case []any:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = FromNative(item)
		}
		return List(items)
	case []string:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = String(item)
		}
		return List(items)
	case fmt.Stringer:
		return String(val.String())
	}
	return Errorf("unsupported native type %T", in)
}
