package value

import (
	"fmt"
	"sort"

	gojson "github.com/goccy/go-json"
)

// envelope is the tagged JSON form of a Value. It is the wire format of
// the sidecar protocol, so it has to keep int/long/float/double apart.
type envelope struct {
	Type  string            `json:"type"`
	Value gojson.RawMessage `json:"value,omitempty"`
}

type callJSON struct {
	Name       string     `json:"name"`
	Args       []Value    `json:"args"`
	Definition Definition `json:"definition"`
}

type definitionJSON struct {
	Kind   string           `json:"kind"`
	Fields map[string]Value `json:"fields,omitempty"`
	Items  []Value          `json:"items,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.kind {
	case KindNone:
		return []byte(`{"type":"none"}`), nil
	case KindInt, KindLong:
		payload = v.num
	case KindFloat:
		payload = float32(v.flt)
	case KindDouble:
		payload = v.flt
	case KindBool:
		payload = v.num != 0
	case KindString, KindError:
		payload = v.str
	case KindObject:
		payload = v.obj
	case KindList:
		payload = v.list
	case KindFunctionCall:
		payload = callJSON{Name: v.call.Name, Args: orEmpty(v.call.Args), Definition: v.call.Definition}
	case KindDefinition:
		payload = *v.def
	case KindFile:
		payload = *v.file
	default:
		return nil, fmt.Errorf("value: cannot marshal kind %d", v.kind)
	}

	raw, err := gojson.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return gojson.Marshal(envelope{Type: v.kind.String(), Value: raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := gojson.Unmarshal(data, &env); err != nil {
		return err
	}
	kind, ok := ParseKind(env.Type)
	if !ok {
		return fmt.Errorf("value: unknown type %q", env.Type)
	}
	if kind == KindNone {
		*v = None()
		return nil
	}
	if len(env.Value) == 0 {
		return fmt.Errorf("value: missing payload for %s", env.Type)
	}

	switch kind {
	case KindInt:
		var i int32
		if err := gojson.Unmarshal(env.Value, &i); err != nil {
			return err
		}
		*v = Int(i)
	case KindLong:
		var l int64
		if err := gojson.Unmarshal(env.Value, &l); err != nil {
			return err
		}
		*v = Long(l)
	case KindFloat:
		var f float32
		if err := gojson.Unmarshal(env.Value, &f); err != nil {
			return err
		}
		*v = Float(f)
	case KindDouble:
		var d float64
		if err := gojson.Unmarshal(env.Value, &d); err != nil {
			return err
		}
		*v = Double(d)
	case KindBool:
		var b bool
		if err := gojson.Unmarshal(env.Value, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case KindString, KindError:
		var s string
		if err := gojson.Unmarshal(env.Value, &s); err != nil {
			return err
		}
		if kind == KindError {
			*v = Error(s)
		} else {
			*v = String(s)
		}
	case KindObject:
		var m map[string]Value
		if err := gojson.Unmarshal(env.Value, &m); err != nil {
			return err
		}
		*v = Object(m)
	case KindList:
		var items []Value
		if err := gojson.Unmarshal(env.Value, &items); err != nil {
			return err
		}
		*v = List(items)
	case KindFunctionCall:
		var fc callJSON
		if err := gojson.Unmarshal(env.Value, &fc); err != nil {
			return err
		}
		*v = Call(FunctionCall{Name: fc.Name, Args: orEmpty(fc.Args), Definition: fc.Definition})
	case KindDefinition:
		var d Definition
		if err := gojson.Unmarshal(env.Value, &d); err != nil {
			return err
		}
		*v = Def(d)
	case KindFile:
		var f File
		if err := gojson.Unmarshal(env.Value, &f); err != nil {
			return err
		}
		*v = FileRef(f)
	}
	return nil
}

func (d Definition) MarshalJSON() ([]byte, error) {
	switch d.kind {
	case DefinitionOne:
		return gojson.Marshal(definitionJSON{Kind: "one", Fields: d.fields})
	case DefinitionMany:
		return gojson.Marshal(definitionJSON{Kind: "many", Items: orEmpty(d.items)})
	}
	return []byte(`{"kind":"none"}`), nil
}

func (d *Definition) UnmarshalJSON(data []byte) error {
	var raw definitionJSON
	if err := gojson.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case "none", "":
		*d = NoDefinition()
	case "one":
		*d = One(raw.Fields)
	case "many":
		*d = Many(raw.Items)
	default:
		return fmt.Errorf("value: unknown definition kind %q", raw.Kind)
	}
	return nil
}

func orEmpty(items []Value) []Value {
	if items == nil {
		return []Value{}
	}
	return items
}

// Plain converts v into a JSON-friendly tree for human output: numbers,
// strings and maps without type envelopes. It is lossy and never used on
// the wire.
func (v Value) Plain() any {
	switch v.kind {
	case KindObject:
		m := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			m[k] = item.Plain()
		}
		return m
	case KindList:
		items := make([]any, len(v.list))
		for i, item := range v.list {
			items[i] = item.Plain()
		}
		return items
	case KindFunctionCall:
		args := make([]any, len(v.call.Args))
		for i, a := range v.call.Args {
			args[i] = a.Plain()
		}
		return map[string]any{"function": v.call.Name, "args": args, "definition": v.call.Definition.AsValue().Plain()}
	case KindDefinition:
		return v.def.AsValue().Plain()
	case KindError:
		return map[string]any{"error": v.str}
	case KindFile:
		return map[string]any{"file": v.file.Path, "format": v.file.Format}
	}
	return v.ToNative()
}

// SortedKeys returns the keys of an Object in stable order.
func SortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
