package value

import "strings"

type DefinitionKind uint8

const (
	DefinitionNone DefinitionKind = iota
	DefinitionOne
	DefinitionMany
)

// Definition is the optional trailing `{ ... }` or `[ ... ]` block that
// follows the plain arguments of a call. The zero Definition is None.
type Definition struct {
	kind   DefinitionKind
	fields map[string]Value
	items  []Value
}

func NoDefinition() Definition { return Definition{} }

// One builds a named-field block.
func One(fields map[string]Value) Definition {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Definition{kind: DefinitionOne, fields: fields}
}

// Many builds a positional-list block.
func Many(items []Value) Definition {
	if items == nil {
		items = []Value{}
	}
	return Definition{kind: DefinitionMany, items: items}
}

func (d Definition) Kind() DefinitionKind { return d.kind }

func (d Definition) IsNone() bool { return d.kind == DefinitionNone }

func (d Definition) Fields() (map[string]Value, bool) {
	return d.fields, d.kind == DefinitionOne
}

func (d Definition) Items() ([]Value, bool) {
	return d.items, d.kind == DefinitionMany
}

// AsValue flattens the block into the value it carries: an Object for
// One, a List for Many and None otherwise.
func (d Definition) AsValue() Value {
	switch d.kind {
	case DefinitionOne:
		return Object(d.fields)
	case DefinitionMany:
		return List(d.items)
	}
	return None()
}

func (d Definition) Equal(o Definition) bool {
	if d.kind != o.kind {
		return false
	}
	switch d.kind {
	case DefinitionOne:
		return equalMaps(d.fields, o.fields)
	case DefinitionMany:
		return equalLists(d.items, o.items)
	}
	return true
}

func (d Definition) String() string {
	switch d.kind {
	case DefinitionOne:
		return formatObject(d.fields)
	case DefinitionMany:
		return formatList(d.items)
	}
	return ""
}

// FunctionCall is one statement (or a call-valued argument): a symbol
// name, positional args and an optional trailing block.
type FunctionCall struct {
	Name       string
	Args       []Value
	Definition Definition
}

func NewCall(name string, args ...Value) FunctionCall {
	return FunctionCall{Name: name, Args: args}
}

// WithDefinition returns a copy of fc carrying def.
func (fc FunctionCall) WithDefinition(def Definition) FunctionCall {
	fc.Definition = def
	return fc
}

func (fc FunctionCall) Equal(o FunctionCall) bool {
	return fc.Name == o.Name && equalLists(fc.Args, o.Args) && fc.Definition.Equal(o.Definition)
}

func (fc FunctionCall) String() string {
	var sb strings.Builder
	sb.WriteString(fc.Name)
	for i, arg := range fc.Args {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(quoted(arg))
	}
	if !fc.Definition.IsNone() {
		sb.WriteString(" ")
		sb.WriteString(fc.Definition.String())
	}
	return sb.String()
}
