package module

import (
	"log/slog"

	"rigz/pkg/value"
)

// Convention is the fixed shape a module expects dispatch arguments in.
// Its numeric value is what crosses the native boundary in a request frame.
type Convention uint8

const (
	Args Convention = iota
	ArgsFunction
	ArgsWithPrior
	ArgsWithPriorFunction
	Struct
	StructFunction
)

var conventionNames = [...]string{
	Args:                  "Args",
	ArgsFunction:          "ArgsFunction",
	ArgsWithPrior:         "ArgsWithPrior",
	ArgsWithPriorFunction: "ArgsWithPriorFunction",
	Struct:                "Struct",
	StructFunction:        "StructFunction",
}

const unknownConvention = Convention(len(conventionNames))

func (c Convention) String() string {
	if int(c) < len(conventionNames) {
		return conventionNames[c]
	}
	return "Args"
}

// LookupConvention parses a convention name. Names are case sensitive.
func LookupConvention(s string) (Convention, bool) {
	for i, name := range conventionNames {
		if name == s {
			return Convention(i), true
		}
	}
	return Args, false
}

// ResolveConvention returns c, or Args with a warning on log when c came
// from an unrecognized name.
func ResolveConvention(c Convention, log *slog.Logger) Convention {
	if c.Known() {
		return c
	}
	log.Warn("Unknown calling convention, using Args")
	return Args
}

// Known reports whether c is one of the six conventions. Decoding an
// unrecognized name yields an unknown convention that behaves as Args.
func (c Convention) Known() bool { return int(c) < len(conventionNames) }

func (c Convention) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts an empty string as Args.
func (c *Convention) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*c = Args
		return nil
	}
	conv, ok := LookupConvention(string(text))
	if !ok {
		conv = unknownConvention
	}
	*c = conv
	return nil
}

func (c Convention) withName() bool {
	return c == ArgsFunction || c == ArgsWithPriorFunction || c == StructFunction
}

func (c Convention) withPrior() bool {
	return c == ArgsWithPrior || c == ArgsWithPriorFunction
}

// IsStruct reports whether the convention passes a single record.
func (c Convention) IsStruct() bool {
	return c == Struct || c == StructFunction
}

// Record keys of the struct conventions.
const (
	FieldName       = "name"
	FieldArgs       = "args"
	FieldDefinition = "definition"
	FieldPrior      = "prior"
)

type AssembleOptions struct {
	// IncludeNonePrior passes a None prior result instead of omitting it.
	IncludeNonePrior bool
}

// Invocation is a call in the shape a backend function receives: either a
// positional argument list or one record.
type Invocation struct {
	Convention Convention
	Positional []value.Value
	Record     map[string]value.Value
}

func (inv Invocation) IsRecord() bool { return inv.Convention.IsStruct() }

// AsValue is the invocation as a single value: a List for positional
// conventions, an Object for the struct ones.
func (inv Invocation) AsValue() value.Value {
	if inv.IsRecord() {
		return value.Object(inv.Record)
	}
	return value.List(inv.Positional)
}

// Assemble shapes call for conv. The definition is only passed when the
// call has one.
func Assemble(conv Convention, call Call, opts AssembleOptions) Invocation {
	if !conv.Known() {
		conv = Args
	}
	includePrior := !call.Prior.IsNone() || opts.IncludeNonePrior

	if conv.IsStruct() {
		rec := make(map[string]value.Value, 4)
		if conv.withName() {
			rec[FieldName] = value.String(call.Name)
		}
		rec[FieldArgs] = value.List(append([]value.Value(nil), call.Args...))
		if !call.Definition.IsNone() {
			rec[FieldDefinition] = value.Def(call.Definition)
		}
		if includePrior {
			rec[FieldPrior] = call.Prior
		}
		return Invocation{Convention: conv, Record: rec}
	}

	args := make([]value.Value, 0, len(call.Args)+3)
	if conv.withName() {
		args = append(args, value.String(call.Name))
	}
	args = append(args, call.Args...)
	if !call.Definition.IsNone() {
		args = append(args, value.Def(call.Definition))
	}
	if conv.withPrior() && includePrior {
		args = append(args, call.Prior)
	}
	return Invocation{Convention: conv, Positional: args}
}
