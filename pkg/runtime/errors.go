package runtime

import (
	"errors"
	"strings"
)

var (
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrFunctionCall   = errors.New("function call failed")
	ErrModuleInit     = errors.New("module initialization failed")
	ErrForwardDepth   = errors.New("function call forwarding too deep")
)

// Diagnostic is a runtime failure with the location it happened at. Err is
// one of the sentinel errors above, so callers can test with errors.Is.
type Diagnostic struct {
	Err     error
	Module  string
	Symbol  string
	Program string
	Message string
	Cause   error
}

func (d *Diagnostic) Error() string {
	var sb strings.Builder
	sb.WriteString(d.Err.Error())
	if d.Symbol != "" {
		sb.WriteString(": ")
		sb.WriteString(d.Symbol)
	}
	if d.Module != "" {
		sb.WriteString(" (module ")
		sb.WriteString(d.Module)
		sb.WriteString(")")
	}
	if d.Program != "" {
		sb.WriteString(" in ")
		sb.WriteString(d.Program)
	}
	if d.Message != "" {
		sb.WriteString(" - ")
		sb.WriteString(d.Message)
	}
	return sb.String()
}

func (d *Diagnostic) Unwrap() []error {
	if d.Cause != nil {
		return []error{d.Err, d.Cause}
	}
	return []error{d.Err}
}

// inProgram attaches the program name to a Diagnostic that has none.
func inProgram(err error, program string) error {
	var d *Diagnostic
	if !errors.As(err, &d) || d.Program != "" {
		return err
	}
	cp := *d
	cp.Program = program
	return &cp
}
