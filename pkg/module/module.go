// Package module defines the contract every execution backend satisfies
// and the calling-convention adapter that shapes a dispatch call for it.
package module

import (
	"context"
	"fmt"
	"log/slog"

	"rigz/pkg/value"
)

// Module is a pluggable execution backend.
//
// FunctionCall must return NotFound, never Err, for symbols the module does
// not define: the dispatcher relies on that to try the next module.
type Module interface {
	Name() string
	// Root is the source directory for embedded modules, or the directory
	// holding the library for native ones.
	Root() string
	// Initialize loads backend resources. Backends with nothing to load
	// return NotFound.
	Initialize(ctx context.Context, args InitArgs) Status[struct{}]
	FunctionCall(ctx context.Context, call Call) Status[value.Value]
}

// Call is the generic dispatch request handed to a module.
type Call struct {
	Name       string
	Args       []value.Value
	Definition value.Definition
	Prior      value.Value
}

// InitArgs carries what a module needs at startup: the run policy bits
// that shape argument assembly and the module's own config blob.
type InitArgs struct {
	IncludeNonePrior bool
	Config           map[string]any
	Logger           *slog.Logger
}

// Log returns the configured logger or the default one.
func (a InitArgs) Log() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

type Code uint8

const (
	CodeOk Code = iota
	CodeNotFound
	CodeErr
)

func (c Code) String() string {
	switch c {
	case CodeOk:
		return "ok"
	case CodeNotFound:
		return "not_found"
	case CodeErr:
		return "error"
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

// Status is the tri-state outcome of a module operation.
type Status[T any] struct {
	code  Code
	value T
	msg   string
}

func Ok[T any](v T) Status[T] { return Status[T]{code: CodeOk, value: v} }

func NotFound[T any]() Status[T] { return Status[T]{code: CodeNotFound} }

func Err[T any](msg string) Status[T] { return Status[T]{code: CodeErr, msg: msg} }

func Errf[T any](format string, args ...any) Status[T] {
	return Err[T](fmt.Sprintf(format, args...))
}

func (s Status[T]) Code() Code { return s.code }

func (s Status[T]) IsOk() bool { return s.code == CodeOk }

func (s Status[T]) IsNotFound() bool { return s.code == CodeNotFound }

func (s Status[T]) IsErr() bool { return s.code == CodeErr }

// Value returns the Ok payload (the zero T otherwise).
func (s Status[T]) Value() T { return s.value }

// Message returns the Err message.
func (s Status[T]) Message() string { return s.msg }

func (s Status[T]) String() string {
	switch s.code {
	case CodeOk:
		return fmt.Sprintf("Ok(%v)", s.value)
	case CodeErr:
		return "Err(" + s.msg + ")"
	}
	return "NotFound"
}
