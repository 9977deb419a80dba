// Package vm - error handling with stack traces.
package vm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// StackFrame captures one call frame's position at the moment an error was
// raised, innermost call last (mirroring the CallFrame stack order).
type StackFrame struct {
	Name       string // function/method display name, "<script>" at the root
	IP         int    // instruction pointer within that frame's chunk
	SourceLine int    // source line the IP maps to, 0 if unknown
}

// RuntimeError is what a failed Run/Call returns: a message plus the call
// stack at the moment of failure, formatted with file/line and a source
// excerpt with a caret under the offending column when available.
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
	SourceLine string // the offending source line's text, if the module kept it
	Column     int    // 0 if unknown
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	if e.SourceLine != "" {
		b.WriteString("\n\n    ")
		b.WriteString(e.SourceLine)
		if e.Column > 0 {
			b.WriteString("\n    ")
			b.WriteString(strings.Repeat(" ", e.Column-1))
			b.WriteByte('^')
		}
	}

	if len(e.StackTrace) > 0 {
		b.WriteString("\n\nStack trace:")
		for i := len(e.StackTrace) - 1; i >= 0; i-- {
			f := e.StackTrace[i]
			b.WriteString(fmt.Sprintf("\n  at %s", f.Name))
			if f.SourceLine > 0 {
				b.WriteString(fmt.Sprintf(" [line %d]", f.SourceLine))
			}
		}
	}
	return b.String()
}

func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, StackTrace: stack}
}

// CompileError wraps the list the compiler returns so callers of Interpret
// get back a single error value, matching the rest of the Go ecosystem's
// convention of one error per failed call.
type CompileError struct {
	Errors []error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	for i, err := range e.Errors {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

func wrapCompileErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.WithStack(&CompileError{Errors: errs})
}
