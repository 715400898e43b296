package template

import "fmt"

// Error is a template failure carrying the source position at fault.
// Lexing, parsing, and rendering all report through this type; the
// engine converts it into the compile-time error taxonomy.
type Error struct {
	Pos     Position
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Pos.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.File, e.Pos.Line, e.Pos.Column, msg)
	}
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func errAt(pos Position, format string, args ...any) *Error {
	return &Error{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func wrapAt(pos Position, cause error, format string, args ...any) *Error {
	return &Error{Pos: pos, Message: fmt.Sprintf(format, args...), Cause: cause}
}
