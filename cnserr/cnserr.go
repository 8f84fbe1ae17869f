// Package cnserr defines the error kinds raised by the console.
package cnserr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindOption
	KindCommand
	KindMissingArgument
	KindArgument
	KindVariable
	KindTypeMismatch
	KindConnection
	KindWatch
	KindRemoteOperation
	KindFormat
	KindIO
)

var kindNames = map[Kind]string{
	KindUnknown:         "Error",
	KindOption:          "OptionError",
	KindCommand:         "CommandError",
	KindMissingArgument: "MissingArgumentError",
	KindArgument:        "ArgumentError",
	KindVariable:        "VariableError",
	KindTypeMismatch:    "TypeMismatchError",
	KindConnection:      "ConnectionError",
	KindWatch:           "WatchError",
	KindRemoteOperation: "RemoteOperationError",
	KindFormat:          "FormatError",
	KindIO:              "IOError",
}

func (k Kind) String() string {
	if name, exists := kindNames[k]; exists {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type (
	// Error is a console error of a specific kind. File and Line are set when
	// the error was raised while running a script.
	Error struct {
		Kind Kind
		Msg  string
		File string
		Line int
		Err  error
	}
)

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.File != "" {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New makes an error of the specified kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap makes an error of the specified kind with an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// Is reports whether any error in the chain of err has the specified kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var ce *Error
		if !errors.As(err, &ce) {
			return false
		}
		if ce.Kind == kind {
			return true
		}
		err = ce.Err
	}
	return false
}

// KindOf returns the kind of the outermost console error in the chain.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// WithLocation annotates err with a script file and line. An error that
// already carries a location keeps the innermost one.
func WithLocation(err error, file string, line int) error {
	var ce *Error
	if errors.As(err, &ce) {
		if ce.File != "" {
			return err
		}
		located := *ce
		located.File = file
		located.Line = line
		return &located
	}
	return &Error{Kind: KindUnknown, File: file, Line: line, Err: err}
}
