package docstream

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrUsage matches every *UsageError and *InvalidDecodeError.
	ErrUsage = errors.New("docstream: usage error")
	// ErrTypeMismatch matches every *TypeMismatchError.
	ErrTypeMismatch = errors.New("docstream: type mismatch")
	// ErrMissingField matches every *MissingFieldError.
	ErrMissingField = errors.New("docstream: missing field")
	// ErrUnsupportedType matches every *UnsupportedTypeError.
	ErrUnsupportedType = errors.New("docstream: unsupported type")
)

// UsageError reports a violation of the builder protocol: a second key
// before the first was consumed, a spent Field, a duplicate field name, or
// any use of a finalized builder. Builders panic with it.
type UsageError struct {
	Op     string
	Reason string
}

func (e *UsageError) Error() string {
	return "docstream: " + e.Op + ": " + e.Reason
}

func (e *UsageError) Is(target error) bool {
	return target == ErrUsage
}

// TypeMismatchError reports a decode whose destination cannot hold the
// source element's tag.
type TypeMismatchError struct {
	Path   string
	Want   string
	Got    Kind
	Detail string
}

func (e *TypeMismatchError) Error() string {
	var b strings.Builder
	b.WriteString("docstream: type mismatch")
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	fmt.Fprintf(&b, ": want %s, got %s", e.Want, e.Got)
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	return b.String()
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

func (e *TypeMismatchError) prefixed(segment string) error {
	cp := *e
	cp.Path = joinPath(segment, e.Path)
	return &cp
}

// MissingFieldError reports a missing element decoded into a destination
// that has no representation for absence.
type MissingFieldError struct {
	Path string
}

func (e *MissingFieldError) Error() string {
	if e.Path == "" {
		return "docstream: missing field"
	}
	return "docstream: missing field " + e.Path
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

func (e *MissingFieldError) prefixed(segment string) error {
	cp := *e
	cp.Path = joinPath(segment, e.Path)
	return &cp
}

// UnsupportedTypeError reports a Go type that matches none of the
// encode or decode capabilities.
type UnsupportedTypeError struct {
	Path   string
	Type   reflect.Type
	Reason string
}

func (e *UnsupportedTypeError) Error() string {
	var b strings.Builder
	b.WriteString("docstream: unsupported type ")
	if e.Type != nil {
		b.WriteString(e.Type.String())
	} else {
		b.WriteString("<nil>")
	}
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *UnsupportedTypeError) Is(target error) bool {
	return target == ErrUnsupportedType
}

func (e *UnsupportedTypeError) prefixed(segment string) error {
	cp := *e
	cp.Path = joinPath(segment, e.Path)
	return &cp
}

// InvalidDecodeError describes an invalid destination passed to Decode.
type InvalidDecodeError struct {
	Type reflect.Type
}

func (e *InvalidDecodeError) Error() string {
	if e.Type == nil {
		return "docstream: Decode(nil)"
	}
	if e.Type.Kind() != reflect.Pointer {
		return "docstream: Decode(non-pointer " + e.Type.String() + ")"
	}
	return "docstream: Decode(nil " + e.Type.String() + ")"
}

func (e *InvalidDecodeError) Is(target error) bool {
	return target == ErrUsage
}

type pathError interface {
	error
	prefixed(segment string) error
}

// withPath prefixes segment onto err's path when err is one of ours.
// Errors returned by adapter hooks pass through untouched.
func withPath(err error, segment string) error {
	if segment == "" {
		return err
	}
	if pe, ok := err.(pathError); ok {
		return pe.prefixed(segment)
	}
	return err
}

func joinPath(segment, rest string) string {
	switch {
	case segment == "":
		return rest
	case rest == "":
		return segment
	case strings.HasPrefix(rest, "["):
		return segment + rest
	default:
		return segment + "." + rest
	}
}

func usagePanic(op, format string, args ...any) {
	panic(&UsageError{Op: op, Reason: fmt.Sprintf(format, args...)})
}
