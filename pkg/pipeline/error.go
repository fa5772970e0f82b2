package pipeline

import (
	"errors"
	"fmt"

	"github.com/l7mp/windowfields/pkg/expression"
	"github.com/l7mp/windowfields/pkg/util"
)

// Code is a stable error code reported to the caller of the stage.
type Code int

const (
	// CodeExpressionFailure marks a failed evaluation of an accumulator argument.
	CodeExpressionFailure Code = 2
	// CodeInvalidSpec marks a malformed stage declaration, detected before any document is
	// processed.
	CodeInvalidSpec Code = 9
	// CodeTypeMismatch marks a partition key that evaluated to an array.
	CodeTypeMismatch Code = 14
	// CodeExceededMemoryLimit marks a partition buffer that grew over the configured cap.
	CodeExceededMemoryLimit Code = 146
	// CodeUpstreamFailure marks a failed input stream.
	CodeUpstreamFailure Code = 9001
)

func (c Code) String() string {
	switch c {
	case CodeExpressionFailure:
		return "ExpressionFailure"
	case CodeInvalidSpec:
		return "FailedToParse"
	case CodeTypeMismatch:
		return "TypeMismatch"
	case CodeExceededMemoryLimit:
		return "ExceededMemoryLimit"
	case CodeUpstreamFailure:
		return "UpstreamFailure"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is a fatal error of the window stage.
type Error struct {
	Code    Code
	Message string
	Err     error
}

var (
	ErrExpressionFailure   = &Error{Code: CodeExpressionFailure}
	ErrInvalidSpec         = &Error{Code: CodeInvalidSpec}
	ErrTypeMismatch        = &Error{Code: CodeTypeMismatch}
	ErrExceededMemoryLimit = &Error{Code: CodeExceededMemoryLimit}
	ErrUpstreamFailure     = &Error{Code: CodeUpstreamFailure}
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s (%d)", e.Code, int(e.Code))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors by code, so that errors.Is(err, ErrTypeMismatch) holds for any type mismatch.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the code of the first *Error in the chain of err, or 0.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

func NewInvalidSpecError(err error) error {
	return &Error{Code: CodeInvalidSpec, Message: "invalid $setWindowFields stage", Err: err}
}

func NewTypeMismatchError(value any) error {
	return &Error{
		Code: CodeTypeMismatch,
		Message: fmt.Sprintf("An expression used to partition cannot evaluate to value of type "+
			"%s: %s", expression.KindOf(value), util.Stringify(value)),
	}
}

func NewExpressionFailureError(what string, err error) error {
	return &Error{Code: CodeExpressionFailure, Message: "cannot evaluate " + what, Err: err}
}

func NewExceededMemoryLimitError(limit int) error {
	return &Error{
		Code:    CodeExceededMemoryLimit,
		Message: fmt.Sprintf("partition buffer exceeded the limit of %d documents", limit),
	}
}

func NewUpstreamFailureError(err error) error {
	return &Error{Code: CodeUpstreamFailure, Message: "input stream failed", Err: err}
}
