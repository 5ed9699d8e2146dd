package graphlite

import (
	"errors"
	"fmt"
)

// Code classifies coordinator failures. The numeric values are part of
// the embedding contract and must stay stable.
type Code int

const (
	CodeSuccess      Code = 0
	CodeNullPointer  Code = 1
	CodeInvalidUtf8  Code = 2
	CodeDatabaseOpen Code = 3
	CodeSessionError Code = 4
	CodeQueryError   Code = 5
	CodePanicError   Code = 6
	CodeJSONError    Code = 7
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeNullPointer:
		return "null pointer"
	case CodeInvalidUtf8:
		return "invalid utf-8"
	case CodeDatabaseOpen:
		return "database open error"
	case CodeSessionError:
		return "session error"
	case CodeQueryError:
		return "query error"
	case CodePanicError:
		return "panic"
	case CodeJSONError:
		return "json error"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error is a classified coordinator failure.
type Error struct {
	Code    Code
	Message string
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the classification of err. A nil error is Success;
// an unclassified error counts as a query failure.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeQueryError
}

func codedErr(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

func codedErrf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
