package gql

import "fmt"

// Error is a query compilation or execution failure: a syntax error, a
// semantic error (unknown variable, type-mismatched predicate) or a
// rejected mutation. The whole query the error belongs to has no effect
// on the store.
type Error struct {
	// Msg is the human-readable description.
	Msg string
	// Pos is the byte offset into the query text where the problem was
	// detected, or -1 when no position applies.
	Pos int
}

func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s (at offset %d)", e.Msg, e.Pos)
	}
	return e.Msg
}

// errf builds an *Error at the given offset.
func errf(pos int, format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...), Pos: pos}
}
