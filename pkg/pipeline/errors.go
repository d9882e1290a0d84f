package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies pipeline failures.
type Kind string

const (
	KindSchemaNotFound  Kind = "SchemaNotFound"
	KindModelCallFailed Kind = "ModelCallFailed"
	KindNoSQLFound      Kind = "NoSqlFound"
	KindInvalidSQL      Kind = "InvalidSql"
	KindQueryExecution  Kind = "QueryExecutionError"
	KindRetrievalFailed Kind = "RetrievalFailed"
	KindCanceled        Kind = "Canceled"
)

// Transient reports whether failures of this kind may succeed on retry.
func (k Kind) Transient() bool {
	switch k {
	case KindModelCallFailed, KindRetrievalFailed:
		return true
	default:
		return false
	}
}

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	Op   string
	SQL  string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.SQL != "" {
		msg += " (sql: " + e.SQL + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether a retry may help. Besides transient kinds, a
// query that ran into its own deadline is retried.
func (e *Error) Transient() bool {
	if e.Kind.Transient() {
		return true
	}
	return e.Kind == KindQueryExecution && errors.Is(e.Err, context.DeadlineExceeded)
}

// KindOf returns the kind of err, or "" when err is not a pipeline error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FriendlyMessage renders err for direct display to an end user.
func FriendlyMessage(err error) string {
	switch KindOf(err) {
	case KindSchemaNotFound:
		return "The asset table is not available right now. Please load the asset data and try again."
	case KindModelCallFailed:
		return "The language model could not be reached. Please try again in a moment."
	case KindNoSQLFound, KindInvalidSQL:
		return "I could not turn that question into a query. Please rephrase it and try again."
	case KindQueryExecution:
		return "The generated query could not be run against the asset data. Please rephrase your question."
	case KindRetrievalFailed:
		return "I could not search the asset records. Please try again in a moment."
	case KindCanceled:
		return "The request timed out. Please try again."
	default:
		return "An error occurred while answering your question. Please try again."
	}
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
