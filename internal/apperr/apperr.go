package apperr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies an error for callers and for the API-layer mapper.
type Kind string

const (
	KindValidation         Kind = "VALIDATION_ERROR"
	KindNotFound           Kind = "NOT_FOUND"
	KindForbidden          Kind = "FORBIDDEN"
	KindConflict           Kind = "CONFLICT"
	KindServiceUnavailable Kind = "SERVICE_UNAVAILABLE"
	KindDatabase           Kind = "DATABASE_ERROR"
	KindEmbedding          Kind = "EMBEDDING_ERROR"
	KindLLM                Kind = "LLM_ERROR"
)

// Error is the typed error carried across use-case boundaries.
// Infrastructure kinds (database, embedding, LLM) also carry a
// correlation ID so log lines and API responses can be matched.
type Error struct {
	Kind     Kind
	Message  string
	Resource string
	ID       string
	cause    error
}

func (e *Error) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Resource)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a typed error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a typed error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithResource attaches the resource identifier the error refers to.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// Wrap creates an infrastructure error around a cause and assigns a
// correlation ID.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		ID:      uuid.NewString(),
		cause:   cause,
	}
}

// KindOf extracts the kind of err, or an empty string when err is not
// a typed error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
