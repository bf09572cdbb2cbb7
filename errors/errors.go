package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseBuffer  Phase = "buffer"  // shared buffer windows
	PhaseFrame   Phase = "frame"   // frame encode/decode
	PhaseMux     Phase = "mux"     // stream multiplexing
	PhaseOps     Phase = "ops"     // operation-list exchange
	PhasePayload Phase = "payload" // result envelope codec
	PhaseFlow    Phase = "flow"    // action composition
	PhaseBundle  Phase = "bundle"  // bundle loading/validation
	PhaseEngine  Phase = "engine"  // wazero guest integration
	PhaseRuntime Phase = "runtime" // high-level runtime operations
)

// Kind categorizes the error
type Kind string

const (
	KindOverflow          Kind = "overflow"
	KindIncomplete        Kind = "incomplete"
	KindMalformed         Kind = "malformed"
	KindProtocolViolation Kind = "protocol_violation"
	KindVersionMismatch   Kind = "version_mismatch"
	KindIDCollision       Kind = "id_collision"
	KindCancelled         Kind = "cancelled"
	KindNotFound          Kind = "not_found"
	KindNotInitialized    Kind = "not_initialized"
	KindInvalidInput      Kind = "invalid_input"
	KindValidation        Kind = "validation"
	KindInstantiation     Kind = "instantiation"
	KindUnsupported       Kind = "unsupported"
	KindClosed            Kind = "closed"
	KindBusy              Kind = "busy"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsPhase reports whether err is (or wraps) an *Error from the given phase.
func IsPhase(err error, phase Phase) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Phase == phase
	}
	return false
}

// Fatal reports whether err is transport-fatal: a condition that terminates
// the whole session rather than a single stream. Stream-level and application
// errors are never fatal.
func Fatal(err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	switch e.Kind {
	case KindMalformed, KindOverflow, KindVersionMismatch,
		KindIDCollision, KindProtocolViolation:
		return true
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Overflow creates a buffer/frame overflow error
func Overflow(phase Phase, have, capacity int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Detail: fmt.Sprintf("%d bytes exceed capacity %d", have, capacity),
		Value:  have,
	}
}

// Malformed creates a malformed-data error
func Malformed(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMalformed,
		Detail: detail,
	}
}

// ProtocolViolation creates a protocol violation error
func ProtocolViolation(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindProtocolViolation,
		Detail: detail,
	}
}

// VersionMismatch creates a version/magic mismatch error
func VersionMismatch(phase Phase, got, want any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindVersionMismatch,
		Detail: fmt.Sprintf("got %v, want %v", got, want),
		Value:  got,
	}
}

// IDCollision creates a stream id collision error
func IDCollision(id uint32) *Error {
	return &Error{
		Phase:  PhaseMux,
		Kind:   KindIDCollision,
		Detail: fmt.Sprintf("stream id %d already in use", id),
		Value:  id,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// NotInitialized creates a not-initialized error for a missing component
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Validation creates a bundle validation error
func Validation(detail string) *Error {
	return &Error{
		Phase:  PhaseBundle,
		Kind:   KindValidation,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindInstantiation,
		Detail: "instantiate guest module",
		Cause:  cause,
	}
}

// Cancelled creates a cancellation error for a stream
func Cancelled(phase Phase, streamID uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCancelled,
		Detail: fmt.Sprintf("stream %d cancelled", streamID),
		Value:  streamID,
	}
}

// Closed creates an error for operations on a closed component
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", component),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
