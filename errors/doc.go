// Package errors provides structured error types for the iota runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes context: field path, offending value,
// and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseFrame, errors.KindMalformed).
//		Path("header", "streamID").
//		Detail("stream id has high bit set").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Overflow(errors.PhaseBuffer, 70000, 65536)
//	err := errors.IDCollision(7)
//
// Fatal reports whether an error is transport-fatal, i.e. terminates the
// whole guest session rather than one stream.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
