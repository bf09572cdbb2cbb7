// Package mux multiplexes many concurrent interactions over one frame
// transport.
//
// Each interaction owns a stream id (odd for host-initiated, even for
// guest-initiated) and walks the state machine NEW, ACTIVE, then one of
// COMPLETE, CANCELLED or ERRORED. Terminal ids stay registered until
// released, so premature reuse is detected as a protocol violation.
//
// The Endpoint is a demultiplexing router, not a scheduler: every decoded
// frame is dispatched synchronously to its stream's handler during the read
// pass, and many streams interleave at frame granularity on a single
// logical thread. Stream-level errors stay scoped to their stream;
// transport-fatal conditions fail the endpoint and error every live stream.
package mux
