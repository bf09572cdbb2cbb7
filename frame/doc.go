// Package frame implements the wire codec for the transport protocol.
//
// A frame is a length-prefixed binary unit: a 3-byte big-endian length
// (exclusive of itself) followed by the body. The body layout is aligned to
// the RSocket framing: 4-byte stream id (31 bits used), a 16-bit word packing
// the 6-bit frame type and 10 flag bits, then type-specific fields and data.
//
// Decode is a pure function over a byte slice. Callers drain a buffer by
// looping until it is exhausted or ErrIncomplete is returned; ErrIncomplete
// is a wait-for-more signal, not a fault.
package frame
