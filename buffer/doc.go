// Package buffer implements the two fixed-capacity shared regions that carry
// all frames between host and guest.
//
// Each region is an append-only window: the writer appends frames, then
// signals; the reader consumes the whole window from offset 0 and
// acknowledges. An epoch counter makes the handoff explicit, so a signal
// arriving while the previous window is still being read is a well-defined
// protocol violation instead of a data race. Writes never resize a region;
// exceeding capacity is an overflow error.
package buffer
