// Package payload defines the Result envelope and argument encoding carried
// inside PAYLOAD and ERROR frame bodies.
//
// Every action produces and consumes values wrapped in a Result: either a
// success value or an error (message plus optional structured detail). The
// envelope and argument sets are encoded with CBOR; arguments are named
// fields, never positional, so caller and callee can evolve independently.
package payload
