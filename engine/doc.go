// Package engine runs guest modules under wazero and wires them to the
// buffer frame protocol.
//
// The engine instantiates one iota host module per wazero runtime. Guests
// import initBuffers, send and deliverOperationList from it and export
// initialize, requestOperationList and send. Initialization hands the host
// the guest's buffer locations; after that, each side writes frames into
// its region and signals the other with a byte count. The host side of
// that exchange lives here: Instance.SendFrame flushes outbound frames
// into guest memory, and the drain loop decodes inbound windows and hands
// complete frames to the bound Handler.
package engine
