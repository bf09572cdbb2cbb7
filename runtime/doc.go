// Package runtime is the high-level API over the transport stack.
//
// A Runtime owns one engine plus the host-side import bindings. Loading a
// bundle (or raw module bytes) yields a Module; instantiating a Module
// negotiates buffers, exchanges the operation list and returns an
// Instance ready to invoke.
//
// Invocation is explicit and instance-scoped: callers hold the Instance
// they created and invoke exports by namespace and name through one of the
// four shapes (RequestResponse, FireAndForget, RequestStream, Channel), or
// bind an export to a flow.Action for pipeline composition. Operations the
// guest imports are served by actions registered on the Runtime before
// instantiation.
//
// Request data carries the bare CBOR argument value; payload elements and
// responses carry the Result envelope, so errors travel inside the payload
// rather than beside it.
package runtime
