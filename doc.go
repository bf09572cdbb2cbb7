// Package iotaruntime provides a host runtime for Iota guest modules.
//
// An Iota is an independently deployable unit exposing named operations under
// a versioned identity. The runtime drives an isolated guest (a WebAssembly
// instance executed with wazero) through a reactive, multiplexed
// request/response/streaming transport built on two fixed shared-memory
// buffers, and composes operations into pipelines on the host side.
//
// # Architecture Overview
//
// The library is organized into packages with distinct responsibilities:
//
//	iotaruntime/     Root package with shared Memory interface and defaults
//	├── runtime/     High-level API for loading bundles and invoking operations
//	├── engine/      wazero integration: guest exports, host module, drain loop
//	├── mux/         Stream multiplexer and per-stream state machines
//	├── frame/       RSocket-aligned frame codec (3-byte length prefix)
//	├── buffer/      Fixed-capacity shared buffer regions with epoch windows
//	├── ops/         Operation-list wire codec and immutable registry
//	├── payload/     Result envelope and CBOR argument encoding
//	├── flow/        Action composition engine (four interaction shapes)
//	├── bundle/      iota.yaml manifests and authenticity-token validation
//	└── errors/      Structured error types
//
// # Quick Start
//
// Load a bundle and invoke a request-response operation:
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	b, err := bundle.Load("./greeter")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mod, err := rt.LoadBundle(ctx, b)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := mod.Instantiate(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	res, err := inst.RequestResponse(ctx, "greeting", "greet",
//	    payload.Args{"name": "World"})
//	fmt.Println(res) // "Hello, World!"
//
// # Concurrency Model
//
// Each side of the transport runs a single-threaded, cooperative loop: one
// pass drains a buffer, decodes every complete frame, and dispatches each to
// its stream handler before reading the next. Frames for one stream arrive in
// send order; no ordering holds across stream ids beyond batch visibility at
// signal time. Instance is NOT safe for concurrent use; Runtime is.
//
// # Error Model
//
// Transport-fatal conditions (malformed frame, buffer overflow, version
// mismatch, stream-id collision) terminate the instance session. Stream-level
// errors stay scoped to their stream and surface as error Results.
// Application errors travel inside Result envelopes and follow the pipeline
// propagation rules in package flow.
package iotaruntime
