// Package flow composes actions into pipelines with automatic error
// propagation.
//
// An Action wraps one operation in one of four interaction shapes:
// fire-and-forget, request-response, request-stream or channel. A Pipeline
// chains actions and moves Results between them: an error Result skips
// Result-unaware stages and surfaces unchanged at the terminal observer,
// while a stage marked with AcceptResult receives the raw Result, errors
// included, and may recover from them.
//
// Stream handling follows the shapes. A single-in stage after a streaming
// stage is mapped over every element; a stream-producing stage after a
// streaming stage flattens sub-streams in order; a channel stage consumes
// the whole stream directly. Per-element errors do not abort sibling
// elements unless the pipeline was built with WithFailFast.
package flow
