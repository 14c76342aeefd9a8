// Package audit implements async event dispatching for gate decisions and
// record creation.
//
// # Components
//
//   - [Sink] is the interface for event consumers (channel, JSON writer, no-op, Kafka).
//   - [Dispatcher] is a buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event] is the structured record: timestamp, type, user, session, path, outcome.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit. The Gate does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import onboardgate or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
