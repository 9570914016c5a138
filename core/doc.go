// Package core contains the shared data model threaded through a workflow
// run: the execution State, retrieved media Items, progress and stream
// events, the Node contract implemented by the agent nodes, and the error
// taxonomy used to classify upstream failures.
//
// The package intentionally has no behavior beyond value helpers. State is
// immutable by convention: every mutation helper returns a fresh value with
// copied slices/maps so concurrent runs never share mutable structures.
package core
