package core

import "context"

// Node is the capability shared by the four agent nodes. Execute receives
// the run state by value and returns the updated state plus the next node
// choice. Implementations must be pure over (state, tools): no ambient
// mutable state, so identical input states yield identical decisions.
//
// External tool calls made inside Execute must respect ctx cancellation and
// carry their own timeouts. A node returns a non-nil error only for
// failures that are not recoverable by retry; the workflow engine converts
// those into the Failed terminal state.
type Node interface {
	Name() NodeName
	Execute(ctx context.Context, s State) (State, NodeName, error)
}
