// Package executor defines the boundary to the remote statement
// execution service: submit a SQL statement against a target namespace
// and warehouse, then poll until a terminal state. Terminal failures are
// surfaced as-is; retrying is a policy decision left to the caller.
package executor

import "context"

// State is the lifecycle state of a submitted statement.
type State string

const (
	StatePending   State = "PENDING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCanceled  State = "CANCELED"
)

// Terminal reports whether the state will no longer change.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCanceled:
		return true
	}
	return false
}

// Namespace is the catalog/schema pair a statement runs against.
type Namespace struct {
	Catalog string
	Schema  string
}

// StatementRequest describes one statement submission.
type StatementRequest struct {
	Statement   string
	Namespace   Namespace
	WarehouseID string
	// WaitTimeout is passed through to the service: wait up to this long
	// before returning control regardless of completion, e.g. "30s".
	WaitTimeout string
}

// StatementResponse is the service's view of a submitted statement.
// Rows are present only for succeeded statements that returned data.
type StatementResponse struct {
	StatementID string
	State       State
	Rows        []map[string]interface{}
	Error       string
}

// Executor runs SQL statements against a warehouse and reports a
// terminal outcome. Execute blocks until the statement reaches a
// terminal state or ctx is done.
type Executor interface {
	Execute(ctx context.Context, req StatementRequest) (*StatementResponse, error)
	GetStatus(ctx context.Context, statementID string) (*StatementResponse, error)
}
