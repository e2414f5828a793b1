package workflow

import (
	"errors"
	"fmt"

	"github.com/songzhibin97/mediaflow/types"
)

// Standard error definitions
var (
	ErrProviderRequired    = errors.New("provider is required")
	ErrCollaboratorMissing = errors.New("no collaborator configured for node kind")
	ErrMissingInput        = errors.New("required input missing")
	ErrNodePanic           = errors.New("node execution panicked")
)

// NodeExecutionError is the failure of a single node. It never aborts a run.
type NodeExecutionError struct {
	NodeID string
	Kind   types.NodeKind
	Err    error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.Kind, e.Err)
}

func (e *NodeExecutionError) Unwrap() error { return e.Err }
