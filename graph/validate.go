// Package graph validates workflow graphs and computes their execution order.
package graph

import (
	"errors"
	"fmt"

	"github.com/songzhibin97/mediaflow/types"
)

var (
	// ErrInvalidGraph is wrapped by every ValidationError.
	ErrInvalidGraph = errors.New("invalid workflow graph")
	// ErrCyclicGraph is wrapped by every CycleError.
	ErrCyclicGraph = errors.New("workflow graph contains a cycle")
)

// Reason classifies a ValidationError.
type Reason string

const (
	DanglingEdge  Reason = "dangling_edge"
	DuplicateNode Reason = "duplicate_node"
)

// ValidationError describes the first structural problem found in a graph.
type ValidationError struct {
	Reason Reason
	NodeID string
	EdgeID string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case DuplicateNode:
		return fmt.Sprintf("%v: duplicate node id %q", ErrInvalidGraph, e.NodeID)
	case DanglingEdge:
		return fmt.Sprintf("%v: edge %q references unknown node %q", ErrInvalidGraph, e.EdgeID, e.NodeID)
	default:
		return ErrInvalidGraph.Error()
	}
}

func (e *ValidationError) Unwrap() error { return ErrInvalidGraph }

// CycleError is returned when no topological order covers every node.
type CycleError struct {
	// Unresolved lists the nodes left out of the order, in node-array order.
	Unresolved []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %d unresolved nodes %v", ErrCyclicGraph, len(e.Unresolved), e.Unresolved)
}

func (e *CycleError) Unwrap() error { return ErrCyclicGraph }

// Validate checks node id uniqueness and edge endpoints. Cycles are detected by Order.
func Validate(g types.WorkflowGraph) error {
	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if ids[n.ID] {
			return &ValidationError{Reason: DuplicateNode, NodeID: n.ID}
		}
		ids[n.ID] = true
	}

	for _, e := range g.Edges {
		if !ids[e.Source] {
			return &ValidationError{Reason: DanglingEdge, NodeID: e.Source, EdgeID: e.ID}
		}
		if !ids[e.Target] {
			return &ValidationError{Reason: DanglingEdge, NodeID: e.Target, EdgeID: e.ID}
		}
	}
	return nil
}
