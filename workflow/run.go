package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/songzhibin97/mediaflow/types"
)

// Run is the state of one workflow execution.
type Run struct {
	ID         string
	Order      []string
	Results    map[string]types.ExecutionResult
	StartedAt  time.Time
	FinishedAt time.Time

	graph types.WorkflowGraph
	nodes map[string]types.Node
	mu    sync.Mutex
}

func newRun(g types.WorkflowGraph, order []string) *Run {
	r := &Run{
		ID:        uuid.NewString(),
		Order:     order,
		Results:   make(map[string]types.ExecutionResult, len(order)),
		StartedAt: time.Now(),
		graph:     g,
		nodes:     make(map[string]types.Node, len(g.Nodes)),
	}
	for _, n := range g.Nodes {
		r.nodes[n.ID] = n
		r.Results[n.ID] = types.ExecutionResult{NodeID: n.ID, Status: types.StatusPending}
	}
	return r
}

// inputs assembles the input ports of id from its completed sources.
// Values are keyed by the edge's source handle, or DefaultPort. Known kinds also
// see the value under the target handle when one is set. Sources that failed or
// never ran are skipped.
// Callers hold r.mu.
func (r *Run) inputs(id string) map[string]any {
	inputs := make(map[string]any)
	alias := r.nodes[id].Kind.Known()
	for _, edge := range r.graph.Edges {
		if edge.Target != id {
			continue
		}
		src, ok := r.Results[edge.Source]
		if !ok || src.Status != types.StatusCompleted {
			continue
		}
		key := edge.SourceHandle
		if key == "" {
			key = DefaultPort
		}
		inputs[key] = src.Output
		if alias && edge.TargetHandle != "" && edge.TargetHandle != key {
			inputs[edge.TargetHandle] = src.Output
		}
	}
	return inputs
}

// blockedBy returns the first direct source of id that failed or was blocked.
// Callers hold r.mu.
func (r *Run) blockedBy(id string) (string, bool) {
	for _, edge := range r.graph.Edges {
		if edge.Target != id {
			continue
		}
		switch r.Results[edge.Source].Status {
		case types.StatusFailed, types.StatusBlocked:
			return edge.Source, true
		}
	}
	return "", false
}

// Result returns the result recorded for a node.
func (r *Run) Result(nodeID string) (types.ExecutionResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.Results[nodeID]
	return res, ok
}

// Ordered returns every result in execution order.
func (r *Run) Ordered() []types.ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.ExecutionResult, 0, len(r.Order))
	for _, id := range r.Order {
		out = append(out, r.Results[id])
	}
	return out
}

// Failed returns the ids of failed nodes in execution order.
func (r *Run) Failed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failed []string
	for _, id := range r.Order {
		if r.Results[id].Status == types.StatusFailed {
			failed = append(failed, id)
		}
	}
	return failed
}

// Outcome summarizes the run as one of the RunState constants.
func (r *Run) Outcome() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome := types.RunStateCompleted
	for _, res := range r.Results {
		switch res.Status {
		case types.StatusPending, types.StatusRunning:
			return types.RunStateCancelled
		case types.StatusFailed, types.StatusBlocked:
			outcome = types.RunStatePartial
		}
	}
	return outcome
}

// Record converts the run into its persisted form.
func (r *Run) Record(name string, runErr error) types.RunRecord {
	rec := types.RunRecord{
		ID:         r.ID,
		Name:       name,
		State:      r.Outcome(),
		Order:      r.Order,
		Results:    r.Ordered(),
		StartedAt:  r.StartedAt.UnixMilli(),
		FinishedAt: r.FinishedAt.UnixMilli(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}
