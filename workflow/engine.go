package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/songzhibin97/mediaflow/events"
	"github.com/songzhibin97/mediaflow/graph"
	"github.com/songzhibin97/mediaflow/types"
)

// FailurePolicy decides what happens to the dependents of a failed node.
type FailurePolicy int

const (
	// ContinueOnFailure runs dependents with the failed port absent from their inputs.
	ContinueOnFailure FailurePolicy = iota
	// BlockDependents marks every node downstream of a failure as blocked without dispatching it.
	BlockDependents
)

func (p FailurePolicy) String() string {
	if p == BlockDependents {
		return "block"
	}
	return "continue"
}

// ParseFailurePolicy parses "continue" or "block".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "continue":
		return ContinueOnFailure, nil
	case "block":
		return BlockDependents, nil
	}
	return ContinueOnFailure, fmt.Errorf("unknown failure policy %q", s)
}

// Callbacks are how callers observe a run. Nil callbacks are skipped.
// They are never invoked concurrently with each other.
type Callbacks struct {
	OnNodeStart    func(nodeID string)
	OnNodeComplete func(nodeID string, output any)
	OnNodeError    func(nodeID string, message string)
	OnNodeBlocked  func(nodeID string, upstreamID string)
}

// Metrics receives run and node measurements.
type Metrics interface {
	RunStarted()
	RunFinished(outcome string, d time.Duration)
	NodeFinished(kind types.NodeKind, status types.Status, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RunStarted()                                              {}
func (nopMetrics) RunFinished(string, time.Duration)                        {}
func (nopMetrics) NodeFinished(types.NodeKind, types.Status, time.Duration) {}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics reports run and node measurements to m.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithEventBus publishes node and run lifecycle events to bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithFailurePolicy sets how a failed node affects its dependents. The default is ContinueOnFailure.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithConcurrency lets up to n independent nodes run at once. n <= 1 runs nodes one at a time.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.concurrency = n
	}
}

// WithNodeTimeout bounds every external call. Zero means no timeout.
func WithNodeTimeout(d time.Duration) Option {
	return func(e *Engine) { e.nodeTimeout = d }
}

// Engine executes workflow graphs.
type Engine struct {
	executor    *Executor
	logger      *zap.Logger
	metrics     Metrics
	bus         *events.EventBus
	policy      FailurePolicy
	concurrency int
	nodeTimeout time.Duration
}

// NewEngine creates an Engine dispatching external calls to provider.
func NewEngine(provider Provider, opts ...Option) (*Engine, error) {
	executor, err := NewExecutor(provider)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		executor:    executor,
		logger:      zap.NewNop(),
		metrics:     nopMetrics{},
		policy:      ContinueOnFailure,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ExecuteWorkflow runs every node of g once, in dependency order.
//
// Structural problems (a *graph.ValidationError or a *graph.CycleError) are returned before
// any node is touched, with a nil Run. Node failures are recorded in the Run and never
// abort it. If ctx ends mid-run, the nodes not yet started stay pending and ctx.Err() is
// returned together with the Run.
func (e *Engine) ExecuteWorkflow(ctx context.Context, g types.WorkflowGraph, cb Callbacks) (*Run, error) {
	if err := graph.Validate(g); err != nil {
		e.logger.Warn("workflow rejected", zap.Error(err))
		return nil, err
	}
	order, err := graph.Order(g)
	if err != nil {
		e.logger.Warn("workflow rejected", zap.Error(err))
		return nil, err
	}

	run := newRun(g, order)
	logger := e.logger.With(zap.String("run_id", run.ID))
	logger.Info("run started",
		zap.Int("nodes", len(order)),
		zap.String("policy", e.policy.String()),
		zap.Int("concurrency", e.concurrency))
	e.metrics.RunStarted()

	if e.concurrency > 1 {
		err = e.runConcurrent(ctx, run, cb)
	} else {
		err = e.runSequential(ctx, run, cb)
	}

	run.FinishedAt = time.Now()
	outcome := run.Outcome()
	e.metrics.RunFinished(outcome, run.FinishedAt.Sub(run.StartedAt))
	e.publish(ctx, events.RunCompleted, run.ID, "", map[string]interface{}{
		"outcome": outcome,
		"failed":  run.Failed(),
	})
	logger.Info("run finished",
		zap.String("outcome", outcome),
		zap.Duration("duration", run.FinishedAt.Sub(run.StartedAt)))

	return run, err
}

func (e *Engine) runSequential(ctx context.Context, run *Run, cb Callbacks) error {
	for _, id := range run.Order {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.runNode(ctx, run, id, cb)
	}
	return nil
}

// runConcurrent starts each node once all of its sources are terminal. Goroutines are
// launched in topological order, so the lowest active node can always make progress.
func (e *Engine) runConcurrent(ctx context.Context, run *Run, cb Callbacks) error {
	done := make(map[string]chan struct{}, len(run.Order))
	for _, id := range run.Order {
		done[id] = make(chan struct{})
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, id := range run.Order {
		upstream := graph.Upstream(run.graph, id)
		g.Go(func() error {
			defer close(done[id])
			for _, up := range upstream {
				select {
				case <-done[up]:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			e.runNode(ctx, run, id, cb)
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) runNode(ctx context.Context, run *Run, id string, cb Callbacks) {
	node := run.nodes[id]
	logger := e.logger.With(zap.String("run_id", run.ID), zap.String("node_id", id), zap.String("kind", string(node.Kind)))

	run.mu.Lock()
	if e.policy == BlockDependents {
		if up, blocked := run.blockedBy(id); blocked {
			run.Results[id] = types.ExecutionResult{
				NodeID: id,
				Status: types.StatusBlocked,
				Error:  fmt.Sprintf("blocked by upstream node %s", up),
			}
			if cb.OnNodeBlocked != nil {
				cb.OnNodeBlocked(id, up)
			}
			run.mu.Unlock()

			logger.Debug("node blocked", zap.String("upstream", up))
			e.metrics.NodeFinished(node.Kind, types.StatusBlocked, 0)
			e.publish(ctx, events.NodeBlocked, run.ID, id, map[string]interface{}{"upstream": up})
			return
		}
	}
	run.Results[id] = types.ExecutionResult{NodeID: id, Status: types.StatusRunning}
	if cb.OnNodeStart != nil {
		cb.OnNodeStart(id)
	}
	inputs := run.inputs(id)
	run.mu.Unlock()

	logger.Debug("node started", zap.Int("inputs", len(inputs)))
	e.publish(ctx, events.NodeStarted, run.ID, id, nil)

	start := time.Now()
	out, err := e.execute(ctx, node, inputs)
	elapsed := time.Since(start)

	if err != nil {
		msg := errorMessage(err)
		run.mu.Lock()
		run.Results[id] = types.ExecutionResult{NodeID: id, Status: types.StatusFailed, Error: msg}
		if cb.OnNodeError != nil {
			cb.OnNodeError(id, msg)
		}
		run.mu.Unlock()

		logger.Warn("node failed", zap.Duration("duration", elapsed), zap.Error(err))
		e.metrics.NodeFinished(node.Kind, types.StatusFailed, elapsed)
		e.publish(ctx, events.NodeFailed, run.ID, id, map[string]interface{}{"error": msg})
		return
	}

	run.mu.Lock()
	run.Results[id] = types.ExecutionResult{NodeID: id, Status: types.StatusCompleted, Output: out}
	if cb.OnNodeComplete != nil {
		cb.OnNodeComplete(id, out)
	}
	run.mu.Unlock()

	logger.Debug("node completed", zap.Duration("duration", elapsed))
	e.metrics.NodeFinished(node.Kind, types.StatusCompleted, elapsed)
	e.publish(ctx, events.NodeCompleted, run.ID, id, nil)
}

// execute dispatches one node, turning panics into node failures.
func (e *Engine) execute(ctx context.Context, node types.Node, inputs map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &NodeExecutionError{NodeID: node.ID, Kind: node.Kind, Err: fmt.Errorf("%w: %v", ErrNodePanic, r)}
		}
	}()

	if e.nodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.nodeTimeout)
		defer cancel()
	}
	return e.executor.Execute(ctx, node, inputs)
}

// publish sends an event to the bus, if any. A bus without subscribers is not an error.
func (e *Engine) publish(ctx context.Context, eventType, runID, nodeID string, data map[string]interface{}) {
	if e.bus == nil {
		return
	}
	err := e.bus.Publish(context.WithoutCancel(ctx), events.Event{
		Type:   eventType,
		RunID:  runID,
		NodeID: nodeID,
		Data:   data,
	})
	if err != nil && !errors.Is(err, events.ErrNoHandler) {
		e.logger.Debug("event dropped", zap.String("type", eventType), zap.Error(err))
	}
}

func errorMessage(err error) string {
	var nerr *NodeExecutionError
	if errors.As(err, &nerr) && nerr.Err != nil {
		return nerr.Err.Error()
	}
	return err.Error()
}
