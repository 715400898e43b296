package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/loomworks/loom/internal/core"
	"github.com/loomworks/loom/internal/dag"
)

// RunOptions control which nodes execute and how.
type RunOptions struct {
	// Select restricts the run to the named nodes. Empty means all.
	Select []string
	// Downstream extends the selection with all descendants.
	Downstream bool
	// SeedsOnly restricts the run to seed nodes (loom seed).
	SeedsOnly bool
	// FullRefresh rebuilds incremental models from scratch.
	FullRefresh bool
	// Parallelism overrides the engine's worker pool size when positive.
	Parallelism int
}

// Run compiles nothing: it executes the already-compiled graph. Nodes
// are dispatched the moment all their dependencies have succeeded, up
// to the configured parallelism. A node failure fails only its
// transitive dependents; independent branches keep running. Cancelling
// ctx lets in-flight executions finish and skips everything else; the
// run is partial when cancellation actually skipped a node.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*core.Run, error) {
	if err := e.ensureConnected(ctx); err != nil {
		return nil, err
	}

	graph, err := e.selectGraph(opts)
	if err != nil {
		return nil, err
	}

	run := &core.Run{
		ID:          uuid.New().String(),
		Environment: e.environment,
		Status:      core.RunStatusRunning,
		StartedAt:   time.Now(),
		Results:     make(map[string]*core.NodeResult),
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = e.parallelism
	}
	s := &scheduler{
		engine:      e,
		graph:       graph,
		run:         run,
		fullRefresh: opts.FullRefresh,
		parallelism: parallelism,
		waiting:     make(map[string]int),
		dispatched:  make(map[string]bool),
	}
	s.execute(ctx)

	run.CompletedAt = time.Now()
	switch {
	case s.cancelSkipped > 0:
		run.Status = core.RunStatusPartial
		run.Error = "run cancelled"
	case run.Failed():
		run.Status = core.RunStatusFailed
	default:
		run.Status = core.RunStatusCompleted
	}

	success, failed, skipped := run.Counts()
	e.logger.Info("run finished",
		"run_id", run.ID, "status", string(run.Status),
		"success", success, "failed", failed, "skipped", skipped,
		"duration", run.CompletedAt.Sub(run.StartedAt))
	return run, nil
}

// selectGraph narrows the compiled graph to the requested subset.
func (e *Engine) selectGraph(opts RunOptions) (*dag.Graph, error) {
	if opts.SeedsOnly {
		var names []string
		for _, m := range e.graph.Nodes() {
			if m.Type == core.NodeTypeSeed {
				names = append(names, m.Name)
			}
		}
		return e.graph.Subgraph(names), nil
	}

	if len(opts.Select) == 0 {
		return e.graph, nil
	}

	for _, name := range opts.Select {
		if _, ok := e.graph.Node(name); !ok {
			return nil, fmt.Errorf("selected node %q does not exist", name)
		}
	}
	names := opts.Select
	if opts.Downstream {
		names = e.graph.WithDownstream(names)
	}
	return e.graph.Subgraph(names), nil
}

type nodeOutcome struct {
	name   string
	status core.NodeStatus
	err    error
	rows   int64
}

// scheduler drives one run over a (sub)graph. All bookkeeping happens
// on the coordinator goroutine; workers only execute and report.
type scheduler struct {
	engine      *Engine
	graph       *dag.Graph
	run         *core.Run
	fullRefresh bool
	parallelism int

	// waiting counts, per executable node, the dependencies that have
	// not yet reached a terminal state. Source nodes never count: their
	// relations are expected to pre-exist.
	waiting    map[string]int
	dispatched map[string]bool
	cancelled  bool
	// cancelSkipped counts nodes skipped because of cancellation, both
	// never-dispatched ones and ones drained from the queue unexecuted.
	cancelSkipped int
}

func (s *scheduler) execute(ctx context.Context) {
	total := 0
	for _, m := range s.graph.Nodes() {
		if !m.IsExecutable() {
			continue
		}
		total++
		s.run.Results[m.Name] = &core.NodeResult{Name: m.Name, Status: core.NodeStatusPending}

		n := 0
		for _, parent := range s.graph.Parents(m.Name) {
			if p, ok := s.graph.Node(parent); ok && p.IsExecutable() {
				n++
			}
		}
		s.waiting[m.Name] = n
	}
	if total == 0 {
		return
	}

	ready := make(chan string, total)
	outcomes := make(chan nodeOutcome, total)

	// In-flight executions run to completion even when the run is
	// cancelled: a node is never aborted mid-transaction.
	execCtx := context.WithoutCancel(ctx)

	var workers errgroup.Group
	for range s.parallelism {
		workers.Go(func() error {
			for name := range ready {
				// A node still queued when the run is cancelled is
				// drained without executing.
				if ctx.Err() != nil {
					outcomes <- nodeOutcome{name: name, status: core.NodeStatusSkipped}
					continue
				}
				m, _ := s.graph.Node(name)
				s.engine.logger.Info("executing node",
					"node", name, "materialized", string(m.Materialized))
				rows, err := s.engine.executeNode(execCtx, m, s.fullRefresh)
				out := nodeOutcome{name: name, status: core.NodeStatusSuccess, rows: rows}
				if err != nil {
					out.status = core.NodeStatusFailed
					out.err = &core.RuntimeError{Node: name, Err: err}
				}
				outcomes <- out
			}
			return nil
		})
	}

	for name, n := range s.waiting {
		if n == 0 {
			s.dispatch(name, ready)
		}
	}

	done := ctx.Done()
	completed := 0
	for completed < total {
		select {
		case <-done:
			done = nil
			s.cancelled = true
			n := s.skipPending("run cancelled")
			s.cancelSkipped += n
			completed += n

		case out := <-outcomes:
			completed++
			res := s.run.Results[out.name]
			res.Status = out.status
			res.CompletedAt = time.Now()
			res.RowsAffected = out.rows
			if out.status == core.NodeStatusSkipped {
				res.Error = "run cancelled"
				s.cancelSkipped++
				continue
			}
			if out.err != nil {
				res.Error = out.err.Error()
				s.engine.logger.Error("node failed", "node", out.name, "error", out.err)
				completed += s.skipDescendants(out.name)
				continue
			}

			s.engine.logger.Debug("node succeeded",
				"node", out.name, "rows", out.rows, "duration", res.Duration())
			if s.cancelled {
				continue
			}
			for _, child := range s.graph.Children(out.name) {
				if _, tracked := s.waiting[child]; !tracked {
					continue
				}
				s.waiting[child]--
				if s.waiting[child] == 0 && s.run.Results[child].Status == core.NodeStatusPending {
					s.dispatch(child, ready)
				}
			}
		}
	}

	close(ready)
	_ = workers.Wait()
}

func (s *scheduler) dispatch(name string, ready chan<- string) {
	s.dispatched[name] = true
	res := s.run.Results[name]
	res.Status = core.NodeStatusRunning
	res.StartedAt = time.Now()
	ready <- name
}

// skipDescendants marks every pending dependent of a failed node as
// skipped and returns how many nodes that settled.
func (s *scheduler) skipDescendants(name string) int {
	reason := fmt.Sprintf("upstream failure: %s", name)
	skipped := 0
	for _, d := range s.graph.Descendants(name) {
		res, ok := s.run.Results[d]
		if !ok || res.Status != core.NodeStatusPending || s.dispatched[d] {
			continue
		}
		res.Status = core.NodeStatusSkipped
		res.Error = reason
		s.engine.logger.Warn("node skipped", "node", d, "reason", reason)
		skipped++
	}
	return skipped
}

// skipPending marks every node not yet dispatched as skipped.
func (s *scheduler) skipPending(reason string) int {
	skipped := 0
	for _, res := range s.run.Results {
		if res.Status != core.NodeStatusPending || s.dispatched[res.Name] {
			continue
		}
		res.Status = core.NodeStatusSkipped
		res.Error = reason
		skipped++
	}
	return skipped
}
