package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/netcfg/internal/inventory"
)

// Output is what a task reports for one host on success.
type Output struct {
	Result  string
	Diff    string
	Changed bool
}

// TaskFunc does one stage of work against a single host. It may only mutate the
// host it is handed.
type TaskFunc func(ctx context.Context, h *inventory.Host) (Output, error)

// Task names a TaskFunc for reporting.
type Task struct {
	Name string
	Fn   TaskFunc
}

// TaskResult is the outcome of a task on one host.
type TaskResult struct {
	Host     string
	Name     string
	Failed   bool
	Changed  bool
	Result   string
	Diff     string
	Err      error
	Duration time.Duration
}

// AggregatedResult collects the per-host results of one task, in inventory order.
type AggregatedResult struct {
	Name    string
	Results []TaskResult
}

// Failed reports whether any host failed.
func (a AggregatedResult) Failed() bool {
	for _, r := range a.Results {
		if r.Failed {
			return true
		}
	}
	return false
}

// FailedHosts lists the names of hosts that failed.
func (a AggregatedResult) FailedHosts() []string {
	var out []string
	for _, r := range a.Results {
		if r.Failed {
			out = append(out, r.Host)
		}
	}
	return out
}

// Changed counts hosts whose result reported a change.
func (a AggregatedResult) Changed() int {
	n := 0
	for _, r := range a.Results {
		if r.Changed {
			n++
		}
	}
	return n
}

// FleetExecutor runs a task against every host of an inventory.
type FleetExecutor interface {
	RunOnAll(ctx context.Context, inv *inventory.Inventory, task Task) AggregatedResult
}

// ParallelExecutor runs hosts concurrently, at most Workers at a time.
type ParallelExecutor struct {
	Workers int
}

// NewParallelExecutor returns an executor with the given worker cap (20 if <= 0).
func NewParallelExecutor(workers int) *ParallelExecutor {
	if workers <= 0 {
		workers = 20
	}
	return &ParallelExecutor{Workers: workers}
}

// RunOnAll executes task on each host and waits for all of them.
func (e *ParallelExecutor) RunOnAll(ctx context.Context, inv *inventory.Inventory, task Task) AggregatedResult {
	agg := AggregatedResult{Name: task.Name, Results: make([]TaskResult, len(inv.Hosts))}
	workers := e.Workers
	if workers <= 0 {
		workers = 20
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, h := range inv.Hosts {
		wg.Add(1)
		go func(i int, h *inventory.Host) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				agg.Results[i] = TaskResult{Host: h.Name, Name: task.Name, Failed: true, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()
			agg.Results[i] = runTask(ctx, task, h)
		}(i, h)
	}

	wg.Wait()
	return agg
}

func runTask(ctx context.Context, task Task, h *inventory.Host) (res TaskResult) {
	res = TaskResult{Host: h.Name, Name: task.Name}
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Failed = true
			res.Err = fmt.Errorf("panic: %v", p)
		}
		res.Duration = time.Since(start)
		ev := log.Debug()
		if res.Failed {
			ev = log.Error().Err(res.Err)
		}
		ev.Str("task", task.Name).Str("host", h.Name).Dur("took", res.Duration).Bool("changed", res.Changed).Msg("task finished")
	}()

	out, err := task.Fn(ctx, h)
	if err != nil {
		res.Failed = true
		res.Err = err
		return res
	}
	res.Result, res.Diff, res.Changed = out.Result, out.Diff, out.Changed
	return res
}
