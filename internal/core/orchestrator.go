package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/netcfg/internal/backup"
	"github.com/3cpo-dev/netcfg/internal/driver"
	"github.com/3cpo-dev/netcfg/internal/inventory"
	"github.com/3cpo-dev/netcfg/internal/render"
	"github.com/3cpo-dev/netcfg/internal/telemetry"
	"github.com/3cpo-dev/netcfg/pkg/api"
)

// StageError aborts a run: at least one host failed the named stage.
type StageError struct {
	Stage  api.Stage
	Result AggregatedResult
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed on %s", e.Stage, strings.Join(e.Result.FailedHosts(), ", "))
}

// Deps are the collaborators of an Orchestrator. Zero values get defaults.
type Deps struct {
	Executor   FleetExecutor
	Registry   *driver.Registry
	Retrievers *backup.Table
	Connect    ConnectOptions
	Paths      Paths
	Out        io.Writer
	Store      *Store
	Telemetry  *telemetry.Collector
}

// Orchestrator drives the configuration pipeline over an inventory.
type Orchestrator struct {
	inv        *inventory.Inventory
	exec       FleetExecutor
	renderer   *render.Renderer
	retrievers *backup.Table
	conns      *Connections
	paths      Paths
	out        io.Writer
	store      *Store
	metrics    *telemetry.Collector
}

// Step is one stage bound to its task.
type Step struct {
	Stage api.Stage
	Task  Task
}

func New(inv *inventory.Inventory, deps Deps) *Orchestrator {
	if deps.Executor == nil {
		deps.Executor = NewParallelExecutor(0)
	}
	if deps.Registry == nil {
		deps.Registry = driver.DefaultRegistry()
	}
	if deps.Retrievers == nil {
		deps.Retrievers = backup.DefaultTable()
	}
	if deps.Paths == (Paths{}) {
		deps.Paths = DefaultPaths()
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.GetGlobal()
	}
	return &Orchestrator{
		inv:        inv,
		exec:       deps.Executor,
		renderer:   render.New(deps.Paths.Templates),
		retrievers: deps.Retrievers,
		conns:      NewConnections(deps.Registry, deps.Connect),
		paths:      deps.Paths,
		out:        deps.Out,
		store:      deps.Store,
		metrics:    deps.Telemetry,
	}
}

// Inventory returns the hosts this orchestrator works on.
func (o *Orchestrator) Inventory() *inventory.Inventory { return o.inv }

func (o *Orchestrator) RenderStep() Step {
	return Step{Stage: api.StageRender, Task: Task{Name: string(api.StageRender), Fn: o.renderTask}}
}

// WriteStep writes rendered configs, or backups when backup is set.
func (o *Orchestrator) WriteStep(backup bool) Step {
	stage := api.StageWritePrimary
	if backup {
		stage = api.StageWriteBackup
	}
	return Step{Stage: stage, Task: Task{Name: string(stage), Fn: o.writeTask(backup)}}
}

func (o *Orchestrator) BackupStep() Step {
	return Step{Stage: api.StageBackup, Task: Task{Name: string(api.StageBackup), Fn: o.backupTask}}
}

// DeployStep is the dry-run stage when opts.DryRun is set and the commit stage otherwise.
func (o *Orchestrator) DeployStep(opts DeployOptions) Step {
	stage := api.StageDeployCommit
	if opts.DryRun {
		stage = api.StageDeployDryRun
	}
	return Step{Stage: stage, Task: Task{Name: string(stage), Fn: o.deployTask(opts)}}
}

// Pipeline is the full six-stage sequence. Both deploys push the rendered config;
// only the dry run writes its diff.
func (o *Orchestrator) Pipeline() []Step {
	return []Step{
		o.RenderStep(),
		o.WriteStep(false),
		o.BackupStep(),
		o.WriteStep(true),
		o.DeployStep(DeployOptions{DryRun: true, Diff: true}),
		o.DeployStep(DeployOptions{}),
	}
}

// Run executes the full pipeline.
func (o *Orchestrator) Run(ctx context.Context) error {
	return o.Execute(ctx, "run", o.Pipeline()...)
}

// Execute runs steps in order and stops at the first stage with a failed host,
// returning a *StageError. Later stages never start after a failure. Device
// sessions opened along the way are closed before returning.
func (o *Orchestrator) Execute(ctx context.Context, command string, steps ...Step) error {
	runID := o.beginRun(ctx, command)
	defer func() {
		if err := o.conns.CloseAll(); err != nil {
			log.Warn().Err(err).Msg("close device sessions")
		}
	}()

	var last AggregatedResult
	for _, s := range steps {
		log.Info().Str("stage", string(s.Stage)).Int("hosts", o.inv.Len()).Msg("stage started")
		timer := o.metrics.NewTimerScope(telemetry.MetricStageDuration, map[string]string{"stage": string(s.Stage)})
		res := o.exec.RunOnAll(ctx, o.inv, s.Task)
		took := timer.End()

		failed := len(res.FailedHosts())
		o.metrics.RecordStage(string(s.Stage), len(res.Results), failed, res.Changed())
		o.recordStage(ctx, runID, s.Stage, res)

		if failed > 0 {
			PrintResult(o.out, res)
			fmt.Fprintln(o.out, "Exiting script before we break anything else!")
			o.finishRun(ctx, command, runID, api.RunAborted, s.Stage)
			return &StageError{Stage: s.Stage, Result: res}
		}
		fmt.Fprintf(o.out, "Task %s completed successfully!\n", res.Name)
		log.Info().Str("stage", string(s.Stage)).Dur("took", took).Int("changed", res.Changed()).Msg("stage completed")
		last = res
	}
	if len(steps) > 0 {
		PrintResult(o.out, last)
	}
	o.finishRun(ctx, command, runID, api.RunDone, "")
	return nil
}

func (o *Orchestrator) beginRun(ctx context.Context, command string) int64 {
	if o.store == nil {
		return 0
	}
	id, err := o.store.BeginRun(ctx, command, o.inv.Len())
	if err != nil {
		log.Warn().Err(err).Msg("record run start")
	}
	return id
}

func (o *Orchestrator) recordStage(ctx context.Context, runID int64, stage api.Stage, res AggregatedResult) {
	if o.store == nil || runID == 0 {
		return
	}
	if err := o.store.RecordStage(ctx, runID, stage, res); err != nil {
		log.Warn().Err(err).Str("stage", string(stage)).Msg("record stage results")
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, command string, runID int64, state api.RunState, failed api.Stage) {
	o.metrics.RecordRun(command, string(state))
	if o.store == nil || runID == 0 {
		return
	}
	if err := o.store.FinishRun(ctx, runID, state, failed); err != nil {
		log.Warn().Err(err).Msg("record run finish")
	}
}
