package api

// v0 contains public types shared by the orchestrator, the store and the CLI.

// Stage names one fleet-wide step of a configuration run.
type Stage string

const (
	StageRender       Stage = "render_configs"
	StageWritePrimary Stage = "write_configs"
	StageBackup       Stage = "backup_configs"
	StageWriteBackup  Stage = "write_backup_configs"
	StageDeployDryRun Stage = "deploy_configs_dry_run"
	StageDeployCommit Stage = "deploy_configs"
)

// Pipeline is the fixed order a full run executes in.
var Pipeline = []Stage{
	StageRender,
	StageWritePrimary,
	StageBackup,
	StageWriteBackup,
	StageDeployDryRun,
	StageDeployCommit,
}

type RunState string

const (
	RunPending RunState = "pending"
	RunRunning RunState = "running"
	RunDone    RunState = "done"
	RunAborted RunState = "aborted"
)

// RunSummary is a persisted view of a finished or aborted run.
type RunSummary struct {
	ID          int64    `json:"id" yaml:"id"`
	Command     string   `json:"command" yaml:"command"`
	State       RunState `json:"state" yaml:"state"`
	FailedStage Stage    `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`
	StartedAt   string   `json:"started_at" yaml:"started_at"`
	FinishedAt  string   `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Hosts       int      `json:"hosts" yaml:"hosts"`
}
