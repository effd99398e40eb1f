package telemetry

import "time"

// Metric names emitted for a configuration run.
const (
	MetricStageDuration = "netcfg_stage_duration"
	MetricStageHosts    = "netcfg_stage_hosts"
	MetricStageFailed   = "netcfg_stage_failed_hosts"
	MetricStageChanged  = "netcfg_stage_changed_hosts"
	MetricRuns          = "netcfg_runs_total"
)

// RecordStage records the host counts of one pipeline stage. Its duration is
// reported separately through a TimerScope on MetricStageDuration.
func (c *Collector) RecordStage(stage string, hosts, failed, changed int) {
	if !c.Enabled() {
		return
	}
	labels := map[string]string{"stage": stage}
	c.Gauge(MetricStageHosts, float64(hosts), labels)
	c.Counter(MetricStageFailed, float64(failed), labels)
	c.Counter(MetricStageChanged, float64(changed), labels)
}

// RecordRun counts a finished run by command and final state.
func (c *Collector) RecordRun(command, state string) {
	c.Counter(MetricRuns, 1, map[string]string{"command": command, "state": state})
}

// TimerScope measures the time between its creation and End.
type TimerScope struct {
	start     time.Time
	name      string
	labels    map[string]string
	collector *Collector
}

// NewTimerScope starts a timer that reports to c.
func (c *Collector) NewTimerScope(name string, labels map[string]string) *TimerScope {
	return &TimerScope{start: time.Now(), name: name, labels: labels, collector: c}
}

// End records the elapsed time and returns it.
func (ts *TimerScope) End() time.Duration {
	d := time.Since(ts.start)
	ts.collector.Timer(ts.name, d, ts.labels)
	return d
}
