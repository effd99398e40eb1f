package driver

import (
	"context"

	"github.com/pkg/errors"
)

// Result is the outcome of Configure.
type Result struct {
	Diff      string
	Changed   bool
	Committed bool
}

// Configure stages config as a full replacement and captures the device diff against
// the running configuration. The candidate is committed only when dryRun is false and
// the diff is non-empty; otherwise it is discarded.
func Configure(ctx context.Context, d Driver, config string, dryRun bool) (Result, error) {
	if err := d.LoadReplaceCandidate(ctx, config); err != nil {
		return Result{}, errors.Wrap(err, "load replace candidate")
	}
	diff, err := d.CompareConfig(ctx)
	if err != nil {
		_ = d.DiscardConfig(ctx)
		return Result{}, errors.Wrap(err, "compare config")
	}
	res := Result{Diff: diff, Changed: diff != ""}
	if !dryRun && res.Changed {
		if err := d.CommitConfig(ctx); err != nil {
			return res, errors.Wrap(err, "commit config")
		}
		res.Committed = true
		return res, nil
	}
	if err := d.DiscardConfig(ctx); err != nil {
		return res, errors.Wrap(err, "discard config")
	}
	return res, nil
}
