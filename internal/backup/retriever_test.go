package backup

import (
	"context"
	"errors"
	"testing"

	"github.com/3cpo-dev/netcfg/internal/driver"
)

type recordingDriver struct {
	driver.Driver
	getConfigCalls  int
	checkpointCalls int
}

func (d *recordingDriver) GetConfig(_ context.Context, retrieve string) (driver.Config, error) {
	d.getConfigCalls++
	return driver.Config{Running: "hostname r1\n"}, nil
}

type checkpointDriver struct {
	recordingDriver
}

func (d *checkpointDriver) GetCheckpointFile(context.Context) (string, error) {
	d.checkpointCalls++
	return "!Command: Checkpoint cmd vdc 1\nhostname s1\n", nil
}

func TestDefaultTableSelection(t *testing.T) {
	table := DefaultTable()
	if _, ok := table.For("nxos").(CheckpointFileGetter); !ok {
		t.Fatalf("nxos should use the checkpoint file getter")
	}
	for _, p := range []string{"ios", "eos", ""} {
		if _, ok := table.For(p).(StandardGetter); !ok {
			t.Fatalf("%q should use the standard getter", p)
		}
	}
}

func TestStandardGetterUsesRunningConfig(t *testing.T) {
	d := &checkpointDriver{}
	out, err := StandardGetter{}.Retrieve(context.Background(), d)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if out != "hostname r1\n" {
		t.Fatalf("unexpected backup %q", out)
	}
	if d.checkpointCalls != 0 || d.getConfigCalls != 1 {
		t.Fatalf("unexpected calls: getConfig=%d checkpoint=%d", d.getConfigCalls, d.checkpointCalls)
	}
}

func TestCheckpointGetterNeverCallsGetConfig(t *testing.T) {
	d := &checkpointDriver{}
	out, err := CheckpointFileGetter{}.Retrieve(context.Background(), d)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if out == "" {
		t.Fatalf("expected checkpoint content")
	}
	if d.getConfigCalls != 0 || d.checkpointCalls != 1 {
		t.Fatalf("unexpected calls: getConfig=%d checkpoint=%d", d.getConfigCalls, d.checkpointCalls)
	}
}

func TestCheckpointGetterUnsupported(t *testing.T) {
	_, err := CheckpointFileGetter{}.Retrieve(context.Background(), &recordingDriver{})
	if !errors.Is(err, ErrCheckpointUnsupported) {
		t.Fatalf("expected ErrCheckpointUnsupported, got %v", err)
	}
}

func TestTableOverride(t *testing.T) {
	table := DefaultTable()
	table.Set("iosxr", CheckpointFileGetter{})
	if table.For("iosxr").Name() != "checkpoint-file" {
		t.Fatalf("override not applied")
	}
}
