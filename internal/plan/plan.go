// Package plan compares artifact directories offline, without touching devices.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pmezard/go-difflib/difflib"
)

// HostDiff is the unified diff between a host's backup and its rendered config.
type HostDiff struct {
	Host    string
	Diff    string
	Missing string // set when one side has no file
}

// Changed reports whether the two sides differ.
func (d HostDiff) Changed() bool { return d.Diff != "" || d.Missing != "" }

// Unified returns a unified diff of before and after with three lines of context.
func Unified(fromName, toName, before, after string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	})
}

// Compare diffs backupDir/<name> against configDir/<name> for each name.
// With no names, every file found in either directory is compared.
func Compare(backupDir, configDir string, names ...string) ([]HostDiff, error) {
	if len(names) == 0 {
		var err error
		if names, err = listFiles(backupDir, configDir); err != nil {
			return nil, err
		}
	}
	out := make([]HostDiff, 0, len(names))
	for _, name := range names {
		from, to := filepath.Join(backupDir, name), filepath.Join(configDir, name)
		before, errB := readOptional(from)
		after, errA := readOptional(to)
		if err := errors.Join(errB, errA); err != nil {
			return nil, err
		}
		d := HostDiff{Host: name}
		switch {
		case before == nil && after == nil:
			d.Missing = "no backup or config"
		case before == nil:
			d.Missing = "no backup"
		case after == nil:
			d.Missing = "no rendered config"
		default:
			text, err := Unified(from, to, string(before), string(after))
			if err != nil {
				return nil, fmt.Errorf("diff %s: %w", name, err)
			}
			d.Diff = text
		}
		out = append(out, d)
	}
	return out, nil
}

func readOptional(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if b == nil {
		b = []byte{}
	}
	return b, nil
}

func listFiles(dirs ...string) ([]string, error) {
	seen := map[string]bool{}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				seen[e.Name()] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}
