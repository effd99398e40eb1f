package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemplate(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
}

func TestRenderBareAndDottedNames(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "base.j2", "hostname {{dev_hostname}}")
	writeTemplate(t, dir, "dotted.j2", "hostname {{ .dev_hostname }}\nntp server {{ .ntp }}")

	r := New(dir)
	vars := map[string]interface{}{"dev_hostname": "hostA", "ntp": "192.0.2.1"}

	out, err := r.Render("base.j2", vars)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "hostname hostA" {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = r.Render("dotted.j2", vars)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "hostname hostA\nntp server 192.0.2.1" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRenderSprigHelpers(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "vlans.j2", "{{- range .vlans }}\nvlan {{ . }}\n{{- end }}\nsnmp-server location {{ upper .site }}")

	out, err := New(dir).Render("vlans.j2", map[string]interface{}{
		"vlans": []int{10, 20},
		"site":  "lab",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "\nvlan 10\nvlan 20\nsnmp-server location LAB" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRenderMissingTemplate(t *testing.T) {
	_, err := New(t.TempDir()).Render("missing.j2", map[string]interface{}{})
	if err == nil || !strings.Contains(err.Error(), "load template") {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestRenderNoTemplateSelected(t *testing.T) {
	if _, err := New(t.TempDir()).Render("", nil); err == nil {
		t.Fatalf("expected error for empty template name")
	}
}

func TestRenderUndefinedVariable(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "bare.j2", "hostname {{ missing_var }}")
	writeTemplate(t, dir, "dotted.j2", "hostname {{ .missing_var }}")

	r := New(dir)
	if _, err := r.Render("bare.j2", map[string]interface{}{}); err == nil {
		t.Fatalf("expected parse error for undefined bare name")
	}
	if _, err := r.Render("dotted.j2", map[string]interface{}{}); err == nil {
		t.Fatalf("expected execution error for undefined key")
	}
}

func TestRenderKeepsTemplateBuiltins(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "vlan.j2", "vlan {{ index .vlans 0 }} count {{ len .vlans }} idx {{ .index }}{{ if and .len (eq .print \"x\") }} ok{{ end }}")

	vars := map[string]interface{}{
		"vlans": []interface{}{10, 20},
		"index": "i1",
		"len":   true,
		"print": "x",
	}
	out, err := New(dir).Render("vlan.j2", vars)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "vlan 10 count 2 idx i1 ok" {
		t.Fatalf("unexpected output %q", out)
	}
}
