package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "kiln.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write kiln.toml: %v", err)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[target]
arch = "x86_64"

[compile]
workers = 4
debug-info = true

[output]
object = "build/demo.o"
artifact = "build/demo.kiln"
`)
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Target.Arch != "x86_64" || c.Compile.Workers != 4 || !c.Compile.DebugInfo {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.ObjectPath() != filepath.Join(dir, "build/demo.o") {
		t.Fatalf("ObjectPath = %q", c.ObjectPath())
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Target.Arch != "x86_64" || c.Output.Object != "out.o" || c.Output.Artifact != "out.kiln" {
		t.Fatalf("defaults not applied: %+v", c)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for missing kiln.toml")
	}
}

func TestLoad_ParseError(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[target\narch=")
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected parse error")
	}
}
