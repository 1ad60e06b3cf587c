package config

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(filename, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return filename
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.ServerPath != "" {
		t.Errorf("default ServerPath is %q; expected empty (auto-resolve)", cfg.ServerPath)
	}
	if !cfg.ReferenceCounts {
		t.Errorf("reference-count annotations are disabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	filename := writeConfig(t, `
ServerPath = "/opt/elm-analyzer"
WorkspaceDirectories = ["/proj", "/other"]
`)
	cfg, err := LoadFile(filename)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.ServerPath != "/opt/elm-analyzer" {
		t.Errorf("ServerPath is %q", cfg.ServerPath)
	}
	if diff := cmp.Diff([]string{"/proj", "/other"}, cfg.WorkspaceDirectories); diff != "" {
		t.Errorf("WorkspaceDirectories mismatch (-want +got):\n%s", diff)
	}
	// keys absent from the file keep their defaults
	if !cfg.ReferenceCounts {
		t.Errorf("absent ReferenceCounts key did not keep its default")
	}
	if cfg.RootDirectory == "" {
		t.Errorf("absent RootDirectory key did not keep its default")
	}
}

func TestLoadFileDisablesAnnotations(t *testing.T) {
	filename := writeConfig(t, `ReferenceCounts = false`)
	cfg, err := LoadFile(filename)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.ReferenceCounts {
		t.Errorf("ReferenceCounts = false in the file was not honored")
	}
}

func TestParseFlags(t *testing.T) {
	cfg := Default()
	f := flag.NewFlagSet("test", flag.ContinueOnError)
	err := cfg.ParseFlags(f, []string{
		"-server.path", "/opt/elm-analyzer",
		"-annotations=false",
		"-workspaces", "/proj:/other",
	})
	if err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if cfg.ServerPath != "/opt/elm-analyzer" {
		t.Errorf("ServerPath is %q", cfg.ServerPath)
	}
	if cfg.ReferenceCounts {
		t.Errorf("-annotations=false was not honored")
	}
	if diff := cmp.Diff([]string{"/proj", "/other"}, cfg.WorkspaceDirectories); diff != "" {
		t.Errorf("WorkspaceDirectories mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite(t *testing.T) {
	var b bytes.Buffer
	if err := Write(&b, Default()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out := b.String()
	for _, want := range []string{"ServerPath", "ReferenceCounts", "RootDirectory"} {
		if !bytes.Contains(b.Bytes(), []byte(want)) {
			t.Errorf("written config %q does not mention %v", out, want)
		}
	}
}
