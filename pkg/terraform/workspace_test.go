package terraform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewWorkspace_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "ws")

	ws, err := NewWorkspace(dir)
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}

	info, err := os.Stat(ws.Dir())
	if err != nil || !info.IsDir() {
		t.Errorf("expected workspace directory to exist: %v", err)
	}
}

func TestNewWorkspace_EmptyDir(t *testing.T) {
	if _, err := NewWorkspace(""); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestWorkspace_WriteReadArtifact(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}

	content, err := ws.ReadArtifact()
	if err != nil {
		t.Fatalf("ReadArtifact failed: %v", err)
	}
	if content != "" {
		t.Errorf("expected empty artifact before first write, got %q", content)
	}

	want := "provider \"aws\" {}\n"
	if err := ws.WriteArtifact(want); err != nil {
		t.Fatalf("WriteArtifact failed: %v", err)
	}

	got, err := ws.ReadArtifact()
	if err != nil {
		t.Fatalf("ReadArtifact failed: %v", err)
	}
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if filepath.Base(ws.ArtifactPath()) != ArtifactFileName {
		t.Errorf("unexpected artifact path: %s", ws.ArtifactPath())
	}
}

func TestWorkspace_Reset_PreservesArtifact(t *testing.T) {
	dir := t.TempDir()
	ws, err := NewWorkspace(dir)
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}

	if err := ws.WriteArtifact("resource \"aws_vpc\" \"main\" {}\n"); err != nil {
		t.Fatalf("WriteArtifact failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, ".terraform", "providers"), 0o755); err != nil {
		t.Fatalf("failed to create init cache: %v", err)
	}
	for _, name := range []string{".terraform.lock.hcl", "terraform.tfstate"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	if err := ws.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	for _, name := range []string{".terraform", ".terraform.lock.hcl", "terraform.tfstate"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed", name)
		}
	}

	content, err := ws.ReadArtifact()
	if err != nil || content == "" {
		t.Errorf("expected artifact to survive reset, got %q (%v)", content, err)
	}
}

func TestWorkspace_ID_Stable(t *testing.T) {
	dir := t.TempDir()

	a, err := NewWorkspace(dir)
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}
	b, err := NewWorkspace(dir + string(filepath.Separator))
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}

	if a.ID() != b.ID() {
		t.Errorf("expected same ID for same directory, got %q and %q", a.ID(), b.ID())
	}
}
