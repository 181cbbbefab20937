package terraform

import (
	"fmt"
	"os"
	"path/filepath"
)

// ArtifactFileName is the canonical artifact file within a workspace.
const ArtifactFileName = "main.tf"

// Workspace is the directory the external tool operates on. One
// workspace holds exactly one canonical artifact file plus terraform's
// companion lock and state files, which are preserved across runs
// unless explicitly reset.
type Workspace struct {
	dir string
}

// NewWorkspace opens (creating if needed) a workspace directory.
func NewWorkspace(dir string) (*Workspace, error) {
	if dir == "" {
		return nil, fmt.Errorf("workspace directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// ID returns the workspace identity used to scope idempotency state.
// Two paths naming the same directory yield the same ID.
func (w *Workspace) ID() string {
	abs, err := filepath.Abs(w.dir)
	if err != nil {
		return w.dir
	}
	return abs
}

// ArtifactPath returns the path of the canonical artifact file.
func (w *Workspace) ArtifactPath() string {
	return filepath.Join(w.dir, ArtifactFileName)
}

// WriteArtifact overwrites the canonical artifact file in place.
func (w *Workspace) WriteArtifact(content string) error {
	if err := os.WriteFile(w.ArtifactPath(), []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// ReadArtifact returns the current artifact content, or "" when the
// file does not exist yet.
func (w *Workspace) ReadArtifact() (string, error) {
	data, err := os.ReadFile(w.ArtifactPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read artifact: %w", err)
	}
	return string(data), nil
}

// companionEntries are terraform's own files, removed only on Reset.
var companionEntries = []string{
	".terraform",
	".terraform.lock.hcl",
	"terraform.tfstate",
	"terraform.tfstate.backup",
}

// Reset removes terraform's companion lock and state files, forcing
// the next init to start from scratch. The artifact file is left
// alone.
func (w *Workspace) Reset() error {
	for _, entry := range companionEntries {
		path := filepath.Join(w.dir, entry)
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entry, err)
		}
	}
	return nil
}
