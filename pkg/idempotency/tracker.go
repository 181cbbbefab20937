// Package idempotency decides whether workspace initialization can be
// skipped: a stage is redundant when a prior success was recorded for
// the same workspace and the artifact's content hash is unchanged.
package idempotency

import (
	"encoding/hex"
	"sync"

	"github.com/zeebo/blake3"
)

// Record is the per-workspace idempotency state. Its lifecycle is
// scoped to one workspace identity and must be reset when that
// identity changes, never silently across unrelated workspaces.
type Record struct {
	WorkspaceID      string `json:"workspace_id"`
	LastInitSuccess  bool   `json:"last_init_success"`
	LastArtifactHash string `json:"last_artifact_hash"`
}

// Hash returns the stable content hash of an artifact.
func Hash(artifact string) string {
	sum := blake3.Sum256([]byte(artifact))
	return hex.EncodeToString(sum[:])
}

// Tracker answers skip decisions and records stage outcomes.
type Tracker interface {
	// ShouldSkip reports whether init work for this workspace and
	// artifact is redundant.
	ShouldSkip(workspaceID, artifact string) bool

	// Record stores the outcome of an init for the workspace.
	Record(workspaceID, artifact string, success bool)

	// Reset clears state for one workspace identity.
	Reset(workspaceID string)
}

// MemoryTracker is an in-process Tracker. It is safe for concurrent
// use, though the engine touches it from a single run at a time.
type MemoryTracker struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryTracker creates an empty in-memory tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{records: make(map[string]Record)}
}

// ShouldSkip implements Tracker. Skip only when a prior success exists
// for this exact workspace and the content hash matches.
func (t *MemoryTracker) ShouldSkip(workspaceID, artifact string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[workspaceID]
	if !ok {
		return false
	}
	return rec.LastInitSuccess && rec.LastArtifactHash == Hash(artifact)
}

// Record implements Tracker.
func (t *MemoryTracker) Record(workspaceID, artifact string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[workspaceID] = Record{
		WorkspaceID:      workspaceID,
		LastInitSuccess:  success,
		LastArtifactHash: Hash(artifact),
	}
}

// Reset implements Tracker.
func (t *MemoryTracker) Reset(workspaceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, workspaceID)
}

// Get returns the current record for a workspace, if any.
func (t *MemoryTracker) Get(workspaceID string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[workspaceID]
	return rec, ok
}
