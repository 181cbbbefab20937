package stores

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tfmend/tfmend/pkg/idempotency"
)

// PersistentTracker is an idempotency.Tracker backed by the workspaces
// table, so init skips survive process restarts. Store errors degrade
// to "do the work": a failed read never skips, a failed write only
// costs a redundant init next run.
type PersistentTracker struct {
	store  *SQLiteStore
	logger zerolog.Logger
}

// NewPersistentTracker wraps a store as an idempotency tracker.
func NewPersistentTracker(store *SQLiteStore, logger zerolog.Logger) *PersistentTracker {
	return &PersistentTracker{store: store, logger: logger}
}

// ShouldSkip implements idempotency.Tracker.
func (t *PersistentTracker) ShouldSkip(workspaceID, artifact string) bool {
	rec, err := t.store.GetWorkspace(context.Background(), workspaceID)
	if err != nil {
		return false
	}
	return rec.LastInitSuccess && rec.LastArtifactHash == idempotency.Hash(artifact)
}

// Record implements idempotency.Tracker.
func (t *PersistentTracker) Record(workspaceID, artifact string, success bool) {
	err := t.store.UpsertWorkspace(context.Background(), &WorkspaceRecord{
		ID:               workspaceID,
		LastInitSuccess:  success,
		LastArtifactHash: idempotency.Hash(artifact),
		UpdatedAt:        time.Now(),
	})
	if err != nil {
		t.logger.Warn().Err(err).Str("workspace", workspaceID).Msg("failed to persist idempotency state")
	}
}

// Reset implements idempotency.Tracker.
func (t *PersistentTracker) Reset(workspaceID string) {
	if err := t.store.DeleteWorkspace(context.Background(), workspaceID); err != nil {
		t.logger.Warn().Err(err).Str("workspace", workspaceID).Msg("failed to reset idempotency state")
	}
}
