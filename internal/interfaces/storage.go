package interfaces

import (
	"context"

	"github.com/ternarybob/backlot/internal/models"
)

// SnapshotReader provides read-only access to persisted show snapshots.
// Side-effect free; safe for concurrent use.
type SnapshotReader interface {
	// GetSnapshot returns the full completion snapshot for a show.
	// Returns models.ErrNotFound when the show does not exist.
	GetSnapshot(ctx context.Context, showID string) (*models.ShowSnapshot, error)

	// ListSnapshots returns all show snapshots, newest first.
	ListSnapshots(ctx context.Context) ([]*models.ShowSnapshot, error)
}

// SnapshotWriter performs durable read-modify-write updates on one
// show's snapshot. Updates are atomic per show: concurrent writers
// touching different characters of the same show must not clobber each
// other's map entries.
type SnapshotWriter interface {
	// CreateSnapshot stores a new, empty snapshot.
	CreateSnapshot(ctx context.Context, snapshot *models.ShowSnapshot) error

	// UpdateSnapshot loads the show's snapshot, applies mutate, and
	// writes the result back under a per-show lock.
	UpdateSnapshot(ctx context.Context, showID string, mutate func(*models.ShowSnapshot) error) error
}

// SnapshotStorage combines reading and writing of show snapshots.
type SnapshotStorage interface {
	SnapshotReader
	SnapshotWriter
}
