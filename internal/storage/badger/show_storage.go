// -----------------------------------------------------------------------
// Show Snapshot Storage - durable per-show completion records
// -----------------------------------------------------------------------

package badger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/backlot/internal/interfaces"
	"github.com/ternarybob/backlot/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ShowStorage implements the SnapshotStorage interface on Badger.
//
// Updates are read-modify-write under a per-show mutex so that
// concurrent writers touching different characters of the same show
// serialize instead of clobbering each other's map entries. Writes are
// atomic per show; the reconciler never observes a torn snapshot.
type ShowStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewShowStorage creates a new ShowStorage instance
func NewShowStorage(db *BadgerDB, logger arbor.ILogger) *ShowStorage {
	return &ShowStorage{
		db:     db,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

var _ interfaces.SnapshotStorage = (*ShowStorage)(nil)

// showLock returns the mutex guarding one show's snapshot.
func (s *ShowStorage) showLock(showID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[showID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[showID] = lock
	}
	return lock
}

// CreateSnapshot stores a new, empty snapshot.
func (s *ShowStorage) CreateSnapshot(ctx context.Context, snapshot *models.ShowSnapshot) error {
	if snapshot == nil || snapshot.ShowID == "" {
		return fmt.Errorf("show ID is required")
	}

	if err := s.db.Store().Insert(snapshot.ShowID, snapshot); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("show already exists: %s", snapshot.ShowID)
		}
		return fmt.Errorf("failed to create show snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the full completion snapshot for a show.
func (s *ShowStorage) GetSnapshot(ctx context.Context, showID string) (*models.ShowSnapshot, error) {
	var snapshot models.ShowSnapshot
	if err := s.db.Store().Get(showID, &snapshot); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: show %s", models.ErrNotFound, showID)
		}
		return nil, fmt.Errorf("failed to get show snapshot: %w", err)
	}
	snapshot.EnsureMaps()
	return &snapshot, nil
}

// ListSnapshots returns all show snapshots, newest first.
func (s *ShowStorage) ListSnapshots(ctx context.Context) ([]*models.ShowSnapshot, error) {
	var snapshots []models.ShowSnapshot
	query := badgerhold.Where("ShowID").Ne("").SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&snapshots, query); err != nil {
		return nil, fmt.Errorf("failed to list show snapshots: %w", err)
	}

	result := make([]*models.ShowSnapshot, len(snapshots))
	for i := range snapshots {
		snapshots[i].EnsureMaps()
		result[i] = &snapshots[i]
	}
	return result, nil
}

// UpdateSnapshot loads the show's snapshot, applies mutate, and writes
// the result back under the per-show lock.
func (s *ShowStorage) UpdateSnapshot(ctx context.Context, showID string, mutate func(*models.ShowSnapshot) error) error {
	lock := s.showLock(showID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := s.GetSnapshot(ctx, showID)
	if err != nil {
		return err
	}

	if err := mutate(snapshot); err != nil {
		return err
	}
	snapshot.Touch()

	if err := s.db.Store().Upsert(showID, snapshot); err != nil {
		return fmt.Errorf("%w: failed to write show snapshot: %v", models.ErrPersistence, err)
	}
	return nil
}
