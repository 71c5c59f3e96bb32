// -----------------------------------------------------------------------
// Ephemeral Task Registry - volatile, session-scoped job records
// -----------------------------------------------------------------------

package registry

import (
	"sync"

	"github.com/ternarybob/backlot/internal/interfaces"
	"github.com/ternarybob/backlot/internal/models"
)

// TaskRegistry holds one record per composite key. It is intentionally
// not persisted: outcomes are durable in the show snapshot, and in-flight
// bookkeeping is rebuilt by new submissions after a restart.
//
// Records are stored and returned by value so pollers can mutate their
// own job structs without racing readers.
type TaskRegistry struct {
	mu      sync.RWMutex
	records map[models.TaskKey]models.GenerationJob
}

// New creates an empty task registry.
func New() *TaskRegistry {
	return &TaskRegistry{
		records: make(map[models.TaskKey]models.GenerationJob),
	}
}

var _ interfaces.TaskRegistry = (*TaskRegistry)(nil)

// Upsert stores the record under its composite key. A new submission
// with the same key supersedes the prior record; duplicate keys never
// accumulate.
func (r *TaskRegistry) Upsert(record *models.GenerationJob) {
	if record == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.Key()] = *record
}

// Sync writes a transition for an existing job, but only while that job
// is still the current holder of its key. A poller whose job was
// superseded by a newer submission gets false and its update is dropped,
// so stale pollers cannot clobber the replacement record.
func (r *TaskRegistry) Sync(record *models.GenerationJob) bool {
	if record == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[record.Key()]
	if !ok || current.ID != record.ID {
		return false
	}
	r.records[record.Key()] = *record
	return true
}

// Get returns a copy of the record for a key, or nil when absent.
func (r *TaskRegistry) Get(key models.TaskKey) *models.GenerationJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[key]
	if !ok {
		return nil
	}
	return &record
}

// GetByJobID returns the record carrying the given job id, or nil.
func (r *TaskRegistry) GetByJobID(jobID string) *models.GenerationJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if record.ID == jobID {
			copy := record
			return &copy
		}
	}
	return nil
}

// Remove deletes a terminal record. Active records cannot be dismissed:
// there is no mid-flight cancellation, only superseding resubmission.
func (r *TaskRegistry) Remove(key models.TaskKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok || !record.Status.IsTerminal() {
		return false
	}
	delete(r.records, key)
	return true
}

// ForShow returns all records belonging to a show, keyed by TaskKey.
func (r *TaskRegistry) ForShow(showID string) map[models.TaskKey]*models.GenerationJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[models.TaskKey]*models.GenerationJob)
	for key, record := range r.records {
		if key.ShowID == showID {
			copy := record
			result[key] = &copy
		}
	}
	return result
}

// All returns every record in the registry.
func (r *TaskRegistry) All() []*models.GenerationJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.GenerationJob, 0, len(r.records))
	for _, record := range r.records {
		copy := record
		result = append(result, &copy)
	}
	return result
}
