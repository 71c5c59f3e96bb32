package interfaces

import (
	"github.com/ternarybob/backlot/internal/models"
)

// TaskRegistry is the session-scoped, in-memory record of every job
// submitted. It is volatile: lost on process restart, with the persisted
// snapshot serving as the recovery mechanism for outcomes.
//
// Implementations must support concurrent upsert-by-key from multiple
// in-flight pollers without lost updates; each poller owns and mutates
// only its own key.
type TaskRegistry interface {
	// Upsert stores the record under its composite key, replacing any
	// prior record for that key.
	Upsert(record *models.GenerationJob)

	// Sync writes a transition for an existing job, but only while it is
	// still the current holder of its key. Returns false when the job
	// was superseded by a newer submission.
	Sync(record *models.GenerationJob) bool

	// Get returns the record for a key, or nil when absent.
	Get(key models.TaskKey) *models.GenerationJob

	// GetByJobID returns the record carrying the given job id, or nil.
	GetByJobID(jobID string) *models.GenerationJob

	// Remove deletes the record for a key if it is terminal. Returns
	// false when the record is absent or still active.
	Remove(key models.TaskKey) bool

	// ForShow returns all records belonging to a show, keyed by TaskKey.
	ForShow(showID string) map[models.TaskKey]*models.GenerationJob

	// All returns every record in the registry.
	All() []*models.GenerationJob
}
