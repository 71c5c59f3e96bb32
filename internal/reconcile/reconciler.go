// -----------------------------------------------------------------------
// Status Reconciler - merges ephemeral job state with the persisted
// completion snapshot into one displayed status
// -----------------------------------------------------------------------

package reconcile

import (
	"github.com/ternarybob/backlot/internal/models"
)

// ShowStatus computes the displayed status of every pipeline step for
// one show. The persisted snapshot always wins for completion: it is
// what keeps the view correct after a restart wipes the ephemeral
// registry, and it overrides stale failed/processing records left over
// from earlier attempts. Ephemeral state is consulted only for what
// persistence cannot yet know.
func ShowStatus(snapshot *models.ShowSnapshot, records map[models.TaskKey]*models.GenerationJob) models.ShowStatus {
	status := models.ShowStatus{
		ShowID: snapshot.ShowID,
		Title:  snapshot.Title,
		Steps:  make([]models.StepStatus, 0, len(models.PipelineSteps)),
	}

	for _, step := range models.PipelineSteps {
		if step.FanOut {
			status.Steps = append(status.Steps, fanOutStep(step, snapshot, records))
		} else {
			status.Steps = append(status.Steps, singletonStep(step, snapshot, records))
		}
	}

	return status
}

// singletonStep reconciles a per-show step.
func singletonStep(step models.PipelineStepDefinition, snapshot *models.ShowSnapshot, records map[models.TaskKey]*models.GenerationJob) models.StepStatus {
	result := models.StepStatus{
		StepID: step.ID,
		Kind:   step.Kind,
		Order:  step.Order,
		FanOut: false,
	}

	// Persisted truth first.
	if snapshot.Completed(step.Kind, "") {
		result.Status = models.StatusSucceeded
		return result
	}

	record := records[models.TaskKey{ShowID: snapshot.ShowID, Kind: step.Kind}]
	if record == nil {
		result.Status = models.StatusPending
		return result
	}

	result.Status = record.Status
	result.Attempts = record.Attempts
	if record.Status == models.StatusFailed {
		result.Error = record.Error
	}
	return result
}

// fanOutStep reconciles a per-character step. Counts come from the
// snapshot for completion and from ephemeral records only among
// characters the snapshot has not already marked complete.
func fanOutStep(step models.PipelineStepDefinition, snapshot *models.ShowSnapshot, records map[models.TaskKey]*models.GenerationJob) models.StepStatus {
	counts := models.FanOutCounts{Total: snapshot.SeedCount()}
	characters := make(map[string]models.JobStatus, counts.Total)
	attempts := 0
	firstError := ""

	for _, seed := range snapshot.Characters {
		charID := seed.CharacterID

		// The snapshot always wins per character.
		if snapshot.Completed(step.Kind, charID) {
			counts.Completed++
			characters[charID] = models.StatusSucceeded
			continue
		}

		record := records[models.TaskKey{ShowID: snapshot.ShowID, Kind: step.Kind, CharacterID: charID}]
		if record == nil {
			counts.Pending++
			characters[charID] = models.StatusPending
			continue
		}

		if record.Attempts > attempts {
			attempts = record.Attempts
		}

		switch {
		case record.Status.IsActive():
			counts.Active++
			characters[charID] = record.Status
		case record.Status == models.StatusFailed:
			counts.Failed++
			characters[charID] = models.StatusFailed
			if firstError == "" {
				firstError = record.Error
			}
		case record.Status == models.StatusSucceeded:
			// Snapshot not yet caught up; trust the terminal record.
			counts.Completed++
			characters[charID] = models.StatusSucceeded
		default:
			counts.Pending++
			characters[charID] = models.StatusPending
		}
	}

	result := models.StepStatus{
		StepID:     step.ID,
		Kind:       step.Kind,
		Order:      step.Order,
		FanOut:     true,
		Counts:     &counts,
		Characters: characters,
		Attempts:   attempts,
	}

	switch {
	case counts.Total > 0 && counts.Completed == counts.Total:
		result.Status = models.StatusSucceeded
	case counts.Active > 0:
		result.Status = models.StatusProcessing
	case counts.Failed > 0:
		result.Status = models.StatusFailed
		result.Error = firstError
	default:
		result.Status = models.StatusPending
	}

	return result
}
