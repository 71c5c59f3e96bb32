package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/backlot/internal/models"
)

func snapshotWithCharacters(n int) *models.ShowSnapshot {
	s := models.NewShowSnapshot("show_a", "Test Show")
	seeds := make([]models.CharacterSeed, 0, n)
	for i := 0; i < n; i++ {
		seeds = append(seeds, models.CharacterSeed{
			CharacterID: string(rune('a' + i)),
			Name:        "Character " + string(rune('A'+i)),
		})
	}
	s.SetCharacters(seeds)
	return s
}

func record(id string, kind models.JobKind, characterID string, status models.JobStatus) *models.GenerationJob {
	return &models.GenerationJob{
		ID:       id,
		Kind:     kind,
		Target:   models.TargetEntity{ShowID: "show_a", CharacterID: characterID},
		Status:   status,
		Attempts: 1,
	}
}

func keyed(records ...*models.GenerationJob) map[models.TaskKey]*models.GenerationJob {
	m := make(map[models.TaskKey]*models.GenerationJob)
	for _, r := range records {
		m[r.Key()] = r
	}
	return m
}

func stepByID(t *testing.T, status models.ShowStatus, id string) models.StepStatus {
	t.Helper()
	for _, step := range status.Steps {
		if step.StepID == id {
			return step
		}
	}
	t.Fatalf("step %q not found", id)
	return models.StepStatus{}
}

// Persisted completion must override a stale ephemeral failure: after a
// retry succeeded and persisted, a leftover failed record from the
// first attempt cannot drag the step back to failed.
func TestPersistedCompletionOverridesStaleFailure(t *testing.T) {
	snapshot := snapshotWithCharacters(1)
	snapshot.Portraits["a"] = "https://cdn.example.com/portrait-a.png"

	records := keyed(record("job_old", models.KindPortrait, "a", models.StatusFailed))

	status := ShowStatus(snapshot, records)
	portraits := stepByID(t, status, "portraits")

	assert.Equal(t, models.StatusSucceeded, portraits.Status)
	assert.Empty(t, portraits.Error)
	require.NotNil(t, portraits.Counts)
	assert.Equal(t, 1, portraits.Counts.Completed)
	assert.Equal(t, 0, portraits.Counts.Failed)
}

// A restart wipes the registry; persisted artifacts alone must still
// report completed steps.
func TestSnapshotAloneAfterRestart(t *testing.T) {
	snapshot := snapshotWithCharacters(2)
	snapshot.HasBlueprint = true
	snapshot.BlueprintURL = "data:text/plain;base64,Zm9v"
	snapshot.Portraits["a"] = "https://cdn.example.com/a.png"

	status := ShowStatus(snapshot, nil)

	assert.Equal(t, models.StatusSucceeded, stepByID(t, status, "blueprint").Status)
	assert.Equal(t, models.StatusSucceeded, stepByID(t, status, "seeds").Status)

	portraits := stepByID(t, status, "portraits")
	assert.Equal(t, models.StatusPending, portraits.Status)
	assert.Equal(t, 1, portraits.Counts.Completed)
	assert.Equal(t, 1, portraits.Counts.Pending)
}

// Fan-out aggregation over six characters with mixed states.
func TestFanOutCounts(t *testing.T) {
	snapshot := snapshotWithCharacters(6)
	snapshot.Portraits["a"] = "u1"
	snapshot.Portraits["b"] = "u2"

	records := keyed(
		record("j1", models.KindPortrait, "c", models.StatusProcessing),
		record("j2", models.KindPortrait, "d", models.StatusStarting),
		record("j3", models.KindPortrait, "e", models.StatusFailed),
	)
	records[models.Key(models.KindPortrait, models.TargetEntity{ShowID: "show_a", CharacterID: "e"})].Error = "quota exceeded"

	status := ShowStatus(snapshot, records)
	portraits := stepByID(t, status, "portraits")

	require.NotNil(t, portraits.Counts)
	assert.Equal(t, 6, portraits.Counts.Total)
	assert.Equal(t, 2, portraits.Counts.Completed)
	assert.Equal(t, 2, portraits.Counts.Active)
	assert.Equal(t, 1, portraits.Counts.Failed)
	assert.Equal(t, 1, portraits.Counts.Pending)

	sum := portraits.Counts.Completed + portraits.Counts.Active + portraits.Counts.Failed + portraits.Counts.Pending
	assert.Equal(t, portraits.Counts.Total, sum)

	// Active work wins the step-level display over the failure.
	assert.Equal(t, models.StatusProcessing, portraits.Status)

	assert.Equal(t, models.StatusSucceeded, portraits.Characters["a"])
	assert.Equal(t, models.StatusProcessing, portraits.Characters["c"])
	assert.Equal(t, models.StatusStarting, portraits.Characters["d"])
	assert.Equal(t, models.StatusFailed, portraits.Characters["e"])
	assert.Equal(t, models.StatusPending, portraits.Characters["f"])
}

func TestFanOutAllCompleted(t *testing.T) {
	snapshot := snapshotWithCharacters(3)
	for _, seed := range snapshot.Characters {
		snapshot.Portraits[seed.CharacterID] = "u-" + seed.CharacterID
	}

	portraits := stepByID(t, ShowStatus(snapshot, nil), "portraits")
	assert.Equal(t, models.StatusSucceeded, portraits.Status)
	assert.Equal(t, 3, portraits.Counts.Completed)
}

func TestFanOutFailedWithoutActive(t *testing.T) {
	snapshot := snapshotWithCharacters(2)
	records := keyed(record("j1", models.KindPortrait, "a", models.StatusFailed))
	records[models.Key(models.KindPortrait, models.TargetEntity{ShowID: "show_a", CharacterID: "a"})].Error = "provider down"

	portraits := stepByID(t, ShowStatus(snapshot, records), "portraits")
	assert.Equal(t, models.StatusFailed, portraits.Status)
	assert.Equal(t, "provider down", portraits.Error)
}

// A terminal succeeded record whose snapshot write has not landed yet
// still counts as completed rather than regressing to pending.
func TestSucceededRecordBeforeSnapshotCatchup(t *testing.T) {
	snapshot := snapshotWithCharacters(1)
	records := keyed(record("j1", models.KindPortrait, "a", models.StatusSucceeded))

	portraits := stepByID(t, ShowStatus(snapshot, records), "portraits")
	assert.Equal(t, models.StatusSucceeded, portraits.Status)
	assert.Equal(t, 1, portraits.Counts.Completed)
}

func TestSingletonStepStates(t *testing.T) {
	snapshot := snapshotWithCharacters(1)

	// Pending with nothing anywhere.
	poster := stepByID(t, ShowStatus(snapshot, nil), "poster")
	assert.Equal(t, models.StatusPending, poster.Status)

	// Ephemeral processing shows through.
	records := keyed(record("j1", models.KindPoster, "", models.StatusProcessing))
	poster = stepByID(t, ShowStatus(snapshot, records), "poster")
	assert.Equal(t, models.StatusProcessing, poster.Status)

	// Persisted artifact wins over a failed leftover.
	snapshot.PosterURL = "https://cdn.example.com/poster.png"
	records = keyed(record("j1", models.KindPoster, "", models.StatusFailed))
	poster = stepByID(t, ShowStatus(snapshot, records), "poster")
	assert.Equal(t, models.StatusSucceeded, poster.Status)
}

func TestStepsInPipelineOrder(t *testing.T) {
	status := ShowStatus(snapshotWithCharacters(1), nil)
	require.Len(t, status.Steps, len(models.PipelineSteps))
	for i, step := range status.Steps {
		assert.Equal(t, models.PipelineSteps[i].ID, step.StepID)
		assert.Equal(t, i+1, step.Order)
	}
}
