// -----------------------------------------------------------------------
// Generation Job - one provider-side unit of work
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// JobKind identifies the artifact a generation job produces.
type JobKind string

const (
	KindShowBlueprint    JobKind = "show_blueprint"
	KindCharacterSeedSet JobKind = "character_seed_set"
	KindCharacterDossier JobKind = "character_dossier"
	KindPortrait         JobKind = "portrait"
	KindVideo            JobKind = "video"
	KindPoster           JobKind = "poster"
	KindLibraryPoster    JobKind = "library_poster"
	KindPortraitGrid     JobKind = "portrait_grid"
	KindTrailer          JobKind = "trailer"
)

// AllKinds lists every job kind in pipeline order.
var AllKinds = []JobKind{
	KindShowBlueprint,
	KindCharacterSeedSet,
	KindCharacterDossier,
	KindPortrait,
	KindVideo,
	KindPoster,
	KindLibraryPoster,
	KindPortraitGrid,
	KindTrailer,
}

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// JobStatus is the lifecycle state of a generation job.
// Terminal states are final; no transition leaves them.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusStarting   JobStatus = "starting"
	StatusProcessing JobStatus = "processing"
	StatusSucceeded  JobStatus = "succeeded"
	StatusFailed     JobStatus = "failed"

	// StatusPending is a derived display status for steps with no
	// persisted artifact and no ephemeral record. Jobs themselves are
	// never stored in this state.
	StatusPending JobStatus = "pending"
)

// IsTerminal reports whether the status is final.
func (s JobStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// IsActive reports whether the status represents in-flight work.
func (s JobStatus) IsActive() bool {
	return s == StatusQueued || s == StatusStarting || s == StatusProcessing
}

// TargetEntity identifies what a job produces an artifact for.
// CharacterID and SectionLabel are set only for fanned-out kinds.
type TargetEntity struct {
	ShowID       string `json:"show_id"`
	CharacterID  string `json:"character_id,omitempty"`
	SectionLabel string `json:"section_label,omitempty"`
}

// TaskKey is the composite identity of a job in the ephemeral registry.
// A new submission with the same key replaces the prior record.
type TaskKey struct {
	ShowID       string  `json:"show_id"`
	Kind         JobKind `json:"kind"`
	CharacterID  string  `json:"character_id,omitempty"`
	SectionLabel string  `json:"section_label,omitempty"`
}

// Key builds the registry key for a job targeting entity for the given kind.
func Key(kind JobKind, target TargetEntity) TaskKey {
	return TaskKey{
		ShowID:       target.ShowID,
		Kind:         kind,
		CharacterID:  target.CharacterID,
		SectionLabel: target.SectionLabel,
	}
}

// String renders the key in a log-friendly form.
func (k TaskKey) String() string {
	s := fmt.Sprintf("%s/%s", k.ShowID, k.Kind)
	if k.CharacterID != "" {
		s += "/" + k.CharacterID
	}
	if k.SectionLabel != "" {
		s += "#" + k.SectionLabel
	}
	return s
}

// GenerationJob is one request/poll/result cycle against a generation
// provider. It is created by the submission engine, mutated only by the
// polling goroutine that owns it, and immutable once terminal.
type GenerationJob struct {
	ID            string       `json:"id"` // Provider handle or caller-assigned correlation id
	Kind          JobKind      `json:"kind"`
	Target        TargetEntity `json:"target"`
	Provider      string       `json:"provider"`
	Status        JobStatus    `json:"status"`
	Attempts      int          `json:"attempts"` // Provider invocations actually made (>=1 once submitted)
	Error         string       `json:"error,omitempty"`
	ErrorKind     ErrorKind    `json:"error_kind,omitempty"`
	ResultLocator string       `json:"result_locator,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	LastUpdatedAt time.Time    `json:"last_updated_at"`
}

// Key returns the job's composite registry key.
func (j *GenerationJob) Key() TaskKey {
	return Key(j.Kind, j.Target)
}

// Touch updates the last-updated timestamp.
func (j *GenerationJob) Touch() {
	j.LastUpdatedAt = time.Now()
}
