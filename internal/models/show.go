package models

import (
	"fmt"
	"time"
)

// CharacterSeed is the minimal per-character record the seed-set step
// produces. Downstream fan-out steps key their jobs by CharacterID.
type CharacterSeed struct {
	CharacterID string `json:"character_id"`
	Name        string `json:"name"`
	Logline     string `json:"logline,omitempty"`
}

// ShowSnapshot is the authoritative, durable record of which artifacts
// actually exist for one show. It is the tie-breaker source of truth:
// the reconciler always prefers it over ephemeral job state.
type ShowSnapshot struct {
	ShowID    string    `json:"show_id" badgerhold:"key"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	HasBlueprint bool            `json:"has_blueprint"`
	BlueprintURL string          `json:"blueprint_url,omitempty"`
	Characters   []CharacterSeed `json:"characters"`

	// Per-character artifact maps, keyed by CharacterID. A missing or
	// empty entry means the artifact does not exist yet.
	Dossiers  map[string]bool     `json:"dossiers"`
	Portraits map[string]string   `json:"portraits"`
	Videos    map[string][]string `json:"videos"`

	PosterURL        string `json:"poster_url,omitempty"`
	LibraryPosterURL string `json:"library_poster_url,omitempty"`
	GridURL          string `json:"grid_url,omitempty"`
	TrailerURL       string `json:"trailer_url,omitempty"`
}

// NewShowSnapshot creates an empty snapshot for a new show.
func NewShowSnapshot(showID, title string) *ShowSnapshot {
	now := time.Now()
	return &ShowSnapshot{
		ShowID:    showID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Dossiers:  make(map[string]bool),
		Portraits: make(map[string]string),
		Videos:    make(map[string][]string),
	}
}

// EnsureMaps initializes nil maps after deserialization.
func (s *ShowSnapshot) EnsureMaps() {
	if s.Dossiers == nil {
		s.Dossiers = make(map[string]bool)
	}
	if s.Portraits == nil {
		s.Portraits = make(map[string]string)
	}
	if s.Videos == nil {
		s.Videos = make(map[string][]string)
	}
}

// Touch updates the last-modified timestamp.
func (s *ShowSnapshot) Touch() {
	s.UpdatedAt = time.Now()
}

// SeedCount returns the number of characters, which defines the fan-out
// total for per-character steps.
func (s *ShowSnapshot) SeedCount() int {
	return len(s.Characters)
}

// ApplyArtifact records a finished artifact on the snapshot. Video
// locators append; every other kind overwrites its field, which is how
// a resubmission replaces a prior artifact.
func (s *ShowSnapshot) ApplyArtifact(kind JobKind, target TargetEntity, locator string) error {
	s.EnsureMaps()
	switch kind {
	case KindShowBlueprint:
		s.HasBlueprint = true
		s.BlueprintURL = locator
	case KindCharacterDossier:
		s.Dossiers[target.CharacterID] = true
	case KindPortrait:
		s.Portraits[target.CharacterID] = locator
	case KindVideo:
		s.Videos[target.CharacterID] = append(s.Videos[target.CharacterID], locator)
	case KindPoster:
		s.PosterURL = locator
	case KindLibraryPoster:
		s.LibraryPosterURL = locator
	case KindPortraitGrid:
		s.GridURL = locator
	case KindTrailer:
		s.TrailerURL = locator
	case KindCharacterSeedSet:
		// Seeds are applied structurally via SetCharacters once parsed.
	default:
		return fmt.Errorf("unknown artifact kind: %s", kind)
	}
	return nil
}

// SetCharacters replaces the seed list. Existing per-character artifact
// entries for removed characters are kept; the reconciler only counts
// characters present in the current seed list.
func (s *ShowSnapshot) SetCharacters(seeds []CharacterSeed) {
	s.Characters = seeds
}

// Completed reports whether the snapshot records a finished artifact
// for the given kind and character.
func (s *ShowSnapshot) Completed(kind JobKind, characterID string) bool {
	switch kind {
	case KindShowBlueprint:
		return s.HasBlueprint
	case KindCharacterSeedSet:
		return len(s.Characters) > 0
	case KindCharacterDossier:
		return s.Dossiers[characterID]
	case KindPortrait:
		return s.Portraits[characterID] != ""
	case KindVideo:
		return len(s.Videos[characterID]) > 0
	case KindPoster:
		return s.PosterURL != ""
	case KindLibraryPoster:
		return s.LibraryPosterURL != ""
	case KindPortraitGrid:
		return s.GridURL != ""
	case KindTrailer:
		return s.TrailerURL != ""
	default:
		return false
	}
}
