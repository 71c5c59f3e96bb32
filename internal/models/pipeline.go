package models

// PipelineStepDefinition is the static description of one stage in a
// show's production pipeline. Order defines a strict total order used
// for UI sequencing and dependency assumptions (video requires portrait).
type PipelineStepDefinition struct {
	ID     string  `json:"id"`
	Kind   JobKind `json:"kind"`
	Order  int     `json:"order"`
	FanOut bool    `json:"fan_out"` // One job per character when true
}

// PipelineSteps is the fixed production pipeline, in order.
var PipelineSteps = []PipelineStepDefinition{
	{ID: "blueprint", Kind: KindShowBlueprint, Order: 1, FanOut: false},
	{ID: "seeds", Kind: KindCharacterSeedSet, Order: 2, FanOut: false},
	{ID: "dossiers", Kind: KindCharacterDossier, Order: 3, FanOut: true},
	{ID: "portraits", Kind: KindPortrait, Order: 4, FanOut: true},
	{ID: "videos", Kind: KindVideo, Order: 5, FanOut: true},
	{ID: "poster", Kind: KindPoster, Order: 6, FanOut: false},
	{ID: "library-poster", Kind: KindLibraryPoster, Order: 7, FanOut: false},
	{ID: "portrait-grid", Kind: KindPortraitGrid, Order: 8, FanOut: false},
	{ID: "trailer", Kind: KindTrailer, Order: 9, FanOut: false},
}

// StepForKind returns the pipeline step producing the given kind.
func StepForKind(kind JobKind) (PipelineStepDefinition, bool) {
	for _, step := range PipelineSteps {
		if step.Kind == kind {
			return step, true
		}
	}
	return PipelineStepDefinition{}, false
}
