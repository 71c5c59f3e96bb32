package interfaces

import (
	"context"

	"github.com/ternarybob/backlot/internal/models"
	"github.com/ternarybob/backlot/internal/normalize"
)

// ProviderAdapter describes one generation back end's accepted
// parameters and builds its request payload. Adding a provider means
// registering one adapter; orchestration code never changes.
type ProviderAdapter interface {
	// ID returns the provider identifier, e.g. "gemini-image".
	ID() string

	// Constraints declares the supported parameter space.
	Constraints() models.ProviderConstraints

	// BuildRequest maps normalized generation parameters to the
	// provider-specific payload.
	BuildRequest(kind models.JobKind, params models.GenerationParams) (models.ProviderRequest, error)
}

// ProviderJobState is one observation of a provider-side job.
type ProviderJobState struct {
	Status models.ProviderJobStatus
	Error  string
	// Result carries the provider response on terminal success, already
	// reduced to tagged variants at the boundary.
	Result normalize.Result
}

// ProviderClient creates and polls provider jobs. Synchronous providers
// return a caller-assigned correlation id from CreateJob and report a
// terminal state on the first Poll.
type ProviderClient interface {
	ProviderAdapter

	// CreateJob submits the request and returns the provider's job
	// handle without waiting for completion.
	CreateJob(ctx context.Context, req models.ProviderRequest) (string, error)

	// PollJob fetches the current state of a previously created job.
	PollJob(ctx context.Context, handle string) (ProviderJobState, error)
}
