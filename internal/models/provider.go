package models

// GenerationParams are the caller-supplied parameters for one job.
// Values outside a provider's supported set are normalized to the
// nearest supported value rather than rejected.
type GenerationParams struct {
	Prompt          string  `json:"prompt"`
	DurationSeconds int     `json:"duration_seconds,omitempty"`
	AspectRatio     string  `json:"aspect_ratio,omitempty"`
	Resolution      string  `json:"resolution,omitempty"`
	ReferenceImage  string  `json:"reference_image,omitempty"` // Locator of an input artifact (e.g., portrait for video)
	Seed            int64   `json:"seed,omitempty"`
	Temperature     float32 `json:"temperature,omitempty"`
}

// ProviderConstraints declares the parameter space a provider accepts.
// Empty slices mean the dimension does not apply to the provider.
type ProviderConstraints struct {
	SupportedDurations    []int
	SupportedAspectRatios []string
	SupportedResolutions  []string
	DefaultDuration       int
	DefaultAspectRatio    string
	DefaultResolution     string
}

// ProviderRequest is the provider-specific payload built by an adapter.
// Field meaning is owned by the provider client that consumes it.
type ProviderRequest struct {
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	Prompt   string            `json:"prompt"`
	Params   GenerationParams  `json:"params"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// ProviderJobStatus is the provider-reported state of a created job.
type ProviderJobStatus string

const (
	ProviderJobRunning   ProviderJobStatus = "running"
	ProviderJobSucceeded ProviderJobStatus = "succeeded"
	ProviderJobFailed    ProviderJobStatus = "failed"
)
