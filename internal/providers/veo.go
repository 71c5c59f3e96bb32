// -----------------------------------------------------------------------
// Veo Video Provider - character videos and trailers via long-running
// Gemini video operations
// -----------------------------------------------------------------------

package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/interfaces"
	"github.com/ternarybob/backlot/internal/models"
	"github.com/ternarybob/backlot/internal/normalize"
	"google.golang.org/genai"
)

// VeoProvider generates video through the genai long-running operation
// API. CreateJob starts the operation and returns its name; PollJob
// refreshes the operation until the service reports it done.
type VeoProvider struct {
	client *genai.Client
	model  string
	logger arbor.ILogger

	mu         sync.Mutex
	operations map[string]*genai.GenerateVideosOperation
}

// NewVeoProvider creates the video provider from configuration.
func NewVeoProvider(ctx context.Context, config *common.GeminiConfig, logger arbor.ILogger) (*VeoProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: Gemini API key is required (set providers.gemini.api_key or BACKLOT_GEMINI_API_KEY)", models.ErrConfiguration)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	model := config.VideoModel
	if model == "" {
		model = "veo-3.0-generate-001"
	}

	return &VeoProvider{
		client:     client,
		model:      model,
		logger:     logger,
		operations: make(map[string]*genai.GenerateVideosOperation),
	}, nil
}

var _ interfaces.ProviderClient = (*VeoProvider)(nil)

// ID returns the provider identifier.
func (p *VeoProvider) ID() string {
	return "veo"
}

// Constraints declares the supported parameter space.
func (p *VeoProvider) Constraints() models.ProviderConstraints {
	return models.ProviderConstraints{
		SupportedDurations:    []int{4, 6, 8},
		SupportedAspectRatios: []string{"16:9", "9:16"},
		SupportedResolutions:  []string{"720p", "1080p"},
		DefaultDuration:       8,
		DefaultAspectRatio:    "16:9",
		DefaultResolution:     "720p",
	}
}

// BuildRequest maps generation parameters to the video payload.
func (p *VeoProvider) BuildRequest(kind models.JobKind, params models.GenerationParams) (models.ProviderRequest, error) {
	if params.Prompt == "" {
		return models.ProviderRequest{}, fmt.Errorf("%w: prompt is required for %s", models.ErrValidation, kind)
	}

	normalized := NormalizeParams(params, p.Constraints())
	return models.ProviderRequest{
		Provider: p.ID(),
		Model:    p.model,
		Prompt:   normalized.Prompt,
		Params:   normalized,
	}, nil
}

// CreateJob starts the video operation and returns its name as the
// job handle.
func (p *VeoProvider) CreateJob(ctx context.Context, req models.ProviderRequest) (string, error) {
	duration := int32(req.Params.DurationSeconds)
	config := &genai.GenerateVideosConfig{
		NumberOfVideos:  1,
		AspectRatio:     req.Params.AspectRatio,
		Resolution:      req.Params.Resolution,
		DurationSeconds: &duration,
	}

	image, err := referenceImage(req.Params.ReferenceImage)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	operation, err := p.client.Models.GenerateVideos(ctx, req.Model, req.Prompt, image, config)
	if err != nil {
		return "", fmt.Errorf("%w: video operation creation failed: %v", models.ErrProvider, err)
	}

	p.mu.Lock()
	p.operations[operation.Name] = operation
	p.mu.Unlock()

	p.logger.Debug().
		Str("operation", operation.Name).
		Str("model", req.Model).
		Msg("Video operation started")

	return operation.Name, nil
}

// PollJob refreshes the long-running operation.
func (p *VeoProvider) PollJob(ctx context.Context, handle string) (interfaces.ProviderJobState, error) {
	p.mu.Lock()
	operation, ok := p.operations[handle]
	p.mu.Unlock()

	if !ok {
		return interfaces.ProviderJobState{}, fmt.Errorf("%w: unknown video operation %s", models.ErrProvider, handle)
	}

	refreshed, err := p.client.Operations.GetVideosOperation(ctx, operation, nil)
	if err != nil {
		// Transient fetch failure; the job stays running and the engine
		// retries on its next poll tick.
		return interfaces.ProviderJobState{Status: models.ProviderJobRunning}, nil
	}

	p.mu.Lock()
	p.operations[handle] = refreshed
	p.mu.Unlock()

	if !refreshed.Done {
		return interfaces.ProviderJobState{Status: models.ProviderJobRunning}, nil
	}

	if refreshed.Error != nil {
		return interfaces.ProviderJobState{
			Status: models.ProviderJobFailed,
			Error:  fmt.Sprintf("video operation failed: %v", refreshed.Error),
		}, nil
	}

	return interfaces.ProviderJobState{
		Status: models.ProviderJobSucceeded,
		Result: videosResult(refreshed),
	}, nil
}

// referenceImage converts a reference locator into the input image for
// image-to-video generation. Data locators are decoded in-line; other
// locators are passed through by URI.
func referenceImage(locator string) (*genai.Image, error) {
	if locator == "" {
		return nil, nil
	}

	if strings.HasPrefix(locator, "data:") {
		meta, payload, found := strings.Cut(locator, ",")
		if !found {
			return nil, fmt.Errorf("malformed reference image locator")
		}
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("reference image payload is not base64: %v", err)
		}
		mime := strings.TrimSuffix(strings.TrimPrefix(meta, "data:"), ";base64")
		return &genai.Image{ImageBytes: decoded, MIMEType: mime}, nil
	}

	return &genai.Image{GCSURI: locator}, nil
}

// videosResult reduces a finished operation to tagged result variants.
func videosResult(operation *genai.GenerateVideosOperation) normalize.Result {
	if operation.Response == nil {
		return nil
	}

	videos := make([]normalize.Result, 0, len(operation.Response.GeneratedVideos))
	for _, generated := range operation.Response.GeneratedVideos {
		video := generated.Video
		if video == nil {
			continue
		}
		if video.URI != "" {
			videos = append(videos, normalize.StringResult(video.URI))
			continue
		}
		if len(video.VideoBytes) > 0 {
			videos = append(videos, normalize.BufferResult(video.VideoBytes))
		}
	}

	return normalize.WrapperResult{Videos: videos}
}
