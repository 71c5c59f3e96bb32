// -----------------------------------------------------------------------
// Gemini Image Provider - portraits and posters via the Gemini image API
// -----------------------------------------------------------------------

package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/interfaces"
	"github.com/ternarybob/backlot/internal/models"
	"github.com/ternarybob/backlot/internal/normalize"
	"google.golang.org/genai"
)

// GeminiImageProvider generates still images. The Gemini image endpoint
// is synchronous, so CreateJob assigns a correlation id and the actual
// generation runs in-line on the first poll.
type GeminiImageProvider struct {
	client *genai.Client
	model  string
	logger arbor.ILogger

	mu      sync.Mutex
	pending map[string]models.ProviderRequest
	done    map[string]interfaces.ProviderJobState
}

// NewGeminiImageProvider creates the image provider from configuration.
func NewGeminiImageProvider(ctx context.Context, config *common.GeminiConfig, logger arbor.ILogger) (*GeminiImageProvider, error) {
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

	model := config.ImageModel
	if model == "" {
		model = "gemini-2.5-flash-image"
	}

	return &GeminiImageProvider{
		client:  client,
		model:   model,
		logger:  logger,
		pending: make(map[string]models.ProviderRequest),
		done:    make(map[string]interfaces.ProviderJobState),
	}, nil
}

var _ interfaces.ProviderClient = (*GeminiImageProvider)(nil)

// ID returns the provider identifier.
func (p *GeminiImageProvider) ID() string {
	return "gemini-image"
}

// Constraints declares the supported parameter space.
func (p *GeminiImageProvider) Constraints() models.ProviderConstraints {
	return models.ProviderConstraints{
		SupportedAspectRatios: []string{"1:1", "3:4", "4:3", "9:16", "16:9"},
		DefaultAspectRatio:    "3:4",
	}
}

// BuildRequest maps generation parameters to the image payload.
func (p *GeminiImageProvider) BuildRequest(kind models.JobKind, params models.GenerationParams) (models.ProviderRequest, error) {
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

// CreateJob assigns a correlation id; generation happens on first poll.
func (p *GeminiImageProvider) CreateJob(ctx context.Context, req models.ProviderRequest) (string, error) {
	handle := "img_" + uuid.New().String()

	p.mu.Lock()
	p.pending[handle] = req
	p.mu.Unlock()

	p.logger.Debug().
		Str("handle", handle).
		Str("model", req.Model).
		Msg("Image job registered")

	return handle, nil
}

// PollJob executes the pending generation in-line and caches the
// terminal state for subsequent polls.
func (p *GeminiImageProvider) PollJob(ctx context.Context, handle string) (interfaces.ProviderJobState, error) {
	p.mu.Lock()
	if state, ok := p.done[handle]; ok {
		p.mu.Unlock()
		return state, nil
	}
	req, ok := p.pending[handle]
	if !ok {
		p.mu.Unlock()
		return interfaces.ProviderJobState{}, fmt.Errorf("%w: unknown image job %s", models.ErrProvider, handle)
	}
	delete(p.pending, handle)
	p.mu.Unlock()

	state := p.generate(ctx, req)

	p.mu.Lock()
	p.done[handle] = state
	p.mu.Unlock()

	return state, nil
}

func (p *GeminiImageProvider) generate(ctx context.Context, req models.ProviderRequest) interfaces.ProviderJobState {
	config := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	}
	if req.Params.AspectRatio != "" {
		config.AspectRatio = req.Params.AspectRatio
	}

	resp, err := p.client.Models.GenerateImages(ctx, req.Model, req.Prompt, config)
	if err != nil {
		return interfaces.ProviderJobState{
			Status: models.ProviderJobFailed,
			Error:  fmt.Sprintf("image generation failed: %v", err),
		}
	}

	results := make(normalize.ArrayResult, 0, len(resp.GeneratedImages))
	for _, generated := range resp.GeneratedImages {
		if generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
			continue
		}
		results = append(results, normalize.BufferResult(generated.Image.ImageBytes))
	}

	return interfaces.ProviderJobState{
		Status: models.ProviderJobSucceeded,
		Result: results,
	}
}
