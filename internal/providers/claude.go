// -----------------------------------------------------------------------
// Claude Text Provider - blueprints, character seeds and dossiers
// -----------------------------------------------------------------------

package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/interfaces"
	"github.com/ternarybob/backlot/internal/models"
	"github.com/ternarybob/backlot/internal/normalize"
)

const defaultMaxTokens = 8192

// ClaudeProvider generates text artifacts (show blueprint, character
// seed set, dossiers). The Messages API is synchronous, so CreateJob
// assigns a correlation id and generation runs in-line on first poll.
type ClaudeProvider struct {
	client anthropic.Client
	model  string
	logger arbor.ILogger

	mu      sync.Mutex
	pending map[string]models.ProviderRequest
	done    map[string]interfaces.ProviderJobState
}

// NewClaudeProvider creates the text provider from configuration.
func NewClaudeProvider(config *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: Claude API key is required (set providers.claude.api_key or BACKLOT_CLAUDE_API_KEY)", models.ErrConfiguration)
	}

	model := config.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}

	return &ClaudeProvider{
		client:  anthropic.NewClient(option.WithAPIKey(config.APIKey)),
		model:   model,
		logger:  logger,
		pending: make(map[string]models.ProviderRequest),
		done:    make(map[string]interfaces.ProviderJobState),
	}, nil
}

var _ interfaces.ProviderClient = (*ClaudeProvider)(nil)

// ID returns the provider identifier.
func (p *ClaudeProvider) ID() string {
	return "claude"
}

// Constraints declares the supported parameter space. Text generation
// has no duration, aspect or resolution dimensions.
func (p *ClaudeProvider) Constraints() models.ProviderConstraints {
	return models.ProviderConstraints{}
}

// BuildRequest maps generation parameters to the Messages payload.
func (p *ClaudeProvider) BuildRequest(kind models.JobKind, params models.GenerationParams) (models.ProviderRequest, error) {
	if params.Prompt == "" {
		return models.ProviderRequest{}, fmt.Errorf("%w: prompt is required for %s", models.ErrValidation, kind)
	}

	return models.ProviderRequest{
		Provider: p.ID(),
		Model:    p.model,
		Prompt:   params.Prompt,
		Params:   params,
	}, nil
}

// CreateJob assigns a correlation id; generation happens on first poll.
func (p *ClaudeProvider) CreateJob(ctx context.Context, req models.ProviderRequest) (string, error) {
	handle := "txt_" + uuid.New().String()

	p.mu.Lock()
	p.pending[handle] = req
	p.mu.Unlock()

	return handle, nil
}

// PollJob executes the pending generation in-line and caches the
// terminal state for subsequent polls.
func (p *ClaudeProvider) PollJob(ctx context.Context, handle string) (interfaces.ProviderJobState, error) {
	p.mu.Lock()
	if state, ok := p.done[handle]; ok {
		p.mu.Unlock()
		return state, nil
	}
	req, ok := p.pending[handle]
	if !ok {
		p.mu.Unlock()
		return interfaces.ProviderJobState{}, fmt.Errorf("%w: unknown text job %s", models.ErrProvider, handle)
	}
	delete(p.pending, handle)
	p.mu.Unlock()

	state := p.generate(ctx, req)

	p.mu.Lock()
	p.done[handle] = state
	p.mu.Unlock()

	return state, nil
}

func (p *ClaudeProvider) generate(ctx context.Context, req models.ProviderRequest) interfaces.ProviderJobState {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(defaultMaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Params.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Params.Temperature))
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return interfaces.ProviderJobState{
			Status: models.ProviderJobFailed,
			Error:  fmt.Sprintf("Claude API call failed: %v", err),
		}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return interfaces.ProviderJobState{
			Status: models.ProviderJobFailed,
			Error:  "no response generated from Claude API",
		}
	}

	return interfaces.ProviderJobState{
		Status: models.ProviderJobSucceeded,
		Result: normalize.BufferResult([]byte(text.String())),
	}
}
