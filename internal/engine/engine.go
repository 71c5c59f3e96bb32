// -----------------------------------------------------------------------
// Submission & Polling Engine - creates provider jobs and drives each
// one to a terminal state through detached polling goroutines
// -----------------------------------------------------------------------

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/interfaces"
	"github.com/ternarybob/backlot/internal/models"
	"github.com/ternarybob/backlot/internal/normalize"
	"github.com/ternarybob/backlot/internal/providers"
)

// errSuperseded signals that a newer submission took over this job's
// registry key; the older poller stops without writing anything.
var errSuperseded = errors.New("job superseded by newer submission")

// SubmitRequest is one generation request as accepted by the engine.
type SubmitRequest struct {
	Kind     models.JobKind          `json:"kind" validate:"required"`
	Target   models.TargetEntity     `json:"target" validate:"required"`
	Params   models.GenerationParams `json:"params"`
	Provider string                  `json:"provider,omitempty"` // Optional explicit provider id
}

// Validate checks the request using go-playground/validator plus the
// structural rules tags cannot express.
func (r *SubmitRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown job kind %q", models.ErrValidation, r.Kind)
	}
	if r.Target.ShowID == "" {
		return fmt.Errorf("%w: target.show_id is required", models.ErrValidation)
	}
	if step, ok := models.StepForKind(r.Kind); ok && step.FanOut && r.Target.CharacterID == "" {
		return fmt.Errorf("%w: kind %q requires target.character_id", models.ErrValidation, r.Kind)
	}
	if strings.TrimSpace(r.Params.Prompt) == "" {
		return fmt.Errorf("%w: params.prompt is required", models.ErrValidation)
	}
	return nil
}

// BatchRequest fans one request out to every character of a show.
// PromptTemplate may reference {{name}} and {{logline}}, substituted per
// character before submission.
type BatchRequest struct {
	ShowID         string                  `json:"show_id" validate:"required"`
	Kind           models.JobKind          `json:"kind" validate:"required"`
	Params         models.GenerationParams `json:"params"`
	PromptTemplate string                  `json:"prompt_template" validate:"required"`
	Provider       string                  `json:"provider,omitempty"`
}

// Engine submits generation jobs and supervises their polling
// goroutines. All background work is tied to the context given to
// Start, so Stop can drain every in-flight poller.
type Engine struct {
	config    *common.Config
	logger    arbor.ILogger
	providers *providers.Registry
	registry  interfaces.TaskRegistry
	storage   interfaces.SnapshotStorage
	events    interfaces.EventPublisher

	pollInterval time.Duration

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an engine. The configuration must already be validated.
func New(config *common.Config, logger arbor.ILogger, registry interfaces.TaskRegistry, storage interfaces.SnapshotStorage, providerRegistry *providers.Registry, events interfaces.EventPublisher) *Engine {
	interval, err := config.PollInterval()
	if err != nil {
		interval = 3 * time.Second
	}
	return &Engine{
		config:       config,
		logger:       logger,
		providers:    providerRegistry,
		registry:     registry,
		storage:      storage,
		events:       events,
		pollInterval: interval,
		limiters:     make(map[string]*rate.Limiter),
	}
}

// Start binds the engine's background goroutines to a parent context.
// Must be called before Submit.
func (e *Engine) Start(ctx context.Context) {
	e.baseCtx, e.cancel = context.WithCancel(ctx)
	e.logger.Info().
		Str("poll_interval", e.pollInterval.String()).
		Int("max_poll_attempts", e.config.Engine.MaxPollAttempts).
		Msg("Generation engine started")
}

// Stop cancels all polling goroutines and waits for them to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info().Msg("Generation engine stopped")
}

// Submit validates the request, creates the provider job, records the
// starting state, and spawns a detached poller. It returns as soon as
// the provider accepts the job.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*models.GenerationJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := e.storage.GetSnapshot(ctx, req.Target.ShowID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown show %q", models.ErrValidation, req.Target.ShowID)
		}
		return nil, err
	}

	client, err := e.resolveClient(req.Provider, req.Kind)
	if err != nil {
		return nil, err
	}

	req.Params = providers.NormalizeParams(req.Params, client.Constraints())
	providerReq, err := client.BuildRequest(req.Kind, req.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	if err := e.limiter(client.ID()).Wait(ctx); err != nil {
		return nil, err
	}

	handle, err := client.CreateJob(ctx, providerReq)
	if err != nil {
		e.recordSubmitFailure(req, client.ID(), err)
		return nil, fmt.Errorf("%w: %v", models.ErrProvider, err)
	}

	now := time.Now()
	job := models.GenerationJob{
		ID:            handle,
		Kind:          req.Kind,
		Target:        req.Target,
		Provider:      client.ID(),
		Status:        models.StatusStarting,
		Attempts:      1,
		StartedAt:     now,
		LastUpdatedAt: now,
	}
	e.registry.Upsert(&job)
	e.publish(&job)

	e.logger.Info().
		Str("job_id", job.ID).
		Str("key", job.Key().String()).
		Str("provider", job.Provider).
		Msg("Generation job submitted")

	// The poll loop observes cancellation itself; the wg.Done must run
	// even when the base context is already closed.
	e.wg.Add(1)
	common.SafeGo(e.logger, "poll-"+job.ID, func() {
		defer e.wg.Done()
		e.run(job, client, providerReq)
	})

	return &job, nil
}

// SubmitBatch submits one job per character of the show. Partial
// success is allowed: failed submissions are reported per character
// without aborting the rest.
func (e *Engine) SubmitBatch(ctx context.Context, req BatchRequest) ([]*models.GenerationJob, error) {
	validate := validator.New()
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	step, ok := models.StepForKind(req.Kind)
	if !ok || !step.FanOut {
		return nil, fmt.Errorf("%w: kind %q is not a per-character step", models.ErrValidation, req.Kind)
	}

	snapshot, err := e.storage.GetSnapshot(ctx, req.ShowID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown show %q", models.ErrValidation, req.ShowID)
		}
		return nil, err
	}
	if snapshot.SeedCount() == 0 {
		return nil, fmt.Errorf("%w: show %q has no character seeds", models.ErrValidation, req.ShowID)
	}

	jobs := make([]*models.GenerationJob, 0, snapshot.SeedCount())
	var firstErr error
	for _, seed := range snapshot.Characters {
		params := req.Params
		params.Prompt = expandTemplate(req.PromptTemplate, seed)
		if req.Kind == models.KindVideo && params.ReferenceImage == "" {
			params.ReferenceImage = snapshot.Portraits[seed.CharacterID]
		}

		job, err := e.Submit(ctx, SubmitRequest{
			Kind: req.Kind,
			Target: models.TargetEntity{
				ShowID:      req.ShowID,
				CharacterID: seed.CharacterID,
			},
			Params:   params,
			Provider: req.Provider,
		})
		if err != nil {
			e.logger.Warn().
				Str("show_id", req.ShowID).
				Str("character_id", seed.CharacterID).
				Err(err).
				Msg("Batch submission failed for character")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		jobs = append(jobs, job)
	}

	if len(jobs) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return jobs, nil
}

// Dismiss removes a terminal record from the registry. Active jobs
// cannot be dismissed; a new submission with the same key supersedes
// them instead.
func (e *Engine) Dismiss(key models.TaskKey) bool {
	return e.registry.Remove(key)
}

// RetryPersist retries only the durable write for a job that completed
// at the provider but failed persistence. The retained result locator
// is written without resubmitting the generation.
func (e *Engine) RetryPersist(ctx context.Context, key models.TaskKey) error {
	record := e.registry.Get(key)
	if record == nil {
		return fmt.Errorf("%w: no record for %s", models.ErrNotFound, key)
	}
	if record.ErrorKind != models.ErrorKindPersistence || record.ResultLocator == "" {
		return fmt.Errorf("%w: job %s is not awaiting a persistence retry", models.ErrValidation, record.ID)
	}

	if err := e.persistResult(ctx, record.Kind, record.Target, record.ResultLocator); err != nil {
		return err
	}

	record.Status = models.StatusSucceeded
	record.Error = ""
	record.ErrorKind = ""
	record.Touch()
	e.registry.Sync(record)
	e.publish(record)
	return nil
}

// run drives one job to a terminal state, resubmitting on retryable
// failures up to the configured ceiling. Attempts accumulate across
// resubmissions so observers see the full retry history on one record.
func (e *Engine) run(job models.GenerationJob, client interfaces.ProviderClient, req models.ProviderRequest) {
	for {
		err := e.pollUntilTerminal(&job, client)
		if err == nil || errors.Is(err, errSuperseded) || errors.Is(err, context.Canceled) {
			return
		}

		kind := models.ClassifyError(err)
		if kind != models.ErrorKindProvider && kind != models.ErrorKindTimeout {
			e.fail(&job, kind, err.Error())
			return
		}
		if job.Attempts >= e.config.Engine.MaxSubmitRetries {
			e.fail(&job, kind, err.Error())
			return
		}

		// Confirm this poller still owns the key before resubmitting.
		current := e.registry.Get(job.Key())
		if current == nil || current.ID != job.ID {
			return
		}

		e.logger.Warn().
			Str("job_id", job.ID).
			Str("key", job.Key().String()).
			Int("attempt", job.Attempts).
			Err(err).
			Msg("Retrying generation job")

		if waitErr := e.limiter(client.ID()).Wait(e.baseCtx); waitErr != nil {
			return
		}
		handle, createErr := client.CreateJob(e.baseCtx, req)
		job.Attempts++
		if createErr != nil {
			if job.Attempts >= e.config.Engine.MaxSubmitRetries {
				e.fail(&job, models.ErrorKindProvider, createErr.Error())
				return
			}
			continue
		}

		job.ID = handle
		job.Status = models.StatusStarting
		job.Error = ""
		job.ErrorKind = ""
		job.Touch()
		e.registry.Upsert(&job)
		e.publish(&job)
	}
}

// pollUntilTerminal polls the provider until the job succeeds, fails,
// or the poll ceiling is reached. Success is only reported after the
// durable snapshot write lands.
func (e *Engine) pollUntilTerminal(job *models.GenerationJob, client interfaces.ProviderClient) error {
	for poll := 0; poll < e.config.Engine.MaxPollAttempts; poll++ {
		if poll > 0 {
			select {
			case <-e.baseCtx.Done():
				return e.baseCtx.Err()
			case <-time.After(e.pollInterval):
			}
		}

		state, err := client.PollJob(e.baseCtx, job.ID)
		if err != nil {
			// Transient fetch failure; the attempt still counts toward
			// the ceiling so a dead provider cannot poll forever.
			e.logger.Debug().Str("job_id", job.ID).Err(err).Msg("Poll attempt failed")
			continue
		}

		switch state.Status {
		case models.ProviderJobRunning:
			if job.Status != models.StatusProcessing {
				job.Status = models.StatusProcessing
				job.Touch()
				if !e.registry.Sync(job) {
					return errSuperseded
				}
				e.publish(job)
			} else {
				job.Touch()
				if !e.registry.Sync(job) {
					return errSuperseded
				}
			}

		case models.ProviderJobFailed:
			msg := state.Error
			if msg == "" {
				msg = "provider reported failure without detail"
			}
			return fmt.Errorf("%w: %s", models.ErrProvider, msg)

		case models.ProviderJobSucceeded:
			locator, err := normalize.Locator(state.Result)
			if err != nil {
				return err
			}
			if err := e.persistResult(e.baseCtx, job.Kind, job.Target, locator); err != nil {
				// The artifact exists at the provider; retain its locator
				// so only the durable write needs retrying.
				job.ResultLocator = locator
				return err
			}

			job.ResultLocator = locator
			job.Status = models.StatusSucceeded
			job.Error = ""
			job.ErrorKind = ""
			job.Touch()
			if !e.registry.Sync(job) {
				return errSuperseded
			}
			e.publish(job)
			e.logger.Info().
				Str("job_id", job.ID).
				Str("key", job.Key().String()).
				Int("attempts", job.Attempts).
				Msg("Generation job succeeded")
			return nil
		}
	}

	return fmt.Errorf("%w: gave up after %d poll attempts", models.ErrTimeout, e.config.Engine.MaxPollAttempts)
}

// persistResult writes a finished artifact into the show snapshot.
// Seed-set results are parsed into character seeds first; everything
// else records its locator directly.
func (e *Engine) persistResult(ctx context.Context, kind models.JobKind, target models.TargetEntity, locator string) error {
	if kind == models.KindCharacterSeedSet {
		seeds, err := ParseSeedSet(locator)
		if err != nil {
			return err
		}
		return e.storage.UpdateSnapshot(ctx, target.ShowID, func(s *models.ShowSnapshot) error {
			s.SetCharacters(seeds)
			return nil
		})
	}

	return e.storage.UpdateSnapshot(ctx, target.ShowID, func(s *models.ShowSnapshot) error {
		return s.ApplyArtifact(kind, target, locator)
	})
}

// fail records a terminal failure on the job. A superseded job's
// failure is dropped silently.
func (e *Engine) fail(job *models.GenerationJob, kind models.ErrorKind, msg string) {
	job.Status = models.StatusFailed
	job.Error = msg
	job.ErrorKind = kind
	job.Touch()
	if !e.registry.Sync(job) {
		return
	}
	e.publish(job)
	e.logger.Warn().
		Str("job_id", job.ID).
		Str("key", job.Key().String()).
		Str("error_kind", string(job.ErrorKind)).
		Int("attempts", job.Attempts).
		Str("error", msg).
		Msg("Generation job failed")
}

// recordSubmitFailure leaves a failed record behind when the provider
// rejects the initial submission, so status queries can show the error.
func (e *Engine) recordSubmitFailure(req SubmitRequest, providerID string, err error) {
	now := time.Now()
	job := models.GenerationJob{
		ID:            common.NewJobID(),
		Kind:          req.Kind,
		Target:        req.Target,
		Provider:      providerID,
		Status:        models.StatusFailed,
		Attempts:      1,
		Error:         err.Error(),
		ErrorKind:     models.ErrorKindProvider,
		StartedAt:     now,
		LastUpdatedAt: now,
	}
	e.registry.Upsert(&job)
	e.publish(&job)
}

func (e *Engine) resolveClient(providerID string, kind models.JobKind) (interfaces.ProviderClient, error) {
	if providerID != "" {
		return e.providers.Get(providerID)
	}
	return e.providers.ForKind(kind)
}

// limiter returns the per-provider submission rate limiter, creating it
// on first use.
func (e *Engine) limiter(providerID string) *rate.Limiter {
	e.limiterMu.Lock()
	defer e.limiterMu.Unlock()

	if l, ok := e.limiters[providerID]; ok {
		return l
	}
	perSec := e.config.Engine.SubmitRatePerSec
	if perSec <= 0 {
		perSec = 2
	}
	burst := e.config.Engine.SubmitBurst
	if burst <= 0 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(perSec), burst)
	e.limiters[providerID] = l
	return l
}

func (e *Engine) publish(job *models.GenerationJob) {
	if e.events == nil {
		return
	}
	copy := *job
	e.events.PublishJobUpdate(&copy)
}

// expandTemplate substitutes per-character fields into a prompt template.
func expandTemplate(template string, seed models.CharacterSeed) string {
	out := strings.ReplaceAll(template, "{{name}}", seed.Name)
	out = strings.ReplaceAll(out, "{{logline}}", seed.Logline)
	return out
}
