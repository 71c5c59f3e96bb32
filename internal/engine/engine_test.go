package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/interfaces"
	"github.com/ternarybob/backlot/internal/models"
	"github.com/ternarybob/backlot/internal/normalize"
	"github.com/ternarybob/backlot/internal/providers"
	"github.com/ternarybob/backlot/internal/registry"
)

// attemptScript describes one provider-side submission attempt.
type attemptScript struct {
	createErr  error
	pollStates []interfaces.ProviderJobState
}

// mockClient plays back scripted attempts. Each CreateJob advances to
// the next script entry; PollJob steps through that entry's states and
// repeats the last one.
type mockClient struct {
	id      string
	mu      sync.Mutex
	scripts []attemptScript
	attempt int
	polls   int
}

func (m *mockClient) ID() string { return m.id }

func (m *mockClient) Constraints() models.ProviderConstraints {
	return models.ProviderConstraints{}
}

func (m *mockClient) BuildRequest(kind models.JobKind, params models.GenerationParams) (models.ProviderRequest, error) {
	return models.ProviderRequest{Provider: m.id, Prompt: params.Prompt, Params: params}, nil
}

func (m *mockClient) CreateJob(ctx context.Context, req models.ProviderRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	script := m.scripts[m.attempt]
	m.attempt++
	m.polls = 0
	if script.createErr != nil {
		return "", script.createErr
	}
	return fmt.Sprintf("mock_%d", m.attempt), nil
}

func (m *mockClient) PollJob(ctx context.Context, handle string) (interfaces.ProviderJobState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := m.scripts[m.attempt-1].pollStates
	idx := m.polls
	if idx >= len(states) {
		idx = len(states) - 1
	}
	m.polls++
	return states[idx], nil
}

func (m *mockClient) attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// fakeStorage is an in-memory snapshot store with switchable write failures.
type fakeStorage struct {
	mu         sync.Mutex
	shows      map[string]*models.ShowSnapshot
	failWrites bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{shows: make(map[string]*models.ShowSnapshot)}
}

func (f *fakeStorage) setFailWrites(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = fail
}

func (f *fakeStorage) GetSnapshot(ctx context.Context, showID string) (*models.ShowSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.shows[showID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copy := *s
	return &copy, nil
}

func (f *fakeStorage) ListSnapshots(ctx context.Context) ([]*models.ShowSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*models.ShowSnapshot, 0, len(f.shows))
	for _, s := range f.shows {
		copy := *s
		out = append(out, &copy)
	}
	return out, nil
}

func (f *fakeStorage) CreateSnapshot(ctx context.Context, snapshot *models.ShowSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shows[snapshot.ShowID] = snapshot
	return nil
}

func (f *fakeStorage) UpdateSnapshot(ctx context.Context, showID string, mutate func(*models.ShowSnapshot) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWrites {
		return fmt.Errorf("%w: simulated write failure", models.ErrPersistence)
	}
	s, ok := f.shows[showID]
	if !ok {
		return models.ErrNotFound
	}
	if err := mutate(s); err != nil {
		return err
	}
	s.Touch()
	return nil
}

func testConfig(maxRetries int) *common.Config {
	cfg := common.DefaultConfig()
	cfg.Engine.PollInterval = "1ms"
	cfg.Engine.MaxPollAttempts = 10
	cfg.Engine.MaxSubmitRetries = maxRetries
	cfg.Engine.SubmitRatePerSec = 1000
	cfg.Engine.SubmitBurst = 100
	return cfg
}

func newTestEngine(t *testing.T, cfg *common.Config, storage interfaces.SnapshotStorage, client interfaces.ProviderClient, kinds ...models.JobKind) (*Engine, *registry.TaskRegistry) {
	t.Helper()

	reg := registry.New()
	provReg := providers.NewRegistry()
	provReg.Register(client, kinds...)

	eng := New(cfg, arbor.NewLogger(), reg, storage, provReg, nil)
	eng.Start(context.Background())
	t.Cleanup(eng.Stop)
	return eng, reg
}

func seededShow(t *testing.T, storage *fakeStorage) *models.ShowSnapshot {
	t.Helper()
	snapshot := models.NewShowSnapshot("show_a", "Test Show")
	snapshot.SetCharacters([]models.CharacterSeed{
		{CharacterID: "char_1", Name: "Ada"},
		{CharacterID: "char_2", Name: "Lin"},
	})
	require.NoError(t, storage.CreateSnapshot(context.Background(), snapshot))
	return snapshot
}

func waitTerminal(t *testing.T, reg *registry.TaskRegistry, key models.TaskKey) *models.GenerationJob {
	t.Helper()
	var job *models.GenerationJob
	require.Eventually(t, func() bool {
		job = reg.Get(key)
		return job != nil && job.Status.IsTerminal()
	}, 5*time.Second, 2*time.Millisecond, "job never reached a terminal state")
	return job
}

func succeededState(locator string) interfaces.ProviderJobState {
	return interfaces.ProviderJobState{
		Status: models.ProviderJobSucceeded,
		Result: normalize.StringResult(locator),
	}
}

func TestSubmitValidation(t *testing.T) {
	storage := newFakeStorage()
	seededShow(t, storage)
	client := &mockClient{id: "mock", scripts: []attemptScript{{pollStates: []interfaces.ProviderJobState{succeededState("u")}}}}
	eng, _ := newTestEngine(t, testConfig(1), storage, client, models.KindPortrait)

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{
			name: "unknown show",
			req: SubmitRequest{
				Kind:   models.KindPortrait,
				Target: models.TargetEntity{ShowID: "show_missing", CharacterID: "char_1"},
				Params: models.GenerationParams{Prompt: "p"},
			},
		},
		{
			name: "fan-out kind without character",
			req: SubmitRequest{
				Kind:   models.KindPortrait,
				Target: models.TargetEntity{ShowID: "show_a"},
				Params: models.GenerationParams{Prompt: "p"},
			},
		},
		{
			name: "missing prompt",
			req: SubmitRequest{
				Kind:   models.KindPortrait,
				Target: models.TargetEntity{ShowID: "show_a", CharacterID: "char_1"},
			},
		},
		{
			name: "unknown kind",
			req: SubmitRequest{
				Kind:   models.JobKind("sculpture"),
				Target: models.TargetEntity{ShowID: "show_a"},
				Params: models.GenerationParams{Prompt: "p"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Submit(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrValidation), "expected validation error, got %v", err)
		})
	}
}

// A job only flips to succeeded after the snapshot write lands: the
// success path persists first, then reports.
func TestSuccessPersistsBeforeReporting(t *testing.T) {
	storage := newFakeStorage()
	seededShow(t, storage)
	client := &mockClient{id: "mock", scripts: []attemptScript{{
		pollStates: []interfaces.ProviderJobState{
			{Status: models.ProviderJobRunning},
			succeededState("https://cdn.example.com/p.png"),
		},
	}}}
	eng, reg := newTestEngine(t, testConfig(1), storage, client, models.KindPortrait)

	job, err := eng.Submit(context.Background(), SubmitRequest{
		Kind:   models.KindPortrait,
		Target: models.TargetEntity{ShowID: "show_a", CharacterID: "char_1"},
		Params: models.GenerationParams{Prompt: "portrait of Ada"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	final := waitTerminal(t, reg, job.Key())
	assert.Equal(t, models.StatusSucceeded, final.Status)
	assert.Equal(t, "https://cdn.example.com/p.png", final.ResultLocator)

	snapshot, err := storage.GetSnapshot(context.Background(), "show_a")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/p.png", snapshot.Portraits["char_1"])
}

// Provider work succeeded but the durable write failed: the job must
// end failed with a persistence error and keep the result locator for
// a write-only retry.
func TestPersistenceFailureRetainsLocator(t *testing.T) {
	storage := newFakeStorage()
	seededShow(t, storage)
	storage.setFailWrites(true)

	client := &mockClient{id: "mock", scripts: []attemptScript{{
		pollStates: []interfaces.ProviderJobState{succeededState("https://cdn.example.com/p.png")},
	}}}
	eng, reg := newTestEngine(t, testConfig(1), storage, client, models.KindPortrait)

	job, err := eng.Submit(context.Background(), SubmitRequest{
		Kind:   models.KindPortrait,
		Target: models.TargetEntity{ShowID: "show_a", CharacterID: "char_1"},
		Params: models.GenerationParams{Prompt: "portrait of Ada"},
	})
	require.NoError(t, err)

	final := waitTerminal(t, reg, job.Key())
	assert.Equal(t, models.StatusFailed, final.Status)
	assert.Equal(t, models.ErrorKindPersistence, final.ErrorKind)
	assert.Equal(t, "https://cdn.example.com/p.png", final.ResultLocator)
	assert.Equal(t, 1, client.attempts(), "persistence failure must not resubmit to the provider")

	// The write-only retry persists without touching the provider.
	storage.setFailWrites(false)
	require.NoError(t, eng.RetryPersist(context.Background(), final.Key()))

	recovered := reg.Get(final.Key())
	assert.Equal(t, models.StatusSucceeded, recovered.Status)
	assert.Equal(t, 1, client.attempts())

	snapshot, err := storage.GetSnapshot(context.Background(), "show_a")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/p.png", snapshot.Portraits["char_1"])
}

// Retry ceiling of three: two provider failures then success yields a
// succeeded job with cumulative attempts.
func TestRetrySucceedsWithinCeiling(t *testing.T) {
	storage := newFakeStorage()
	seededShow(t, storage)

	failed := interfaces.ProviderJobState{Status: models.ProviderJobFailed, Error: "transient overload"}
	client := &mockClient{id: "mock", scripts: []attemptScript{
		{pollStates: []interfaces.ProviderJobState{failed}},
		{pollStates: []interfaces.ProviderJobState{failed}},
		{pollStates: []interfaces.ProviderJobState{succeededState("https://cdn.example.com/p.png")}},
	}}
	eng, reg := newTestEngine(t, testConfig(3), storage, client, models.KindPortrait)

	job, err := eng.Submit(context.Background(), SubmitRequest{
		Kind:   models.KindPortrait,
		Target: models.TargetEntity{ShowID: "show_a", CharacterID: "char_1"},
		Params: models.GenerationParams{Prompt: "portrait of Ada"},
	})
	require.NoError(t, err)

	var final *models.GenerationJob
	require.Eventually(t, func() bool {
		final = reg.Get(job.Key())
		return final != nil && final.Status == models.StatusSucceeded
	}, 5*time.Second, 2*time.Millisecond)

	assert.Equal(t, 3, final.Attempts)
	assert.Equal(t, 3, client.attempts())
}

// The same failure sequence under a ceiling of two stops after the
// second attempt and reports the failure.
func TestRetryCeilingExhausted(t *testing.T) {
	storage := newFakeStorage()
	seededShow(t, storage)

	failed := interfaces.ProviderJobState{Status: models.ProviderJobFailed, Error: "transient overload"}
	client := &mockClient{id: "mock", scripts: []attemptScript{
		{pollStates: []interfaces.ProviderJobState{failed}},
		{pollStates: []interfaces.ProviderJobState{failed}},
		{pollStates: []interfaces.ProviderJobState{succeededState("never reached")}},
	}}
	eng, reg := newTestEngine(t, testConfig(2), storage, client, models.KindPortrait)

	job, err := eng.Submit(context.Background(), SubmitRequest{
		Kind:   models.KindPortrait,
		Target: models.TargetEntity{ShowID: "show_a", CharacterID: "char_1"},
		Params: models.GenerationParams{Prompt: "portrait of Ada"},
	})
	require.NoError(t, err)

	final := waitTerminal(t, reg, job.Key())
	assert.Equal(t, models.StatusFailed, final.Status)
	assert.Equal(t, models.ErrorKindProvider, final.ErrorKind)
	assert.Equal(t, 2, final.Attempts)
	assert.Equal(t, 2, client.attempts())
	assert.Contains(t, final.Error, "transient overload")
}

// An unresolvable provider response is a result format error, never an
// empty-locator success.
func TestEmptyResultIsFormatError(t *testing.T) {
	storage := newFakeStorage()
	seededShow(t, storage)

	client := &mockClient{id: "mock", scripts: []attemptScript{{
		pollStates: []interfaces.ProviderJobState{{
			Status: models.ProviderJobSucceeded,
			Result: normalize.WrapperResult{},
		}},
	}}}
	eng, reg := newTestEngine(t, testConfig(3), storage, client, models.KindPortrait)

	job, err := eng.Submit(context.Background(), SubmitRequest{
		Kind:   models.KindPortrait,
		Target: models.TargetEntity{ShowID: "show_a", CharacterID: "char_1"},
		Params: models.GenerationParams{Prompt: "portrait of Ada"},
	})
	require.NoError(t, err)

	final := waitTerminal(t, reg, job.Key())
	assert.Equal(t, models.StatusFailed, final.Status)
	assert.Equal(t, models.ErrorKindResultFormat, final.ErrorKind)
	assert.Empty(t, final.ResultLocator)
	assert.Equal(t, 1, client.attempts(), "format errors must not trigger resubmission")
}

// A provider that never finishes hits the poll ceiling and the job is
// forced to a timeout failure.
func TestPollCeilingForcesTimeout(t *testing.T) {
	storage := newFakeStorage()
	seededShow(t, storage)

	running := interfaces.ProviderJobState{Status: models.ProviderJobRunning}
	client := &mockClient{id: "mock", scripts: []attemptScript{
		{pollStates: []interfaces.ProviderJobState{running}},
	}}
	cfg := testConfig(1)
	cfg.Engine.MaxPollAttempts = 3
	eng, reg := newTestEngine(t, cfg, storage, client, models.KindPortrait)

	job, err := eng.Submit(context.Background(), SubmitRequest{
		Kind:   models.KindPortrait,
		Target: models.TargetEntity{ShowID: "show_a", CharacterID: "char_1"},
		Params: models.GenerationParams{Prompt: "portrait of Ada"},
	})
	require.NoError(t, err)

	final := waitTerminal(t, reg, job.Key())
	assert.Equal(t, models.StatusFailed, final.Status)
	assert.Equal(t, models.ErrorKindTimeout, final.ErrorKind)
}

// Seed-set success parses the text result into characters on the
// snapshot instead of recording a locator.
func TestSeedSetPopulatesCharacters(t *testing.T) {
	storage := newFakeStorage()
	snapshot := models.NewShowSnapshot("show_a", "Test Show")
	require.NoError(t, storage.CreateSnapshot(context.Background(), snapshot))

	seedJSON := `Here are the characters:
[
  {"name": "Ada", "logline": "A relentless engineer"},
  {"name": "Lin", "logline": "A cautious navigator"}
]`
	locator := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte(seedJSON))

	client := &mockClient{id: "mock", scripts: []attemptScript{{
		pollStates: []interfaces.ProviderJobState{succeededState(locator)},
	}}}
	eng, reg := newTestEngine(t, testConfig(1), storage, client, models.KindCharacterSeedSet)

	job, err := eng.Submit(context.Background(), SubmitRequest{
		Kind:   models.KindCharacterSeedSet,
		Target: models.TargetEntity{ShowID: "show_a"},
		Params: models.GenerationParams{Prompt: "cast a crew of two"},
	})
	require.NoError(t, err)

	final := waitTerminal(t, reg, job.Key())
	require.Equal(t, models.StatusSucceeded, final.Status)

	updated, err := storage.GetSnapshot(context.Background(), "show_a")
	require.NoError(t, err)
	require.Len(t, updated.Characters, 2)
	assert.Equal(t, "Ada", updated.Characters[0].Name)
	assert.Equal(t, "Lin", updated.Characters[1].Name)
	assert.NotEmpty(t, updated.Characters[0].CharacterID)
	assert.NotEqual(t, updated.Characters[0].CharacterID, updated.Characters[1].CharacterID)
}

// SubmitBatch fans one request across every character with the prompt
// template expanded per seed.
func TestSubmitBatchFansOut(t *testing.T) {
	storage := newFakeStorage()
	seededShow(t, storage)

	client := &mockClient{id: "mock", scripts: []attemptScript{
		{pollStates: []interfaces.ProviderJobState{succeededState("u1")}},
		{pollStates: []interfaces.ProviderJobState{succeededState("u2")}},
	}}
	eng, reg := newTestEngine(t, testConfig(1), storage, client, models.KindPortrait)

	jobs, err := eng.SubmitBatch(context.Background(), BatchRequest{
		ShowID:         "show_a",
		Kind:           models.KindPortrait,
		PromptTemplate: "portrait of {{name}}",
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	for _, job := range jobs {
		final := waitTerminal(t, reg, job.Key())
		assert.Equal(t, models.StatusSucceeded, final.Status)
	}

	updated, err := storage.GetSnapshot(context.Background(), "show_a")
	require.NoError(t, err)
	assert.Len(t, updated.Portraits, 2)
}

func TestSubmitBatchRejectsSingletonKind(t *testing.T) {
	storage := newFakeStorage()
	seededShow(t, storage)
	client := &mockClient{id: "mock", scripts: []attemptScript{{pollStates: []interfaces.ProviderJobState{succeededState("u")}}}}
	eng, _ := newTestEngine(t, testConfig(1), storage, client, models.KindPoster)

	_, err := eng.SubmitBatch(context.Background(), BatchRequest{
		ShowID:         "show_a",
		Kind:           models.KindPoster,
		PromptTemplate: "poster",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestDismissRemovesTerminalOnly(t *testing.T) {
	storage := newFakeStorage()
	seededShow(t, storage)
	client := &mockClient{id: "mock", scripts: []attemptScript{{
		pollStates: []interfaces.ProviderJobState{succeededState("u")},
	}}}
	eng, reg := newTestEngine(t, testConfig(1), storage, client, models.KindPortrait)

	job, err := eng.Submit(context.Background(), SubmitRequest{
		Kind:   models.KindPortrait,
		Target: models.TargetEntity{ShowID: "show_a", CharacterID: "char_1"},
		Params: models.GenerationParams{Prompt: "portrait of Ada"},
	})
	require.NoError(t, err)

	waitTerminal(t, reg, job.Key())
	assert.True(t, eng.Dismiss(job.Key()))
	assert.Nil(t, reg.Get(job.Key()))
	assert.False(t, eng.Dismiss(job.Key()))
}
