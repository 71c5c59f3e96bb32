// -----------------------------------------------------------------------
// Application wiring - builds every component in dependency order and
// owns the lifecycle of all background work
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/compositor"
	"github.com/ternarybob/backlot/internal/engine"
	"github.com/ternarybob/backlot/internal/events"
	"github.com/ternarybob/backlot/internal/handlers"
	"github.com/ternarybob/backlot/internal/models"
	"github.com/ternarybob/backlot/internal/providers"
	"github.com/ternarybob/backlot/internal/registry"
	"github.com/ternarybob/backlot/internal/scheduler"
	badgerstore "github.com/ternarybob/backlot/internal/storage/badger"
)

// App holds all application components and dependencies. It is the
// supervisor for background work: every goroutine the engine or
// scheduler spawns is bound to the app's context and drained on Close.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	DB          *badgerstore.BadgerDB
	ShowStorage *badgerstore.ShowStorage
	Registry    *registry.TaskRegistry
	Providers   *providers.Registry
	Engine      *engine.Engine
	Hub         *events.Hub
	Scheduler   *scheduler.Scheduler
	Compositor  *compositor.Compositor

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	ShowHandler     *handlers.ShowHandler
	GenerateHandler *handlers.GenerateHandler
	JobHandler      *handlers.JobHandler
}

// New initializes the application with all dependencies.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	db, err := badgerstore.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.DB = db
	app.ShowStorage = badgerstore.NewShowStorage(db, logger)

	app.Registry = registry.New()
	app.Hub = events.NewHub(cfg.WebSocket, logger)
	app.Compositor = compositor.New(cfg.Compositor, logger)

	if err := app.initProviders(); err != nil {
		db.Close()
		cancel()
		return nil, err
	}

	app.Engine = engine.New(cfg, logger, app.Registry, app.ShowStorage, app.Providers, app.Hub)
	app.Engine.Start(ctx)

	app.Scheduler = scheduler.New(cfg, logger, app.Registry, db)
	if err := app.Scheduler.Start(); err != nil {
		app.Engine.Stop()
		db.Close()
		cancel()
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	app.APIHandler = handlers.NewAPIHandler(app.Providers)
	app.ShowHandler = handlers.NewShowHandler(app.ShowStorage, app.Registry, app.Compositor)
	app.GenerateHandler = handlers.NewGenerateHandler(app.Engine)
	app.JobHandler = handlers.NewJobHandler(app.Registry, app.Engine)

	logger.Info().
		Int("providers", len(app.Providers.Providers())).
		Msg("Application initialization complete")

	return app, nil
}

// initProviders registers every configured generation back end and
// routes job kinds to them. A provider without credentials is skipped
// with a warning; its kinds then fail submission with a configuration
// error instead of failing startup.
func (a *App) initProviders() error {
	a.Providers = providers.NewRegistry()

	if a.Config.Providers.Claude.APIKey != "" {
		claude, err := providers.NewClaudeProvider(&a.Config.Providers.Claude, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize claude provider: %w", err)
		}
		a.Providers.Register(claude,
			models.KindShowBlueprint,
			models.KindCharacterSeedSet,
			models.KindCharacterDossier,
		)
	} else {
		a.Logger.Warn().Msg("Claude API key not configured, text generation disabled")
	}

	if a.Config.Providers.Gemini.APIKey != "" {
		image, err := providers.NewGeminiImageProvider(a.ctx, &a.Config.Providers.Gemini, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize gemini image provider: %w", err)
		}
		a.Providers.Register(image,
			models.KindPortrait,
			models.KindPoster,
			models.KindLibraryPoster,
		)

		veo, err := providers.NewVeoProvider(a.ctx, &a.Config.Providers.Gemini, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize veo provider: %w", err)
		}
		a.Providers.Register(veo,
			models.KindVideo,
			models.KindTrailer,
		)
	} else {
		a.Logger.Warn().Msg("Gemini API key not configured, image and video generation disabled")
	}

	return nil
}

// Close shuts down background work and releases storage. Order
// matters: stop producers before closing the store they write to.
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application")

	a.Scheduler.Stop()
	a.cancelCtx()
	a.Engine.Stop()

	if err := a.DB.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Failed to close database")
		return err
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
