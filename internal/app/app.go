package app

import (
	"context"
	"errors"
	"io"

	"github.com/go-redis/redis"
	"github.com/xpanvictor/avatarchat/internal/config"
	"github.com/xpanvictor/avatarchat/internal/constants/prompts"
	"github.com/xpanvictor/avatarchat/internal/database"
	"github.com/xpanvictor/avatarchat/internal/domains/session"
	"github.com/xpanvictor/avatarchat/internal/domains/sys_manager"
	"github.com/xpanvictor/avatarchat/internal/domains/sys_manager/pipeline"
	"github.com/xpanvictor/avatarchat/internal/repository/archive"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
)

// App represents the application with all its dependencies
type App struct {
	Config        *config.Settings
	Logger        *Logger.Logger
	RC            *redis.Client
	Store         session.Store
	Archive       archive.Repository
	Orchestrator  *pipeline.Orchestrator
	SystemManager *sys_manager.SystemManager

	closers []io.Closer
}

// NewApp wires the store, the model handlers and the orchestrator. Handlers
// that cannot be reached start out unavailable instead of failing startup.
func NewApp(ctx context.Context, cfg *config.Settings, logger *Logger.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}
	a.setupArchive()

	a.Store = session.NewStore(cfg.Session, logger.Named("session"))

	handlers, closers := NewHandlerFactory(cfg, logger).Build(ctx)
	a.closers = append(a.closers, closers...)

	a.Orchestrator = pipeline.New(
		handlers,
		a.Store,
		pipeline.ConfigFromSettings(cfg, prompts.SystemPrompt(cfg.LLM.SystemPrompt)),
		logger.Named("pipeline"),
		pipeline.WithPool(pipeline.NewPool(cfg.Pipeline.Workers)),
		pipeline.WithRecorder(a.Archive),
	)

	a.SystemManager = sys_manager.NewSystemManager(logger.Named("sys_manager"))
	sweep := sys_manager.NewSessionSweepTask(a.Store, logger, cfg.Session.SweepInterval)
	if err := a.SystemManager.RegisterTask(sweep); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) setupArchive() {
	a.Archive = archive.NewNop()
	if !a.Config.Archive.Enabled {
		return
	}
	rc, err := database.NewRedis(a.Config.Archive.Redis)
	if err != nil {
		a.Logger.Warnf("transcript archive disabled: %v", err)
		return
	}
	a.RC = rc
	a.Archive = archive.NewRedisRepo(rc, a.Config.Archive.Redis.TTL)
	a.closers = append(a.closers, rc)
	a.Logger.Infof("transcript archive on redis %s", a.Config.Archive.Redis.Addr)
}

// Start launches background tasks.
func (a *App) Start() error {
	return a.SystemManager.Start()
}

// Close stops background work, ends every session and releases handlers in
// reverse creation order.
func (a *App) Close() error {
	var errs []error
	if a.SystemManager != nil && a.SystemManager.IsRunning() {
		errs = append(errs, a.SystemManager.Stop())
	}
	if a.Store != nil {
		if n := a.Store.EndAll(); n > 0 {
			a.Logger.Infof("ended %d sessions on shutdown", n)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
