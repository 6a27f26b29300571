package cmd

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/task-roster/internal/config"
	"github.com/t77yq/task-roster/internal/scheduler"
	"github.com/t77yq/task-roster/internal/service"
	"github.com/t77yq/task-roster/internal/storage"
)

// app holds what every subcommand needs: settings, a logger and the store
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *storage.Store

	nc        *nats.Conn
	publisher *service.NATSPublisher
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger = logger.With(zap.String("app", cfg.App.Name))

	store, err := storage.Open(storage.Options{
		Path:      cfg.Database.Path,
		TxTimeout: cfg.Database.TxTimeout,
	}, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: store}, nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// events returns the publisher for domain events: JetStream when enabled,
// otherwise the log
func (a *app) events() (scheduler.Publisher, error) {
	if !a.cfg.NATS.Enabled {
		return service.NewLogPublisher(a.logger), nil
	}

	nc, js, err := service.Connect(a.cfg.NATS.URL, a.cfg.NATS.ConnectTimeout, a.logger)
	if err != nil {
		return nil, err
	}
	if err := service.EnsureStream(js, a.cfg.NATS.Stream, a.logger); err != nil {
		nc.Close()
		return nil, err
	}

	a.logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	a.nc = nc
	a.publisher = service.NewNATSPublisher(js, a.logger)
	return a.publisher, nil
}

// services wires an engine publishing to the configured events sink and the
// task service on top of it
func (a *app) services() (*scheduler.Engine, *service.TaskService, error) {
	events, err := a.events()
	if err != nil {
		return nil, nil, err
	}
	engine := scheduler.NewEngine(a.store, a.logger, scheduler.WithPublisher(events))
	return engine, service.NewTaskService(engine, a.logger), nil
}

func (a *app) extender(engine *scheduler.Engine) (*scheduler.HorizonExtender, error) {
	return scheduler.NewHorizonExtender(engine, scheduler.ExtenderConfig{
		StaleAfter:    a.cfg.Extender.StaleAfter,
		RetryAttempts: a.cfg.Extender.RetryAttempts,
		RetryDelay:    a.cfg.Extender.RetryDelay,
	}, a.logger)
}

// close waits for outstanding event acks, then releases connections
func (a *app) close(ctx context.Context) {
	if a.publisher != nil {
		if err := a.publisher.Flush(ctx); err != nil {
			a.logger.Warn("Unacknowledged events at shutdown", zap.Error(err))
		}
	}
	if a.nc != nil {
		a.nc.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("Failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
