package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"podbay/internal/applock"
	"podbay/internal/assetstore"
	"podbay/internal/config"
	"podbay/internal/downloads"
	"podbay/internal/logging"
	"podbay/internal/metadata"
	"podbay/internal/notifications"
	"podbay/internal/observer"
	"podbay/internal/reconcile"
	"podbay/internal/transcription"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// app bundles the wired services a command operates on. Mutating commands
// also hold the process lock so two podbay invocations cannot race on the
// stores.
type app struct {
	cfg           *config.Config
	logger        *slog.Logger
	store         *metadata.Store
	assets        *assetstore.Store
	bus           observer.Bus
	downloads     *downloads.Coordinator
	transcription *transcription.Coordinator
	reconcile     *reconcile.Service
	notifier      notifications.Service

	lock *applock.Lock
}

// openApp wires the full service graph. When exclusive is true the data-dir
// lock is taken first; read-only commands pass false.
func (c *commandContext) openApp(ctx context.Context, exclusive bool) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, err
	}

	var lock *applock.Lock
	if exclusive {
		lock, err = applock.Acquire(cfg.LockPath())
		if err != nil {
			return nil, err
		}
	}

	store, err := metadata.Open(ctx, cfg.Paths.Database)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	assets := assetstore.New(cfg)
	bus := observer.New()
	engine := transcription.NewCLIEngine(cfg, assets.ModelDir(), logger)

	return &app{
		cfg:           cfg,
		logger:        logger,
		store:         store,
		assets:        assets,
		bus:           bus,
		downloads:     downloads.New(cfg, store, assets, bus, logger),
		transcription: transcription.New(cfg, store, assets, engine, bus, logger),
		reconcile:     reconcile.New(store, assets, bus, logger),
		notifier:      notifications.NewService(cfg),
		lock:          lock,
	}, nil
}

func (a *app) Close() {
	if a == nil {
		return
	}
	_ = a.store.Close()
	_ = a.lock.Unlock()
}
