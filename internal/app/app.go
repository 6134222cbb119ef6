package app

import (
	"context"
	"fmt"
	"net/http"

	"emojid/internal/reconciler"
	"emojid/pkg/captioner"
	"emojid/pkg/config"
	"emojid/pkg/registry"
	"emojid/pkg/state"
	"emojid/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg       *config.Config
	paths     state.Paths
	reg       *registry.Registry
	svc       captioner.Service
	rec       *reconciler.Reconciler
	srv       *http.Server
	version   string
	commit    string
	buildDate string
}

// New initializes resources that do not require a running context: the
// directory layout, the record store and the registry. It does not start
// the reconciler or the HTTP server; call Run to start those and block
// until shutdown.
func New(cfg *config.Config, version, commit, buildDate string) (*App, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	paths := state.DerivePaths(cfg.Storage.DataDir)
	if err := state.EnsureStateDirs(paths); err != nil {
		return nil, fmt.Errorf("failed to prepare data dirs: %w", err)
	}

	st := store.NewRecordStore(paths.Records)
	reg := registry.New(st, paths, cfg.Emoji.MaxRegistered, cfg.Emoji.ReplaceAtCapacity)
	reg.Initialize()

	svc := captioner.NewClient(cfg.Captioner)
	rec := reconciler.New(reg, svc, paths, cfg.Emoji)

	return &App{
		cfg:       cfg,
		paths:     paths,
		reg:       reg,
		svc:       svc,
		rec:       rec,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
	}, nil
}

// Registry exposes the registry, mainly for tests and admin tooling.
func (a *App) Registry() *registry.Registry { return a.reg }

// Run starts the reconciler and the HTTP server and blocks until ctx is
// canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	cancelRec, err := a.rec.Start(ctx)
	if err != nil {
		return err
	}
	defer cancelRec()

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdownHTTP()
		return nil
	case err := <-errCh:
		return err
	}
}
