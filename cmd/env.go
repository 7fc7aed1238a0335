package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/airqa/inspect-cli/internal/consensus"
	"github.com/airqa/inspect-cli/internal/failover"
	"github.com/airqa/inspect-cli/internal/health"
	"github.com/airqa/inspect-cli/internal/points"
	"github.com/airqa/inspect-cli/internal/provider"
	"github.com/airqa/inspect-cli/internal/resolve"
	"github.com/airqa/inspect-cli/internal/store"
)

// appEnv holds the wired services shared by the commands.
type appEnv struct {
	Store        store.Store
	Resolver     *resolve.Resolver
	Monitor      *health.Monitor
	Factory      *provider.Factory
	Failover     *failover.Coordinator
	Points       *points.Service
	Orchestrator *consensus.Orchestrator
}

func initEnv(ctx context.Context) (*appEnv, error) {
	log := zap.L()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	resolver := resolve.New(st, cfg, log)
	monitor := health.NewMonitor(st, log,
		health.WithWindow(cfg.Health.Window()),
		health.WithErrorThreshold(cfg.Health.ErrorThreshold))
	factory := provider.NewFactory(resolver, log)
	coord := failover.New(st, resolver, monitor, cfg, provider.ProbeConfig, log)
	pts := points.NewService(st, log)

	return &appEnv{
		Store:        st,
		Resolver:     resolver,
		Monitor:      monitor,
		Factory:      factory,
		Failover:     coord,
		Points:       pts,
		Orchestrator: consensus.NewOrchestrator(factory, coord, monitor, pts, log),
	}, nil
}

func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}
