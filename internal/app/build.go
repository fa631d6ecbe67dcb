package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ent0n29/mockinterview/internal/completion"
	"github.com/ent0n29/mockinterview/internal/config"
	"github.com/ent0n29/mockinterview/internal/evaluation"
	"github.com/ent0n29/mockinterview/internal/httpapi"
	"github.com/ent0n29/mockinterview/internal/interview"
	"github.com/ent0n29/mockinterview/internal/observability"
	"github.com/ent0n29/mockinterview/internal/store"
)

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Interviews *interview.Service
	Metrics    *observability.Metrics
	Store      store.Store
	// Backend is the resolved completion backend name.
	Backend string

	// Cleanup should be called on shutdown to release external resources (DB pools, sqlite handles).
	Cleanup func() error
}

// Build wires the service graph. metrics may be nil to register on the
// default Prometheus registry under cfg.MetricsNamespace.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics(cfg.MetricsNamespace)
	}

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}

	completionCfg := cfg.CompletionConfig()
	backend, err := completion.NewBackend(ctx, completionCfg)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("completion backend init failed: %w", err)
	}
	if backend.Name() == "mock" && cfg.CompletionProvider == "auto" {
		logger.Warn("no completion api key configured, using the mock backend")
	}

	gateway := completion.NewGateway(backend, completionCfg, logger, metrics)
	evaluator := evaluation.New(gateway, logger, metrics)
	interviews := interview.New(st, gateway, evaluator, logger, interview.WithObserver(metrics))
	api := httpapi.New(cfg, interviews, metrics, logger)

	logger.Info("service graph built",
		zap.String("store", st.Backend()),
		zap.String("completion_backend", backend.Name()),
		zap.String("model", cfg.CompletionModel),
	)

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Interviews: interviews,
		Metrics:    metrics,
		Store:      st,
		Backend:    backend.Name(),
		Cleanup:    st.Close,
	}, nil
}
