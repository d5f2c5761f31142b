package bootstrap

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/quantdesk/backtest-go/config"
	"github.com/quantdesk/backtest-go/internal/data"
	"github.com/quantdesk/backtest-go/internal/engine"
	"github.com/quantdesk/backtest-go/internal/service"
	"github.com/redis/go-redis/v9"
)

// ServiceContainer holds all application services and shared repositories.
type ServiceContainer struct {
	Backtests *service.BacktestService
	Repo      *data.BacktestRepo
	Cache     *data.RedisCacheRepo
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildServices constructs repositories, the engine runner, and the
// orchestration service from infrastructure handles.
func BuildServices(deps ServiceDeps) (ServiceContainer, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
		cfg.Sanitize()
	}

	repo := data.NewBacktestRepo(deps.DB, data.RepoConfig{Logger: deps.Logger})

	var cache *data.RedisCacheRepo
	if deps.RedisClient != nil {
		cache = data.NewRedisCacheRepo(deps.RedisClient)
	}

	runner, err := engine.NewProcessRunner(engine.ProcessRunnerOptions{
		Interpreter: cfg.Engine.Interpreter,
		BridgeDir:   cfg.Engine.BridgeDir,
		BridgeCode:  cfg.Engine.BridgeCode,
		Logger:      deps.Logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build engine runner: %w", err)
	}

	svcOpts := service.BacktestServiceOptions{
		Repo:        repo,
		Engine:      runner,
		Logger:      deps.Logger,
		Extract:     extractPathsFromConfig(cfg.Engine),
		SnapshotTTL: cfg.Cache.SnapshotTTL,
	}
	if cache != nil {
		svcOpts.Cache = cache
	}

	svc, err := service.NewBacktestService(svcOpts)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build backtest service: %w", err)
	}

	return ServiceContainer{
		Backtests: svc,
		Repo:      repo,
		Cache:     cache,
	}, nil
}

// extractPathsFromConfig maps env overrides onto the extraction expressions;
// empty fields fall back to the aggregator defaults.
func extractPathsFromConfig(cfg config.EngineConfig) engine.ExtractPaths {
	return engine.ExtractPaths{
		EndingBalance: cfg.EndingBalancePath,
		TotalTrades:   cfg.TotalTradesPath,
		WinRate:       cfg.WinRatePath,
		ProfitLoss:    cfg.ProfitLossPath,
		ErrorMessage:  cfg.ErrorMessagePath,
	}
}
