// Package mocks provides mock implementations for testing the backtest orchestrator.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockBacktestRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(bt, nil)
package mocks

// Generate mock for BacktestRepository interface from internal/core package.
// This creates MockBacktestRepository with methods for all BacktestRepository interface methods:
// Create, GetByID, List, AppendLog, Complete, Fail, Stats
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=backtest_repository_mock.go github.com/quantdesk/backtest-go/internal/core BacktestRepository

// Generate mock for CacheRepository interface from internal/core package.
// This creates MockCacheRepository with methods for all CacheRepository interface methods:
// Get, Set, Delete, Health
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=cache_repository_mock.go github.com/quantdesk/backtest-go/internal/core CacheRepository

// Generate mocks for EngineRunner and EngineHandle interfaces from internal/core package.
// This creates MockEngineRunner (Start) and MockEngineHandle (Events, Kill).
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=engine_runner_mock.go github.com/quantdesk/backtest-go/internal/core EngineRunner,EngineHandle
