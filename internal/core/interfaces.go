package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quantdesk/backtest-go/internal/domain/model"
)

// This file contains repository and runner interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and the data/engine layers.
// Service implementations should depend on these interfaces, not concrete implementations.

// BacktestRepository defines the interface for backtest data operations.
//
// Complete and Fail return false without error when the record was not in
// running status; callers treat that as an already-finalized run. AppendLog is
// similarly a no-op once the record is terminal, which keeps the log frozen.
type BacktestRepository interface {
	Create(ctx context.Context, req *model.CreateBacktestRequest) (*model.Backtest, error)
	GetByID(ctx context.Context, id string) (*model.Backtest, error)
	List(ctx context.Context, opts model.BacktestListOptions) ([]*model.Backtest, error)
	AppendLog(ctx context.Context, id, chunk string) error
	Complete(ctx context.Context, params CompleteBacktestParams) (bool, error)
	Fail(ctx context.Context, params FailBacktestParams) (bool, error)
	Stats(ctx context.Context) (*model.BacktestStats, error)
}

// CompleteBacktestParams groups parameters for BacktestRepository.Complete.
type CompleteBacktestParams struct {
	ID     string
	Result *model.EngineResult
}

// FailBacktestParams groups parameters for BacktestRepository.Fail.
type FailBacktestParams struct {
	ID       string
	ErrorMsg string
}

// CacheRepository defines the interface for cache operations.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) error
}

// EngineEventKind discriminates engine event stream entries.
type EngineEventKind string

const (
	// EngineEventStdout carries a chunk of engine standard output.
	EngineEventStdout EngineEventKind = "stdout"
	// EngineEventStderr carries a chunk of engine standard error.
	EngineEventStderr EngineEventKind = "stderr"
	// EngineEventExit is the final event of every run.
	EngineEventExit EngineEventKind = "exit"
)

// EngineEvent is one entry in a run's ordered event stream.
// Chunk is set for stdout/stderr events; ExitCode and Err for exit events.
type EngineEvent struct {
	Kind     EngineEventKind
	Chunk    string
	ExitCode int
	Err      error
}

// LaunchSpec describes one engine invocation.
type LaunchSpec struct {
	BacktestID string
	Config     json.RawMessage
}

// EngineHandle represents a launched engine process.
//
// Events delivers stdout, stderr, and exactly one trailing exit event in
// arrival order, then the channel is closed. Kill requests best-effort
// termination; the resulting non-zero exit still flows through Events.
type EngineHandle interface {
	Events() <-chan EngineEvent
	Kill() error
}

// EngineRunner launches backtest engine processes.
//
// Start never blocks on process completion. A process that cannot be launched
// at all still yields a handle whose stream reports the launch failure as an
// exit event, so every submission resolves through the same path.
type EngineRunner interface {
	Start(ctx context.Context, spec LaunchSpec) (EngineHandle, error)
}
