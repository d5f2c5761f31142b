// Package service implements the business logic of the backtest orchestrator.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quantdesk/backtest-go/internal/core"
	"github.com/quantdesk/backtest-go/internal/data"
	"github.com/quantdesk/backtest-go/internal/domain/model"
	"github.com/quantdesk/backtest-go/internal/engine"
	apperrors "github.com/quantdesk/backtest-go/internal/errors"
)

const (
	defaultSnapshotTTL = 10 * time.Minute
	snapshotKeyPrefix  = "backtest:snapshot:"

	canceledMessage   = "backtest canceled"
	parseFailMessage  = "failed to parse engine output"
	launchFailMessage = "failed to launch engine"
)

// ErrAlreadyFinished is returned by Cancel when the backtest has already reached a terminal status.
var ErrAlreadyFinished = errors.New("backtest already finished")

// BacktestServiceOptions groups dependencies for BacktestService.
type BacktestServiceOptions struct {
	Repo    core.BacktestRepository // Required: backtest record store
	Engine  core.EngineRunner       // Required: engine process launcher
	Cache   core.CacheRepository    // Optional: terminal snapshot cache
	Logger  *slog.Logger            // Optional: structured logger
	Extract engine.ExtractPaths     // Optional: override payload field expressions
	// SnapshotTTL bounds how long terminal snapshots stay cached.
	SnapshotTTL time.Duration
}

// BacktestService orchestrates backtest runs.
//
// Submit is fire-and-forget: it creates the record, launches the engine, and
// hands the run to a dedicated goroutine that streams output into the log and
// performs the single terminal transition when the process exits. Callers
// observe progress by polling Get and List.
type BacktestService struct {
	repo        core.BacktestRepository
	engine      core.EngineRunner
	cache       core.CacheRepository
	logger      *slog.Logger
	extract     engine.ExtractPaths
	snapshotTTL time.Duration

	mu       sync.Mutex
	handles  map[string]core.EngineHandle
	canceled map[string]bool

	wg sync.WaitGroup
}

// NewBacktestService constructs a new BacktestService.
func NewBacktestService(opts BacktestServiceOptions) (*BacktestService, error) {
	if opts.Repo == nil {
		return nil, errors.New("BacktestRepository is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("EngineRunner is required")
	}

	// Fail fast on bad extraction expressions instead of on the first run.
	if _, err := engine.NewAggregator(engine.AggregatorOptions{Extract: opts.Extract}); err != nil {
		return nil, fmt.Errorf("validate extraction expressions: %w", err)
	}

	ttl := opts.SnapshotTTL
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "backtest_service")
	}

	return &BacktestService{
		repo:        opts.Repo,
		engine:      opts.Engine,
		cache:       opts.Cache,
		logger:      logger,
		extract:     opts.Extract,
		snapshotTTL: ttl,
		handles:     make(map[string]core.EngineHandle),
		canceled:    make(map[string]bool),
	}, nil
}

// MustNewBacktestService constructs a new BacktestService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewBacktestService(opts BacktestServiceOptions) *BacktestService {
	svc, err := NewBacktestService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create BacktestService: %v", err))
	}
	return svc
}

// Submit validates the request, creates the backtest record in running
// status, launches the engine, and returns without waiting for the run.
//
// Errors before the record exists propagate to the caller. Once the record is
// created, every later problem resolves internally into a failed status
// instead of surfacing here.
func (s *BacktestService) Submit(
	ctx context.Context,
	req *model.CreateBacktestRequest,
) (*model.Backtest, error) {
	if req == nil {
		return nil, apperrors.Validation("create backtest request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid backtest request")
	}

	bt, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create backtest: %w", err)
	}

	handle, err := s.engine.Start(ctx, core.LaunchSpec{
		BacktestID: bt.ID,
		Config:     req.Config,
	})
	if err != nil {
		// The record exists; resolve the launch problem through the failure path.
		s.finalizeFail(context.WithoutCancel(ctx), bt.ID, launchFailMessage+": "+err.Error())
		if refreshed, getErr := s.repo.GetByID(ctx, bt.ID); getErr == nil {
			return refreshed, nil
		}
		return bt, nil
	}

	s.mu.Lock()
	s.handles[bt.ID] = handle
	s.mu.Unlock()

	s.wg.Add(1)
	go s.watch(bt.ID, handle)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "backtest submitted",
			"id", bt.ID,
			"instrument", bt.Instrument,
			"strategy", bt.StrategyName,
		)
	}

	return bt, nil
}

// watch consumes one run's event stream and performs its terminal transition.
// It runs detached from the submitting request context: the run outlives the request.
func (s *BacktestService) watch(id string, handle core.EngineHandle) {
	defer s.wg.Done()
	defer s.release(id)

	ctx := context.Background()
	agg := engine.MustNewAggregator(engine.AggregatorOptions{Extract: s.extract})

	exitCode := 0
	for ev := range handle.Events() {
		switch ev.Kind {
		case core.EngineEventStdout, core.EngineEventStderr:
			agg.Feed(ev.Kind, ev.Chunk)
			if err := s.repo.AppendLog(ctx, id, ev.Chunk); err != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "append backtest log failed", "id", id, "error", err)
			}
		case core.EngineEventExit:
			exitCode = ev.ExitCode
		}
	}

	s.finalize(ctx, id, agg, exitCode)
}

// finalize performs the run's single terminal transition from the parsed output.
func (s *BacktestService) finalize(ctx context.Context, id string, agg *engine.Aggregator, exitCode int) {
	result, err := agg.Finalize(exitCode)
	if err != nil {
		msg := parseFailMessage
		if s.wasCanceled(id) {
			msg = canceledMessage
		}
		var parseErr *engine.ParseError
		if errors.As(err, &parseErr) && s.logger != nil {
			s.logger.DebugContext(ctx, "engine output unparseable",
				"id", id,
				"exit_code", parseErr.ExitCode,
				"log_bytes", len(parseErr.Log),
			)
		}
		s.finalizeFail(ctx, id, msg)
		return
	}

	if !result.Success {
		s.finalizeFail(ctx, id, result.Message)
		return
	}

	applied, completeErr := s.repo.Complete(ctx, core.CompleteBacktestParams{ID: id, Result: result})
	if completeErr != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "complete backtest failed", "id", id, "error", completeErr)
		}
		s.finalizeFail(ctx, id, "failed to persist backtest result")
		return
	}
	if !applied {
		// Already terminal; a duplicate delivery is a no-op.
		if s.logger != nil {
			s.logger.DebugContext(ctx, "backtest already finalized", "id", id)
		}
		return
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "backtest completed", "id", id, "exit_code", exitCode)
	}
	s.cacheSnapshot(ctx, id)
}

// finalizeFail transitions a run to failed, tolerating already-terminal records.
func (s *BacktestService) finalizeFail(ctx context.Context, id, msg string) {
	if msg == "" {
		msg = "backtest failed"
	}

	applied, err := s.repo.Fail(ctx, core.FailBacktestParams{ID: id, ErrorMsg: msg})
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "fail backtest failed", "id", id, "error", err)
		}
		return
	}
	if !applied {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "backtest already finalized", "id", id)
		}
		return
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "backtest failed", "id", id, "error", msg)
	}
	s.cacheSnapshot(ctx, id)
}

// cacheSnapshot stores a terminal record in the cache for poll traffic.
func (s *BacktestService) cacheSnapshot(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}

	bt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return
	}
	if !bt.Status.Terminal() {
		return
	}

	encoded, err := json.Marshal(bt)
	if err != nil {
		return
	}
	if setErr := s.cache.Set(ctx, snapshotKeyPrefix+id, encoded, s.snapshotTTL); setErr != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "cache backtest snapshot failed", "id", id, "error", setErr)
	}
}

// Get returns a backtest by ID, serving terminal runs from the cache when possible.
func (s *BacktestService) Get(ctx context.Context, id string) (*model.Backtest, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, snapshotKeyPrefix+id); err == nil && len(cached) > 0 {
			var bt model.Backtest
			if unmarshalErr := json.Unmarshal(cached, &bt); unmarshalErr == nil {
				return &bt, nil
			}
		}
	}

	bt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrBacktestNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get backtest %s: %w", id, err)
	}

	if bt.Status.Terminal() {
		s.cacheTerminal(ctx, bt)
	}
	return bt, nil
}

func (s *BacktestService) cacheTerminal(ctx context.Context, bt *model.Backtest) {
	if s.cache == nil {
		return
	}
	encoded, err := json.Marshal(bt)
	if err != nil {
		return
	}
	if setErr := s.cache.Set(ctx, snapshotKeyPrefix+bt.ID, encoded, s.snapshotTTL); setErr != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "cache backtest snapshot failed", "id", bt.ID, "error", setErr)
	}
}

// List returns backtests with optional status filtering and pagination.
func (s *BacktestService) List(
	ctx context.Context,
	opts model.BacktestListOptions,
) ([]*model.Backtest, error) {
	backtests, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list backtests: %w", err)
	}
	return backtests, nil
}

// Stats returns counts of backtests in each status.
func (s *BacktestService) Stats(ctx context.Context) (*model.BacktestStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get backtest stats: %w", err)
	}
	return stats, nil
}

// Cancel requests best-effort termination of a running backtest. The killed
// process resolves through the normal failure path; there is no separate
// canceled status.
func (s *BacktestService) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	handle, ok := s.handles[id]
	if ok {
		s.canceled[id] = true
	}
	s.mu.Unlock()

	if ok {
		if err := handle.Kill(); err != nil {
			return fmt.Errorf("cancel backtest %s: %w", id, err)
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "backtest cancel requested", "id", id)
		}
		return nil
	}

	// No live process (e.g. the orchestrator restarted); resolve the record directly.
	bt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if bt.Status.Terminal() {
		return ErrAlreadyFinished
	}

	s.finalizeFail(context.WithoutCancel(ctx), id, canceledMessage)
	return nil
}

func (s *BacktestService) wasCanceled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled[id]
}

func (s *BacktestService) release(id string) {
	s.mu.Lock()
	delete(s.handles, id)
	delete(s.canceled, id)
	s.mu.Unlock()
}

// Running returns the number of runs this instance is currently watching.
func (s *BacktestService) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Drain waits for in-flight run watchers to finish or the context to expire.
// Engine processes themselves are not waited on beyond their exit events.
func (s *BacktestService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain backtest watchers: %w", ctx.Err())
	}
}
