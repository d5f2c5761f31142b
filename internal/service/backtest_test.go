package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/quantdesk/backtest-go/internal/core"
	"github.com/quantdesk/backtest-go/internal/data"
	"github.com/quantdesk/backtest-go/internal/domain/model"
	"github.com/quantdesk/backtest-go/internal/engine"
	"github.com/quantdesk/backtest-go/internal/mocks"
)

func enginePathsWithBadWinRate() engine.ExtractPaths {
	return engine.ExtractPaths{WinRate: "stats.["}
}

// scriptedHandle is a controllable core.EngineHandle for driving run scenarios.
type scriptedHandle struct {
	events chan core.EngineEvent

	mu     sync.Mutex
	killed bool
}

func newScriptedHandle() *scriptedHandle {
	return &scriptedHandle{events: make(chan core.EngineEvent, 32)}
}

func (h *scriptedHandle) Events() <-chan core.EngineEvent { return h.events }

func (h *scriptedHandle) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = true
	return nil
}

func (h *scriptedHandle) wasKilled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.killed
}

func (h *scriptedHandle) stdout(chunk string) {
	h.events <- core.EngineEvent{Kind: core.EngineEventStdout, Chunk: chunk}
}

func (h *scriptedHandle) stderr(chunk string) {
	h.events <- core.EngineEvent{Kind: core.EngineEventStderr, Chunk: chunk}
}

func (h *scriptedHandle) exit(code int) {
	h.events <- core.EngineEvent{Kind: core.EngineEventExit, ExitCode: code}
	close(h.events)
}

// fakeRunner hands out pre-built handles and records launch specs. Single-run
// tests set handle; multi-run tests key handles by backtest id.
type fakeRunner struct {
	handle  core.EngineHandle
	handles map[string]core.EngineHandle
	err     error

	mu    sync.Mutex
	specs []core.LaunchSpec
}

func (r *fakeRunner) Start(_ context.Context, spec core.LaunchSpec) (core.EngineHandle, error) {
	r.mu.Lock()
	r.specs = append(r.specs, spec)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if h, ok := r.handles[spec.BacktestID]; ok {
		return h, nil
	}
	return r.handle, nil
}

func validRequest() *model.CreateBacktestRequest {
	return &model.CreateBacktestRequest{
		StrategyName:    "momentum",
		Instrument:      "EUR/USD",
		StartingBalance: "10000",
		Config:          json.RawMessage(`{"bars": 500}`),
	}
}

func runningBacktest(id string) *model.Backtest {
	return &model.Backtest{
		ID:              id,
		StrategyName:    "momentum",
		Instrument:      "EUR/USD",
		StartingBalance: "10000",
		Status:          model.BacktestStatusRunning,
		CreatedAt:       time.Now(),
	}
}

func newTestService(t *testing.T, opts BacktestServiceOptions) *BacktestService {
	t.Helper()
	svc, err := NewBacktestService(opts)
	require.NoError(t, err)
	return svc
}

func drainService(t *testing.T, svc *BacktestService) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Drain(ctx))
}

func TestNewBacktestService_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBacktestRepository(ctrl)

	t.Run("requires repo", func(t *testing.T) {
		_, err := NewBacktestService(BacktestServiceOptions{Engine: &fakeRunner{}})
		require.Error(t, err)
	})

	t.Run("requires engine", func(t *testing.T) {
		_, err := NewBacktestService(BacktestServiceOptions{Repo: repo})
		require.Error(t, err)
	})

	t.Run("rejects bad extraction expression", func(t *testing.T) {
		_, err := NewBacktestService(BacktestServiceOptions{
			Repo:    repo,
			Engine:  &fakeRunner{},
			Extract: enginePathsWithBadWinRate(),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "extraction expressions")
	})
}

func TestBacktestService_Submit_InvalidRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBacktestRepository(ctrl)
	svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: &fakeRunner{}})

	_, err := svc.Submit(context.Background(), &model.CreateBacktestRequest{})
	require.Error(t, err)

	_, err = svc.Submit(context.Background(), nil)
	require.Error(t, err)
}

func TestBacktestService_Submit_CreateErrorPropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBacktestRepository(ctrl)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))

	svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: &fakeRunner{}})

	_, err := svc.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create backtest")
}

func TestBacktestService_Submit_ReturnsWhileEngineRuns(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBacktestRepository(ctrl)
	handle := newScriptedHandle()
	runner := &fakeRunner{handle: handle}

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(runningBacktest("bt-1"), nil)
	repo.EXPECT().Fail(gomock.Any(), gomock.Any()).Return(true, nil)

	svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: runner})

	// The event stream is still open; Submit must not wait for it.
	bt, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, model.BacktestStatusRunning, bt.Status)
	assert.Equal(t, 1, svc.Running())

	handle.exit(1)
	drainService(t, svc)
	assert.Equal(t, 0, svc.Running())
}

func TestBacktestService_SuccessfulRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBacktestRepository(ctrl)
	handle := newScriptedHandle()
	runner := &fakeRunner{handle: handle}

	var (
		mu   sync.Mutex
		logs string
	)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(runningBacktest("bt-1"), nil)
	repo.EXPECT().AppendLog(gomock.Any(), "bt-1", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, chunk string) error {
			mu.Lock()
			logs += chunk
			mu.Unlock()
			return nil
		}).AnyTimes()

	var completed core.CompleteBacktestParams
	repo.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.CompleteBacktestParams) (bool, error) {
			completed = params
			return true, nil
		})

	svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: runner})

	_, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	handle.stdout("warming up\n")
	handle.stderr("deprecation warning\n")
	handle.stdout(`{"success": true, "ending_balance": 10500.5, "total_trades": 12, "win_rate": 0.75, "profit_loss": 500.5}` + "\n")
	handle.exit(0)
	drainService(t, svc)

	assert.Equal(t, "bt-1", completed.ID)
	require.NotNil(t, completed.Result)
	assert.True(t, completed.Result.Success)
	require.NotNil(t, completed.Result.EndingBalance)
	assert.Equal(t, "10500.5", *completed.Result.EndingBalance)
	require.NotNil(t, completed.Result.TotalTrades)
	assert.Equal(t, "12", *completed.Result.TotalTrades)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, logs, "warming up\n")
	assert.Contains(t, logs, "deprecation warning\n")

	// Launch spec carried the request config through to the engine.
	require.Len(t, runner.specs, 1)
	assert.Equal(t, "bt-1", runner.specs[0].BacktestID)
	assert.JSONEq(t, `{"bars": 500}`, string(runner.specs[0].Config))
}

func TestBacktestService_ConcurrentRunsStayIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBacktestRepository(ctrl)

	first := newScriptedHandle()
	second := newScriptedHandle()
	runner := &fakeRunner{handles: map[string]core.EngineHandle{
		"bt-1": first,
		"bt-2": second,
	}}

	gomock.InOrder(
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(runningBacktest("bt-1"), nil),
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(runningBacktest("bt-2"), nil),
	)

	var (
		mu   sync.Mutex
		logs = map[string]string{}
	)
	repo.EXPECT().AppendLog(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, id string, chunk string) error {
			mu.Lock()
			logs[id] += chunk
			mu.Unlock()
			return nil
		}).AnyTimes()

	var completed core.CompleteBacktestParams
	repo.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.CompleteBacktestParams) (bool, error) {
			mu.Lock()
			completed = params
			mu.Unlock()
			return true, nil
		})

	var failed core.FailBacktestParams
	repo.EXPECT().Fail(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.FailBacktestParams) (bool, error) {
			mu.Lock()
			failed = params
			mu.Unlock()
			return true, nil
		})

	svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: runner})

	_, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, svc.Running())

	// Interleave output from both runs while both are live. One succeeds,
	// the other reports a failure.
	first.stdout("alpha warming up\n")
	second.stdout("beta warming up\n")
	second.stderr("beta low on data\n")
	first.stdout(`{"success": true, "ending_balance": 111.5}` + "\n")
	second.stdout(`{"success": false, "error": "beta ran out of data"}` + "\n")
	second.exit(0)
	first.exit(0)
	drainService(t, svc)

	assert.Equal(t, "bt-1", completed.ID)
	require.NotNil(t, completed.Result)
	assert.True(t, completed.Result.Success)
	require.NotNil(t, completed.Result.EndingBalance)
	assert.Equal(t, "111.5", *completed.Result.EndingBalance)

	assert.Equal(t, "bt-2", failed.ID)
	assert.Equal(t, "beta ran out of data", failed.ErrorMsg)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, logs["bt-1"], "alpha warming up\n")
	assert.NotContains(t, logs["bt-1"], "beta")
	assert.Contains(t, logs["bt-2"], "beta warming up\n")
	assert.Contains(t, logs["bt-2"], "beta low on data\n")
	assert.NotContains(t, logs["bt-2"], "alpha")
}

func TestBacktestService_RunReportsFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBacktestRepository(ctrl)
	handle := newScriptedHandle()

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(runningBacktest("bt-1"), nil)
	repo.EXPECT().AppendLog(gomock.Any(), "bt-1", gomock.Any()).Return(nil).AnyTimes()

	var failed core.FailBacktestParams
	repo.EXPECT().Fail(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.FailBacktestParams) (bool, error) {
			failed = params
			return true, nil
		})

	svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: &fakeRunner{handle: handle}})

	_, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	// Exit code zero, but the payload verdict wins.
	handle.stdout(`{"success": false, "error": "no market data for instrument"}` + "\n")
	handle.exit(0)
	drainService(t, svc)

	assert.Equal(t, "bt-1", failed.ID)
	assert.Equal(t, "no market data for instrument", failed.ErrorMsg)
}

func TestBacktestService_UnparseableOutputFailsRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBacktestRepository(ctrl)
	handle := newScriptedHandle()

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(runningBacktest("bt-1"), nil)
	repo.EXPECT().AppendLog(gomock.Any(), "bt-1", gomock.Any()).Return(nil).AnyTimes()

	var failed core.FailBacktestParams
	repo.EXPECT().Fail(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.FailBacktestParams) (bool, error) {
			failed = params
			return true, nil
		})

	svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: &fakeRunner{handle: handle}})

	_, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	handle.stderr("Traceback (most recent call last):\n")
	handle.stderr("ImportError: no module named nautilus_api\n")
	handle.exit(1)
	drainService(t, svc)

	assert.Equal(t, "failed to parse engine output", failed.ErrorMsg)
}

func TestBacktestService_LaunchErrorResolvesToFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBacktestRepository(ctrl)
	runner := &fakeRunner{err: errors.New("fork/exec: no such file")}

	failedRecord := runningBacktest("bt-1")
	failedRecord.Status = model.BacktestStatusFailed

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(runningBacktest("bt-1"), nil)
	repo.EXPECT().Fail(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.FailBacktestParams) (bool, error) {
			assert.Contains(t, params.ErrorMsg, "failed to launch engine")
			return true, nil
		})
	repo.EXPECT().GetByID(gomock.Any(), "bt-1").Return(failedRecord, nil)

	svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: runner})

	bt, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err, "submission succeeded; the run resolved to failed internally")
	assert.Equal(t, model.BacktestStatusFailed, bt.Status)
}

func TestBacktestService_DuplicateFinalizeIsNoOp(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBacktestRepository(ctrl)
	handle := newScriptedHandle()

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(runningBacktest("bt-1"), nil)
	repo.EXPECT().AppendLog(gomock.Any(), "bt-1", gomock.Any()).Return(nil).AnyTimes()
	// Guard reports the record already terminal; nothing else may happen.
	repo.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(false, nil)

	svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: &fakeRunner{handle: handle}})

	_, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	handle.stdout(`{"success": true}` + "\n")
	handle.exit(0)
	drainService(t, svc)
}

func TestBacktestService_Cancel_KillsRunningProcess(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBacktestRepository(ctrl)
	handle := newScriptedHandle()

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(runningBacktest("bt-1"), nil)
	repo.EXPECT().AppendLog(gomock.Any(), "bt-1", gomock.Any()).Return(nil).AnyTimes()

	var failed core.FailBacktestParams
	repo.EXPECT().Fail(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.FailBacktestParams) (bool, error) {
			failed = params
			return true, nil
		})

	svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: &fakeRunner{handle: handle}})

	_, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), "bt-1"))
	assert.True(t, handle.wasKilled())

	// The killed process exits without a payload; the run resolves as canceled.
	handle.stdout("partial output\n")
	handle.exit(-1)
	drainService(t, svc)

	assert.Equal(t, "bt-1", failed.ID)
	assert.Equal(t, "backtest canceled", failed.ErrorMsg)
}

func TestBacktestService_Cancel_WithoutLiveProcess(t *testing.T) {
	t.Run("terminal record", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockBacktestRepository(ctrl)

		done := runningBacktest("bt-1")
		done.Status = model.BacktestStatusCompleted
		repo.EXPECT().GetByID(gomock.Any(), "bt-1").Return(done, nil)

		svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: &fakeRunner{}})
		err := svc.Cancel(context.Background(), "bt-1")
		require.ErrorIs(t, err, ErrAlreadyFinished)
	})

	t.Run("orphaned running record", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockBacktestRepository(ctrl)

		repo.EXPECT().GetByID(gomock.Any(), "bt-1").Return(runningBacktest("bt-1"), nil)
		repo.EXPECT().Fail(gomock.Any(), core.FailBacktestParams{ID: "bt-1", ErrorMsg: "backtest canceled"}).Return(true, nil)

		svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: &fakeRunner{}})
		require.NoError(t, svc.Cancel(context.Background(), "bt-1"))
	})

	t.Run("unknown id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockBacktestRepository(ctrl)
		repo.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, data.ErrBacktestNotFound)

		svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: &fakeRunner{}})
		err := svc.Cancel(context.Background(), "missing")
		require.ErrorIs(t, err, data.ErrBacktestNotFound)
	})
}

func TestBacktestService_Get(t *testing.T) {
	t.Run("cache hit skips the store", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockBacktestRepository(ctrl)
		cache := mocks.NewMockCacheRepository(ctrl)

		cached := runningBacktest("bt-1")
		cached.Status = model.BacktestStatusCompleted
		encoded, err := json.Marshal(cached)
		require.NoError(t, err)

		cache.EXPECT().Get(gomock.Any(), "backtest:snapshot:bt-1").Return(encoded, nil)

		svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: &fakeRunner{}, Cache: cache})
		bt, err := svc.Get(context.Background(), "bt-1")
		require.NoError(t, err)
		assert.Equal(t, model.BacktestStatusCompleted, bt.Status)
	})

	t.Run("terminal store hit is cached", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockBacktestRepository(ctrl)
		cache := mocks.NewMockCacheRepository(ctrl)

		done := runningBacktest("bt-1")
		done.Status = model.BacktestStatusFailed

		cache.EXPECT().Get(gomock.Any(), "backtest:snapshot:bt-1").Return(nil, nil)
		repo.EXPECT().GetByID(gomock.Any(), "bt-1").Return(done, nil)
		cache.EXPECT().Set(gomock.Any(), "backtest:snapshot:bt-1", gomock.Any(), gomock.Any()).Return(nil)

		svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: &fakeRunner{}, Cache: cache})
		bt, err := svc.Get(context.Background(), "bt-1")
		require.NoError(t, err)
		assert.Equal(t, model.BacktestStatusFailed, bt.Status)
	})

	t.Run("running records are never cached", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockBacktestRepository(ctrl)
		cache := mocks.NewMockCacheRepository(ctrl)

		cache.EXPECT().Get(gomock.Any(), "backtest:snapshot:bt-1").Return(nil, nil)
		repo.EXPECT().GetByID(gomock.Any(), "bt-1").Return(runningBacktest("bt-1"), nil)

		svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: &fakeRunner{}, Cache: cache})
		bt, err := svc.Get(context.Background(), "bt-1")
		require.NoError(t, err)
		assert.Equal(t, model.BacktestStatusRunning, bt.Status)
	})

	t.Run("not found passes through", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockBacktestRepository(ctrl)
		repo.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, data.ErrBacktestNotFound)

		svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: &fakeRunner{}})
		_, err := svc.Get(context.Background(), "missing")
		require.ErrorIs(t, err, data.ErrBacktestNotFound)
	})
}

func TestBacktestService_ListAndStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBacktestRepository(ctrl)

	status := model.BacktestStatusRunning
	opts := model.BacktestListOptions{Status: &status, Limit: 10}
	repo.EXPECT().List(gomock.Any(), opts).Return([]*model.Backtest{runningBacktest("bt-1")}, nil)
	repo.EXPECT().Stats(gomock.Any()).Return(&model.BacktestStats{Running: 1, Completed: 2, Failed: 3}, nil)

	svc := newTestService(t, BacktestServiceOptions{Repo: repo, Engine: &fakeRunner{}})

	listed, err := svc.List(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "bt-1", listed[0].ID)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Completed)
}
