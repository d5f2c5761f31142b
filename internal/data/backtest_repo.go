// Package data provides PostgreSQL and Redis backed repositories for the backtest orchestrator.
package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quantdesk/backtest-go/internal/core"
	"github.com/quantdesk/backtest-go/internal/data/pgxutil"
	"github.com/quantdesk/backtest-go/internal/domain/model"
	apperrors "github.com/quantdesk/backtest-go/internal/errors"
)

// RepoConfig holds configuration options for the backtest repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// BacktestRepo provides database operations for backtest records.
type BacktestRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewBacktestRepo creates a new BacktestRepo instance with the given database connection and configuration.
func NewBacktestRepo(db *sql.DB, cfg RepoConfig) *BacktestRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &BacktestRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const backtestColumns = `
  id,
  strategy_id,
  strategy_name,
  instrument,
  starting_balance,
  ending_balance,
  total_trades,
  win_rate,
  profit_loss,
  status,
  results,
  logs,
  error,
  created_by,
  created_at,
  completed_at
`

// Create inserts a new backtest record in running status and returns it.
func (r *BacktestRepo) Create(
	ctx context.Context,
	req *model.CreateBacktestRequest,
) (*model.Backtest, error) {
	if req == nil {
		return nil, errors.New("create backtest request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	query := `
      INSERT INTO backtests(strategy_id, strategy_name, instrument, starting_balance, status, logs, created_by)
      VALUES ($1, $2, $3, $4, 'running', '', $5)
      RETURNING ` + backtestColumns

	var bt *model.Backtest
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, qerr := pgxConn.Query(ctx, query,
			req.StrategyID,
			strings.TrimSpace(req.StrategyName),
			strings.TrimSpace(req.Instrument),
			req.StartingBalance,
			req.CreatedBy,
		)
		if qerr != nil {
			return fmt.Errorf("insert backtest: %w", qerr)
		}
		defer rows.Close()

		var collectErr error
		bt, collectErr = collectBacktestFromRows(rows)
		return collectErr
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "backtest record created", "id", bt.ID, "instrument", bt.Instrument)
	}

	return bt, nil
}

// GetByID retrieves a backtest by its ID.
func (r *BacktestRepo) GetByID(ctx context.Context, id string) (*model.Backtest, error) {
	// Malformed ids cannot match any row; short-circuit before the query so the
	// caller sees not-found rather than a cast error.
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return nil, ErrBacktestNotFound
	}

	var bt *model.Backtest
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, qerr := pgxConn.Query(ctx, `
			SELECT `+backtestColumns+`
			FROM backtests
			WHERE id = $1
		`, id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		var collectErr error
		bt, collectErr = collectBacktestFromRows(rows)
		return collectErr
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBacktestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get backtest: %w", apperrors.MapDBError(err))
	}
	return bt, nil
}

// AppendLog appends an output chunk to a running backtest's log.
// Terminal records are left untouched so logs stay frozen after exit.
func (r *BacktestRepo) AppendLog(ctx context.Context, id, chunk string) error {
	if chunk == "" {
		return nil
	}

	_, err := r.DB.ExecContext(ctx, `
		UPDATE backtests
		SET logs = logs || $2
		WHERE id = $1 AND status = 'running'
	`, id, chunk)
	if err != nil {
		return fmt.Errorf("append backtest log: %w", apperrors.MapDBError(err))
	}
	return nil
}

// Complete marks a backtest as completed with the engine's result fields.
// Returns false when the record was not in running status.
func (r *BacktestRepo) Complete(ctx context.Context, params core.CompleteBacktestParams) (bool, error) {
	if params.Result == nil {
		return false, errors.New("engine result is required")
	}

	results, err := marshalResults(params.Result.Raw)
	if err != nil {
		return false, err
	}

	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE backtests
		SET status = 'completed',
		    ending_balance = $2,
		    total_trades = $3,
		    win_rate = $4,
		    profit_loss = $5,
		    results = $6,
		    error = NULL,
		    completed_at = $7
		WHERE id = $1 AND status = 'running'
	`, params.ID,
		params.Result.EndingBalance,
		params.Result.TotalTrades,
		params.Result.WinRate,
		params.Result.ProfitLoss,
		results,
		currentTime,
	)
	if err != nil {
		return false, fmt.Errorf("complete backtest: %w", apperrors.MapDBError(err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Fail marks a backtest as failed with the given error message.
// Returns false when the record was not in running status.
func (r *BacktestRepo) Fail(ctx context.Context, params core.FailBacktestParams) (bool, error) {
	if params.ErrorMsg == "" {
		return false, errors.New("error message required")
	}

	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE backtests
		SET status = 'failed',
		    error = $2,
		    completed_at = $3
		WHERE id = $1 AND status = 'running'
	`, params.ID, params.ErrorMsg, currentTime)
	if err != nil {
		return false, fmt.Errorf("fail backtest: %w", apperrors.MapDBError(err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// marshalResults normalizes the raw engine payload for the JSONB results column.
func marshalResults(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return []byte(`{}`), nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("engine result payload is not valid JSON")
	}
	return raw, nil
}

// collectBacktestFromRows collects a single backtest from pgx rows using pgx v5 helpers.
func collectBacktestFromRows(rows pgx.Rows) (*model.Backtest, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	bt, err := scanBacktestFromRow(rows)
	if err != nil {
		return nil, fmt.Errorf("collect backtest: %w", err)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return bt, nil
}

type backtestRowScanner interface {
	Scan(dest ...any) error
}

type backtestRowData struct {
	strategyID, endingBalance, totalTrades sql.NullString
	winRate, profitLoss, errMsg, createdBy sql.NullString
	results                                []byte
	completedAt                            sql.NullTime
}

func (d *backtestRowData) scanInto(scanner backtestRowScanner, bt *model.Backtest) error {
	return scanner.Scan(
		&bt.ID,
		&d.strategyID,
		&bt.StrategyName,
		&bt.Instrument,
		&bt.StartingBalance,
		&d.endingBalance,
		&d.totalTrades,
		&d.winRate,
		&d.profitLoss,
		&bt.Status,
		&d.results,
		&bt.Logs,
		&d.errMsg,
		&d.createdBy,
		&bt.CreatedAt,
		&d.completedAt,
	)
}

func (d *backtestRowData) apply(bt *model.Backtest) {
	bt.StrategyID = cloneNullableString(d.strategyID)
	bt.EndingBalance = cloneNullableString(d.endingBalance)
	bt.TotalTrades = cloneNullableString(d.totalTrades)
	bt.WinRate = cloneNullableString(d.winRate)
	bt.ProfitLoss = cloneNullableString(d.profitLoss)
	bt.Error = cloneNullableString(d.errMsg)
	bt.CreatedBy = cloneNullableString(d.createdBy)
	bt.Results = cloneJSON(d.results)
	bt.CompletedAt = cloneNullableTime(d.completedAt)
}

func scanBacktestFromRow(scanner backtestRowScanner) (*model.Backtest, error) {
	bt := &model.Backtest{}
	var data backtestRowData
	if err := data.scanInto(scanner, bt); err != nil {
		return nil, err
	}

	data.apply(bt)
	return bt, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
