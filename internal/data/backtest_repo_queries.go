package data

import (
	"context"
	"fmt"

	"github.com/quantdesk/backtest-go/internal/domain/model"
	apperrors "github.com/quantdesk/backtest-go/internal/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// List returns backtests ordered newest-first with optional status filtering.
func (r *BacktestRepo) List(
	ctx context.Context,
	opts model.BacktestListOptions,
) ([]*model.Backtest, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + backtestColumns + `
		FROM backtests
	`
	args := []any{}
	if opts.Status != nil {
		if !opts.Status.Valid() {
			return nil, fmt.Errorf("invalid status filter: %s", *opts.Status)
		}
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, *opts.Status, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list backtests: %w", apperrors.MapDBError(err))
	}
	defer func() { _ = rows.Close() }()

	backtests := make([]*model.Backtest, 0, limit)
	for rows.Next() {
		bt, scanErr := scanBacktestFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan backtest: %w", scanErr)
		}
		backtests = append(backtests, bt)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate backtests: %w", rowsErr)
	}

	return backtests, nil
}

// Stats returns counts of backtests in each status.
func (r *BacktestRepo) Stats(ctx context.Context) (*model.BacktestStats, error) {
	var s model.BacktestStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed
  FROM backtests
  `).Scan(
		&s.Running,
		&s.Completed,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get backtest stats: %w", apperrors.MapDBError(err))
	}
	return &s, nil
}
