// Package model defines the core data types and structures used throughout the backtest orchestrator.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BacktestStatus represents the current status of a backtest run.
type BacktestStatus string

const (
	// BacktestStatusRunning indicates the engine process is still executing.
	BacktestStatusRunning BacktestStatus = "running"
	// BacktestStatusCompleted indicates the engine finished and reported success.
	BacktestStatusCompleted BacktestStatus = "completed"
	// BacktestStatusFailed indicates the engine failed, was canceled, or produced unusable output.
	BacktestStatusFailed BacktestStatus = "failed"
)

// Valid returns true if the BacktestStatus is valid.
func (s BacktestStatus) Valid() bool {
	return s == BacktestStatusRunning || s == BacktestStatusCompleted || s == BacktestStatusFailed
}

// Terminal returns true for statuses a backtest can never leave.
func (s BacktestStatus) Terminal() bool {
	return s == BacktestStatusCompleted || s == BacktestStatusFailed
}

// UnmarshalText implements encoding.TextUnmarshaler for BacktestStatus to allow env and query parsing.
func (s *BacktestStatus) UnmarshalText(text []byte) error {
	v := BacktestStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid BacktestStatus: %q", string(text))
	}
	*s = v
	return nil
}

// Backtest represents a single backtest run with all its metadata and results.
//
// Result columns (EndingBalance, TotalTrades, WinRate, ProfitLoss, Results) are
// populated only when Status is completed; Error only when Status is failed.
// Logs accumulates engine output in arrival order and is frozen once the run
// reaches a terminal status.
type Backtest struct {
	ID              string          `json:"id"                         db:"id"`
	StrategyID      *string         `json:"strategy_id,omitempty"      db:"strategy_id"`
	StrategyName    string          `json:"strategy_name"              db:"strategy_name"`
	Instrument      string          `json:"instrument"                 db:"instrument"`
	StartingBalance string          `json:"starting_balance"           db:"starting_balance"`
	EndingBalance   *string         `json:"ending_balance,omitempty"   db:"ending_balance"`
	TotalTrades     *string         `json:"total_trades,omitempty"     db:"total_trades"`
	WinRate         *string         `json:"win_rate,omitempty"         db:"win_rate"`
	ProfitLoss      *string         `json:"profit_loss,omitempty"      db:"profit_loss"`
	Status          BacktestStatus  `json:"status"                     db:"status"`
	Results         json.RawMessage `json:"results,omitempty"          db:"results"`
	Logs            string          `json:"logs"                       db:"logs"`
	Error           *string         `json:"error,omitempty"            db:"error"`
	CreatedBy       *string         `json:"created_by,omitempty"       db:"created_by"`
	CreatedAt       time.Time       `json:"created_at"                 db:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
}

// CreateBacktestRequest represents a request to submit a new backtest.
type CreateBacktestRequest struct {
	StrategyID      *string         `json:"strategy_id,omitempty"`
	StrategyName    string          `json:"strategy_name"`
	Instrument      string          `json:"instrument"`
	StartingBalance string          `json:"starting_balance"`
	Config          json.RawMessage `json:"config,omitempty"`
	CreatedBy       *string         `json:"created_by,omitempty"`
}

const maxStrategyNameLength = 255

// Validate validates the CreateBacktestRequest fields.
func (r *CreateBacktestRequest) Validate() error {
	if strings.TrimSpace(r.Instrument) == "" {
		return errors.New("instrument is required")
	}
	if strings.TrimSpace(r.StartingBalance) == "" {
		return errors.New("starting balance is required")
	}
	balance, err := strconv.ParseFloat(r.StartingBalance, 64)
	if err != nil {
		return fmt.Errorf("starting balance must be a decimal number: %w", err)
	}
	if balance <= 0 {
		return errors.New("starting balance must be positive")
	}
	if len(r.StrategyName) > maxStrategyNameLength {
		return errors.New("strategy name cannot exceed 255 characters")
	}
	if len(r.Config) > 0 && !json.Valid(r.Config) {
		return errors.New("config must be valid JSON")
	}
	return nil
}

// EngineResult is the validated terminal payload reported by the engine process.
//
// Success comes from the payload itself, not the process exit code; a run that
// exits zero but reports success=false is still a failure, and vice versa.
type EngineResult struct {
	Success       bool
	EndingBalance *string
	TotalTrades   *string
	WinRate       *string
	ProfitLoss    *string
	// Message carries the engine's error description for unsuccessful runs.
	Message string
	// Raw is the original payload object as emitted by the engine.
	Raw json.RawMessage
}

// BacktestStats represents counts of backtests in each status.
type BacktestStats struct {
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// BacktestListOptions controls filtering and pagination for backtest listings.
type BacktestListOptions struct {
	Status *BacktestStatus
	Limit  int
	Offset int
}
