package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrBacktestNotFound is returned when a backtest is not found.
	ErrBacktestNotFound = errors.New("backtest not found")
)
