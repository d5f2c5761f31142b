// Package httpx provides HTTP handlers and utilities for the backtest orchestrator API.
package httpx

import (
	"errors"
	"net/http"

	"github.com/quantdesk/backtest-go/internal/data"
	"github.com/quantdesk/backtest-go/internal/domain/model"
	apperrors "github.com/quantdesk/backtest-go/internal/errors"
	"github.com/quantdesk/backtest-go/internal/service"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 1000
)

// BacktestHandlers provides HTTP handlers for backtest operations.
type BacktestHandlers struct {
	Svc *service.BacktestService
}

// Create handles HTTP requests to submit a new backtest. The response carries
// the freshly created record in running status; the run itself continues in
// the background and is observed by polling.
func (h *BacktestHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateBacktestRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	bt, err := h.Svc.Submit(r.Context(), &req)
	if err != nil {
		writeBacktestError(w, "submit_failed", err)
		return
	}

	WriteJSON(w, http.StatusOK, bt)
}

// Get handles HTTP requests to fetch a single backtest by ID.
func (h *BacktestHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("backtest id is required")},
		)
		return
	}

	bt, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeBacktestError(w, "get_failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, bt)
}

// List handles HTTP requests to list backtests with optional status filtering
// and pagination.
func (h *BacktestHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParseLimitOffset(r, defaultPageLimit, maxPageLimit)

	opts := model.BacktestListOptions{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := model.BacktestStatus(raw)
		if !status.Valid() {
			WriteError(
				w,
				ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_status", Err: errors.New("status must be one of: running, completed, failed")},
			)
			return
		}
		opts.Status = &status
	}

	backtests, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		writeBacktestError(w, "list_failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, backtests)
}

// Cancel handles HTTP requests to cancel a running backtest. The record
// resolves to failed through the normal run resolution path.
func (h *BacktestHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("backtest id is required")},
		)
		return
	}

	if err := h.Svc.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrAlreadyFinished) {
			WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "already_finished", Err: err})
			return
		}
		writeBacktestError(w, "cancel_failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Stats handles HTTP requests for backtest status counts.
func (h *BacktestHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		writeBacktestError(w, "stats_failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// writeBacktestError maps service errors to HTTP responses.
func writeBacktestError(w http.ResponseWriter, fallbackCode string, err error) {
	if errors.Is(err, data.ErrBacktestNotFound) {
		WriteError(
			w,
			ErrorParams{Code: http.StatusNotFound, ErrCode: "backtest_not_found", Err: errors.New("backtest not found")},
		)
		return
	}

	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation:
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
	case apperrors.ErrCodeNotFound:
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "backtest_not_found", Err: err})
	case apperrors.ErrCodeConflict:
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "conflict", Err: err})
	default:
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: fallbackCode, Err: err})
	}
}
