package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/quantdesk/backtest-go/internal/core"
	"github.com/quantdesk/backtest-go/internal/domain/model"
)

// successKey must be present in a payload object for it to count as the
// engine's result; anything else on stdout is treated as log noise.
const successKey = "success"

// ExtractPaths holds JMESPath expressions used to pull result fields out of
// the engine payload. Engine versions disagree on payload shape (flat keys vs
// nested stats objects), so deployments can point these at the right spot
// without code changes.
type ExtractPaths struct {
	EndingBalance string
	TotalTrades   string
	WinRate       string
	ProfitLoss    string
	ErrorMessage  string
}

// DefaultExtractPaths returns the expressions matching the stock engine bridge payload.
func DefaultExtractPaths() ExtractPaths {
	return ExtractPaths{
		EndingBalance: "ending_balance",
		TotalTrades:   "total_trades",
		WinRate:       "win_rate",
		ProfitLoss:    "profit_loss",
		ErrorMessage:  "error",
	}
}

// ParseError reports that no usable result payload was found in the engine
// output. It carries the accumulated log so the failure record can preserve
// everything the engine said.
type ParseError struct {
	ExitCode int
	Log      string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("no parseable result payload in engine output (exit code %d)", e.ExitCode)
}

// AggregatorOptions groups configuration for an Aggregator.
type AggregatorOptions struct {
	// Extract overrides the payload field expressions; zero-valued fields fall
	// back to the defaults.
	Extract ExtractPaths
}

// Aggregator accumulates one run's engine output and produces its terminal result.
//
// It is owned by a single goroutine per run and is not safe for concurrent
// use. Feed appends chunks in delivery order; Finalize freezes the log and
// parses the result exactly once. Finalize is tolerant of empty, truncated,
// and noisy output and never panics.
type Aggregator struct {
	stdout strings.Builder
	log    strings.Builder
	frozen bool
	paths  extractPrograms
}

type extractPrograms struct {
	endingBalance jmespath.JMESPath
	totalTrades   jmespath.JMESPath
	winRate       jmespath.JMESPath
	profitLoss    jmespath.JMESPath
	errorMessage  jmespath.JMESPath
}

// NewAggregator constructs an Aggregator, compiling the extraction expressions up front.
func NewAggregator(opts AggregatorOptions) (*Aggregator, error) {
	paths := opts.Extract
	defaults := DefaultExtractPaths()
	if paths.EndingBalance == "" {
		paths.EndingBalance = defaults.EndingBalance
	}
	if paths.TotalTrades == "" {
		paths.TotalTrades = defaults.TotalTrades
	}
	if paths.WinRate == "" {
		paths.WinRate = defaults.WinRate
	}
	if paths.ProfitLoss == "" {
		paths.ProfitLoss = defaults.ProfitLoss
	}
	if paths.ErrorMessage == "" {
		paths.ErrorMessage = defaults.ErrorMessage
	}

	var (
		programs extractPrograms
		err      error
	)
	if programs.endingBalance, err = jmespath.Compile(paths.EndingBalance); err != nil {
		return nil, fmt.Errorf("compile ending balance expression: %w", err)
	}
	if programs.totalTrades, err = jmespath.Compile(paths.TotalTrades); err != nil {
		return nil, fmt.Errorf("compile total trades expression: %w", err)
	}
	if programs.winRate, err = jmespath.Compile(paths.WinRate); err != nil {
		return nil, fmt.Errorf("compile win rate expression: %w", err)
	}
	if programs.profitLoss, err = jmespath.Compile(paths.ProfitLoss); err != nil {
		return nil, fmt.Errorf("compile profit loss expression: %w", err)
	}
	if programs.errorMessage, err = jmespath.Compile(paths.ErrorMessage); err != nil {
		return nil, fmt.Errorf("compile error message expression: %w", err)
	}

	return &Aggregator{paths: programs}, nil
}

// MustNewAggregator constructs an Aggregator and panics on error.
func MustNewAggregator(opts AggregatorOptions) *Aggregator {
	a, err := NewAggregator(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create Aggregator: %v", err))
	}
	return a
}

// Feed appends an output chunk. Stdout chunks are also retained separately
// for result parsing; both streams land in the combined log in arrival
// order. Chunks fed after Finalize are dropped.
func (a *Aggregator) Feed(kind core.EngineEventKind, chunk string) {
	if a.frozen || chunk == "" {
		return
	}
	switch kind {
	case core.EngineEventStdout:
		a.stdout.WriteString(chunk)
		a.log.WriteString(chunk)
	case core.EngineEventStderr:
		a.log.WriteString(chunk)
	case core.EngineEventExit:
		// exit carries no output
	}
}

// Log returns the combined output accumulated so far.
func (a *Aggregator) Log() string {
	return a.log.String()
}

// Finalize freezes the log and parses the terminal payload from stdout.
//
// The payload is the last JSON object on stdout containing a boolean
// "success" field; its own verdict decides the run outcome regardless of the
// process exit code. When no such object exists the run is unparseable and a
// *ParseError carrying the full log is returned.
func (a *Aggregator) Finalize(exitCode int) (*model.EngineResult, error) {
	a.frozen = true

	payload, raw, ok := a.findPayload()
	if !ok {
		return nil, &ParseError{ExitCode: exitCode, Log: a.log.String()}
	}

	success, ok := payload[successKey].(bool)
	if !ok {
		return nil, &ParseError{ExitCode: exitCode, Log: a.log.String()}
	}

	result := &model.EngineResult{
		Success:       success,
		EndingBalance: a.extractString(a.paths.endingBalance, payload),
		TotalTrades:   a.extractString(a.paths.totalTrades, payload),
		WinRate:       a.extractString(a.paths.winRate, payload),
		ProfitLoss:    a.extractString(a.paths.profitLoss, payload),
		Raw:           raw,
	}

	if !success {
		result.Message = "backtest failed"
		if msg := a.extractString(a.paths.errorMessage, payload); msg != nil && strings.TrimSpace(*msg) != "" {
			result.Message = *msg
		}
	}

	return result, nil
}

// findPayload locates the last parseable JSON object on stdout that carries
// the success key. The whole stream is tried first so multi-line payloads
// work, then individual lines newest-first.
func (a *Aggregator) findPayload() (map[string]any, json.RawMessage, bool) {
	full := strings.TrimSpace(a.stdout.String())
	if full == "" {
		return nil, nil, false
	}

	if payload, ok := decodePayload(full); ok {
		return payload, json.RawMessage(full), true
	}

	lines := strings.Split(full, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if payload, ok := decodePayload(line); ok {
			return payload, json.RawMessage(line), true
		}
	}

	return nil, nil, false
}

func decodePayload(text string) (map[string]any, bool) {
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, false
	}
	if _, hasKey := payload[successKey]; !hasKey {
		return nil, false
	}
	return payload, true
}

// extractString evaluates an expression against the payload and renders the
// match as a string. Missing fields and evaluation errors yield nil so the
// corresponding record column stays null.
func (a *Aggregator) extractString(program jmespath.JMESPath, payload map[string]any) *string {
	if program == nil {
		return nil
	}
	value, err := program.Search(payload)
	if err != nil || value == nil {
		return nil
	}

	var rendered string
	switch v := value.(type) {
	case string:
		rendered = v
	case float64:
		rendered = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		rendered = strconv.FormatBool(v)
	case json.Number:
		rendered = v.String()
	default:
		encoded, marshalErr := json.Marshal(v)
		if marshalErr != nil {
			return nil
		}
		rendered = string(encoded)
	}

	return &rendered
}
