package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantdesk/backtest-go/internal/core"
)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(AggregatorOptions{})
	require.NoError(t, err)
	return agg
}

func TestNewAggregator_InvalidExpression(t *testing.T) {
	_, err := NewAggregator(AggregatorOptions{
		Extract: ExtractPaths{WinRate: "stats.["},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "win rate")
}

func TestAggregator_FeedAndLog(t *testing.T) {
	agg := newTestAggregator(t)

	agg.Feed(core.EngineEventStdout, "loading data\n")
	agg.Feed(core.EngineEventStderr, "warning: stale cache\n")
	agg.Feed(core.EngineEventStdout, "running strategy\n")
	agg.Feed(core.EngineEventStderr, "")

	assert.Equal(t, "loading data\nwarning: stale cache\nrunning strategy\n", agg.Log())
}

func TestAggregator_Finalize_Success(t *testing.T) {
	agg := newTestAggregator(t)
	agg.Feed(core.EngineEventStdout, "progress 50%\n")
	agg.Feed(core.EngineEventStdout,
		`{"success": true, "ending_balance": 10500.25, "total_trades": 42, "win_rate": 0.57, "profit_loss": 500.25}`+"\n")

	result, err := agg.Finalize(0)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.EndingBalance)
	assert.Equal(t, "10500.25", *result.EndingBalance)
	require.NotNil(t, result.TotalTrades)
	assert.Equal(t, "42", *result.TotalTrades)
	require.NotNil(t, result.WinRate)
	assert.Equal(t, "0.57", *result.WinRate)
	require.NotNil(t, result.ProfitLoss)
	assert.Equal(t, "500.25", *result.ProfitLoss)
	assert.JSONEq(t,
		`{"success": true, "ending_balance": 10500.25, "total_trades": 42, "win_rate": 0.57, "profit_loss": 500.25}`,
		string(result.Raw))
	assert.Empty(t, result.Message)
}

func TestAggregator_Finalize_PayloadVerdictBeatsExitCode(t *testing.T) {
	t.Run("success despite non-zero exit", func(t *testing.T) {
		agg := newTestAggregator(t)
		agg.Feed(core.EngineEventStdout, `{"success": true, "ending_balance": "9000"}`)

		result, err := agg.Finalize(3)
		require.NoError(t, err)
		assert.True(t, result.Success)
	})

	t.Run("failure despite zero exit", func(t *testing.T) {
		agg := newTestAggregator(t)
		agg.Feed(core.EngineEventStdout, `{"success": false, "error": "no market data for instrument"}`)

		result, err := agg.Finalize(0)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "no market data for instrument", result.Message)
	})
}

func TestAggregator_Finalize_FailureWithoutMessage(t *testing.T) {
	agg := newTestAggregator(t)
	agg.Feed(core.EngineEventStdout, `{"success": false}`)

	result, err := agg.Finalize(1)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "backtest failed", result.Message)
}

func TestAggregator_Finalize_LastPayloadWins(t *testing.T) {
	agg := newTestAggregator(t)
	agg.Feed(core.EngineEventStdout, `{"success": false, "error": "retrying"}`+"\n")
	agg.Feed(core.EngineEventStdout, `{"success": true, "ending_balance": "11000"}`+"\n")

	result, err := agg.Finalize(0)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.EndingBalance)
	assert.Equal(t, "11000", *result.EndingBalance)
}

func TestAggregator_Finalize_IgnoresNoise(t *testing.T) {
	agg := newTestAggregator(t)
	agg.Feed(core.EngineEventStdout, "INFO loading bars\n")
	agg.Feed(core.EngineEventStdout, `{"progress": 0.5}`+"\n")
	agg.Feed(core.EngineEventStdout, `{"success": true}`+"\n")
	agg.Feed(core.EngineEventStdout, "shutting down engine\n")
	agg.Feed(core.EngineEventStderr, `{"success": false, "error": "stderr payloads do not count"}`+"\n")

	result, err := agg.Finalize(0)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestAggregator_Finalize_MultiLinePayload(t *testing.T) {
	agg := newTestAggregator(t)
	agg.Feed(core.EngineEventStdout, "{\n  \"success\": true,\n  \"ending_balance\": \"10250\"\n}\n")

	result, err := agg.Finalize(0)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.EndingBalance)
	assert.Equal(t, "10250", *result.EndingBalance)
}

func TestAggregator_Finalize_Unparseable(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
	}{
		{name: "empty output", chunks: nil},
		{name: "plain text only", chunks: []string{"Traceback (most recent call last):\n", "ImportError: no module named nautilus_api\n"}},
		{name: "truncated JSON", chunks: []string{`{"success": true, "ending_bal`}},
		{name: "payload missing success key", chunks: []string{`{"ending_balance": "10000"}`}},
		{name: "success is not a bool", chunks: []string{`{"success": "yes"}`}},
		{name: "JSON array", chunks: []string{`[true, false]`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := newTestAggregator(t)
			for _, chunk := range tt.chunks {
				agg.Feed(core.EngineEventStdout, chunk)
			}

			result, err := agg.Finalize(1)
			assert.Nil(t, result)

			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, 1, parseErr.ExitCode)
			assert.Equal(t, agg.Log(), parseErr.Log)
		})
	}
}

func TestAggregator_Finalize_FreezesLog(t *testing.T) {
	agg := newTestAggregator(t)
	agg.Feed(core.EngineEventStdout, "before exit\n")

	_, err := agg.Finalize(1)
	require.Error(t, err)

	before := agg.Log()
	agg.Feed(core.EngineEventStdout, "late stdout\n")
	agg.Feed(core.EngineEventStderr, "late stderr\n")
	assert.Equal(t, before, agg.Log())
}

func TestAggregator_Finalize_CustomExtractPaths(t *testing.T) {
	agg, err := NewAggregator(AggregatorOptions{
		Extract: ExtractPaths{
			EndingBalance: "stats.balance",
			TotalTrades:   "stats.trades",
			ErrorMessage:  "failure.reason",
		},
	})
	require.NoError(t, err)

	agg.Feed(core.EngineEventStdout, `{"success": true, "stats": {"balance": 12000, "trades": 7}}`)

	result, finErr := agg.Finalize(0)
	require.NoError(t, finErr)
	require.NotNil(t, result.EndingBalance)
	assert.Equal(t, "12000", *result.EndingBalance)
	require.NotNil(t, result.TotalTrades)
	assert.Equal(t, "7", *result.TotalTrades)
	assert.Nil(t, result.WinRate)
	assert.Nil(t, result.ProfitLoss)
}

func TestAggregator_Finalize_MissingFieldsStayNil(t *testing.T) {
	agg := newTestAggregator(t)
	agg.Feed(core.EngineEventStdout, `{"success": true}`)

	result, err := agg.Finalize(0)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, result.EndingBalance)
	assert.Nil(t, result.TotalTrades)
	assert.Nil(t, result.WinRate)
	assert.Nil(t, result.ProfitLoss)
}
