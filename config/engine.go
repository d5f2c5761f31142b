package config

// EngineConfig contains backtest engine process configuration.
//
// The orchestrator launches one interpreter process per run. The payload
// extraction expressions are JMESPath and only need overriding when the
// bridge emits a non-default payload shape.
type EngineConfig struct {
	// Interpreter is the engine interpreter binary.
	Interpreter string `env:"INTERPRETER" envDefault:"python3.11"`

	// BridgeDir is the directory holding the engine bridge module. When set it
	// is exported to the engine process as PYTHONPATH.
	BridgeDir string `env:"BRIDGE_DIR" envDefault:""`

	// BridgeCode overrides the inline bootstrap snippet handed to the interpreter.
	BridgeCode string `env:"BRIDGE_CODE" envDefault:""`

	// Payload extraction expression overrides.
	EndingBalancePath string `env:"ENDING_BALANCE_PATH" envDefault:""`
	TotalTradesPath   string `env:"TOTAL_TRADES_PATH"   envDefault:""`
	WinRatePath       string `env:"WIN_RATE_PATH"       envDefault:""`
	ProfitLossPath    string `env:"PROFIT_LOSS_PATH"    envDefault:""`
	ErrorMessagePath  string `env:"ERROR_MESSAGE_PATH"  envDefault:""`
}

// Sanitize applies guardrails to engine configuration values.
func (e *EngineConfig) Sanitize() {
	if e.Interpreter == "" {
		e.Interpreter = "python3.11"
	}
}
