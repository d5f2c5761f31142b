// Package engine launches and observes external backtest engine processes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/quantdesk/backtest-go/internal/core"
)

// defaultBridgeCode is the inline bootstrap handed to the interpreter. It
// reads the run configuration from the environment, invokes the engine bridge
// module, and prints the result payload as a single JSON document on stdout.
const defaultBridgeCode = `import json, os
from nautilus_api import run_simple_backtest
config = json.loads(os.environ.get("BACKTEST_CONFIG", "{}"))
result = run_simple_backtest(config)
print(json.dumps(result))
`

// configEnvVar carries the per-run configuration into the engine process.
const configEnvVar = "BACKTEST_CONFIG"

const readChunkSize = 4096

// launchFailureExitCode is reported when the engine process cannot start at all.
const launchFailureExitCode = -1

// ProcessRunnerOptions groups dependencies for ProcessRunner.
type ProcessRunnerOptions struct {
	Interpreter string       // Required: engine interpreter binary, e.g. "python3.11"
	BridgeDir   string       // Optional: directory holding the bridge module, exported as PYTHONPATH
	BridgeCode  string       // Optional: override the inline bootstrap snippet
	Logger      *slog.Logger // Optional: structured logger
}

// ProcessRunner implements core.EngineRunner by spawning the engine
// interpreter with an inline bridge snippet.
//
// Launched processes are deliberately detached from the submission context:
// a backtest keeps running after the submitting request returns, and only
// Kill or process exit ends it.
type ProcessRunner struct {
	interpreter string
	bridgeDir   string
	bridgeCode  string
	logger      *slog.Logger
}

// NewProcessRunner constructs a new ProcessRunner.
func NewProcessRunner(opts ProcessRunnerOptions) (*ProcessRunner, error) {
	if strings.TrimSpace(opts.Interpreter) == "" {
		return nil, errors.New("interpreter is required")
	}

	code := opts.BridgeCode
	if code == "" {
		code = defaultBridgeCode
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "engine_runner")
	}

	return &ProcessRunner{
		interpreter: opts.Interpreter,
		bridgeDir:   opts.BridgeDir,
		bridgeCode:  code,
		logger:      logger,
	}, nil
}

// MustNewProcessRunner constructs a new ProcessRunner and panics on error.
func MustNewProcessRunner(opts ProcessRunnerOptions) *ProcessRunner {
	r, err := NewProcessRunner(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create ProcessRunner: %v", err))
	}
	return r
}

// Start launches one engine process for the given spec.
//
// The returned handle's event stream carries stdout and stderr chunks in
// arrival order followed by exactly one exit event, after which the channel
// is closed. When the process cannot be launched at all, the stream still
// resolves with a synthetic stderr chunk and an exit event, so every
// submission finishes through the same path.
func (r *ProcessRunner) Start(ctx context.Context, spec core.LaunchSpec) (core.EngineHandle, error) {
	if strings.TrimSpace(spec.BacktestID) == "" {
		return nil, errors.New("backtest id is required")
	}

	//nolint:noctx // the engine process must outlive the submitting request's context
	cmd := exec.Command(r.interpreter, "-c", r.bridgeCode)
	cmd.Env = r.buildEnv(spec)
	// Own process group, so Kill can take down engine children that would
	// otherwise inherit the pipes and keep the event stream open.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	h := &processHandle{
		events: make(chan core.EngineEvent),
		cmd:    cmd,
	}

	if startErr := cmd.Start(); startErr != nil {
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "engine process failed to start",
				"backtest_id", spec.BacktestID,
				"interpreter", r.interpreter,
				"error", startErr,
			)
		}
		go h.emitLaunchFailure(startErr)
		return h, nil
	}

	if r.logger != nil {
		r.logger.InfoContext(ctx, "engine process started",
			"backtest_id", spec.BacktestID,
			"pid", cmd.Process.Pid,
		)
	}

	go h.pump(stdout, stderr)
	return h, nil
}

func (r *ProcessRunner) buildEnv(spec core.LaunchSpec) []string {
	env := append([]string(nil), os.Environ()...)
	config := "{}"
	if len(spec.Config) > 0 {
		config = string(spec.Config)
	}
	env = append(env, configEnvVar+"="+config)
	if r.bridgeDir != "" {
		env = append(env, "PYTHONPATH="+r.bridgeDir)
	}
	return env
}

// processHandle is the core.EngineHandle for a spawned engine process.
type processHandle struct {
	events chan core.EngineEvent
	cmd    *exec.Cmd

	killMu sync.Mutex
	killed bool
}

// Events returns the ordered event stream for this run.
func (h *processHandle) Events() <-chan core.EngineEvent {
	return h.events
}

// Kill requests best-effort termination of the engine process. The resulting
// non-zero exit is still delivered through the event stream.
func (h *processHandle) Kill() error {
	h.killMu.Lock()
	defer h.killMu.Unlock()
	if h.killed {
		return nil
	}
	h.killed = true

	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	// Signal the whole process group: the interpreter may have forked
	// children holding the pipe write ends, and the stream only resolves
	// once every writer is gone.
	if err := syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill engine process group: %w", err)
	}
	return nil
}

// emitLaunchFailure resolves a run whose process never started.
func (h *processHandle) emitLaunchFailure(startErr error) {
	h.events <- core.EngineEvent{
		Kind:  core.EngineEventStderr,
		Chunk: "failed to launch engine: " + startErr.Error() + "\n",
	}
	h.events <- core.EngineEvent{
		Kind:     core.EngineEventExit,
		ExitCode: launchFailureExitCode,
		Err:      startErr,
	}
	close(h.events)
}

// pump forwards output chunks in arrival order, then delivers the exit event.
func (h *processHandle) pump(stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)
	go h.forward(&wg, core.EngineEventStdout, stdout)
	go h.forward(&wg, core.EngineEventStderr, stderr)
	wg.Wait()

	exitCode := 0
	var waitErr error
	if err := h.cmd.Wait(); err != nil {
		waitErr = err
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = launchFailureExitCode
		}
	}

	h.events <- core.EngineEvent{
		Kind:     core.EngineEventExit,
		ExitCode: exitCode,
		Err:      waitErr,
	}
	close(h.events)
}

func (h *processHandle) forward(wg *sync.WaitGroup, kind core.EngineEventKind, r io.Reader) {
	defer wg.Done()

	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.events <- core.EngineEvent{Kind: kind, Chunk: string(buf[:n])}
		}
		if err != nil {
			return
		}
	}
}
