package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
)

// CmdBuilder creates the command for name and args. The returned function
// releases anything the builder allocated.
type CmdBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// Output is what a tempest invocation produced.
type Output struct {
	Stdout          []byte
	Stderr          []byte
	StderrTruncated bool
	ExitCode        int
	Duration        time.Duration
}

// Executor runs tempest.
type Executor struct {
	log        log.Logger
	binary     string
	workDir    string
	env        []string
	cmdBuilder CmdBuilder
}

// NewExecutor creates an executor for binary. Commands run in workDir with
// env as their environment; a nil env inherits the current process
// environment. A nil cmdBuilder uses exec.CommandContext.
func NewExecutor(logger log.Logger, binary string, workDir string, env []string, cmdBuilder CmdBuilder) *Executor {
	if binary == "" {
		binary = DefaultTempestBinary
	}
	e := &Executor{
		log:     logger,
		binary:  binary,
		workDir: workDir,
		env:     env,
	}
	e.cmdBuilder = cmdBuilder
	if e.cmdBuilder == nil {
		e.cmdBuilder = e.commandContext
	}
	return e
}

func (e *Executor) commandContext(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Dir = e.workDir

	env := e.env
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = telemetry.InstrumentEnvironment(ctx, env)
	return cmd, func() {}
}

// Args returns the tempest arguments for one run.
func Args(configFile, whitelistFile string) []string {
	return []string{
		RunCommand, DebugFlag, SubunitFlag, ConcurrencyFlag,
		ConfigFileFlag, configFile,
		WhitelistFileFlag, whitelistFile,
	}
}

// WriteWhitelist writes tests, one per line, to a new file in dir (the
// system temp dir when empty) and returns its path.
func WriteWhitelist(dir string, tests []string) (string, error) {
	if len(tests) == 0 {
		return "", errors.New("no tests selected")
	}

	f, err := os.CreateTemp(dir, whitelistPattern)
	if err != nil {
		return "", fmt.Errorf("failed to create whitelist file: %w", err)
	}
	if _, err := f.WriteString(strings.Join(tests, "\n")); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write whitelist file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write whitelist file: %w", err)
	}
	return f.Name(), nil
}

// Run executes tempest for tests against configFile and waits for it to
// exit. A non-zero exit status is recorded in Output.ExitCode; only a
// failure to start the process, or cancellation of ctx, is returned as an
// error.
func (e *Executor) Run(ctx context.Context, configFile string, tests []string) (*Output, error) {
	whitelist, err := WriteWhitelist(e.workDir, tests)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = os.Remove(whitelist)
	}()

	args := Args(configFile, whitelist)
	cmd, cleanup := e.cmdBuilder(ctx, e.binary, args...)
	defer cleanup()

	var stdout bytes.Buffer
	stderr := newTailBuffer(defaultStderrTailBytes)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	e.log.Info("running tempest", "command", CommandLine(e.binary, args...), "tests", len(tests))

	start := time.Now()
	runErr := cmd.Run()
	out := &Output{
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
		StderrTruncated: stderr.Truncated(),
		Duration:        time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("tempest interrupted: %w", ctxErr)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("failed to run %s: %w", e.binary, runErr)
		}
		out.ExitCode = exitErr.ExitCode()
		e.log.Warn("tempest exited with non-zero status",
			"exit_code", out.ExitCode, "duration", out.Duration, "stderr", lastLines(out.Stderr, 20))
	} else {
		e.log.Info("tempest finished", "duration", out.Duration, "stdout_bytes", len(out.Stdout))
	}
	return out, nil
}

// CommandLine renders name and args as a shell-quoted string for logs.
func CommandLine(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellescape.Quote(name))
	for _, arg := range args {
		parts = append(parts, shellescape.Quote(arg))
	}
	return strings.Join(parts, " ")
}

func lastLines(b []byte, n int) string {
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
