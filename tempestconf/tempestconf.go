// Package tempestconf produces the tempest configuration and accounts files
// for a run by driving python-tempestconf's discover-tempest-config.
package tempestconf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"

	"github.com/vexxhost/tempest-pushgateway/cloudconfig"
	"github.com/vexxhost/tempest-pushgateway/runner"
)

const (
	DefaultBinary = "discover-tempest-config"

	configPattern   = "tempest-*.conf"
	accountsPattern = "accounts-*.yaml"
)

// Override sets one key of the generated configuration.
type Override struct {
	Section string
	Key     string
	Value   string
}

// Name returns the dotted section.key form.
func (o Override) Name() string {
	return o.Section + "." + o.Key
}

// Overrides returns the configuration overrides for a run. A non-empty
// horizonURL enables the dashboard tests against that URL.
func Overrides(horizonURL string) []Override {
	overrides := []Override{
		{Section: "validation", Key: "connect_method", Value: "fixed"},
	}
	if horizonURL != "" {
		overrides = append(overrides,
			Override{Section: "service_available", Key: "horizon", Value: "True"},
			Override{Section: "dashboard", Key: "dashboard_url", Value: horizonURL},
			Override{Section: "dashboard", Key: "login_url", Value: horizonURL + "/auth/login/"},
		)
	}
	return overrides
}

// Removals returns the keys dropped from the generated configuration.
func Removals() []string {
	return []string{"network.floating_network_name"}
}

// Options controls a single materialization.
type Options struct {
	// Dir holds the generated files; the system temp dir when empty.
	Dir       string
	Overrides []Override
	Removals  []string
}

// Materialized is the pair of files generated for a run.
type Materialized struct {
	ConfigPath   string
	AccountsPath string
}

// Cleanup removes both files. Calling it again is a no-op.
func (m *Materialized) Cleanup() error {
	var errs []error
	for _, path := range []string{m.ConfigPath, m.AccountsPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Materializer runs the configuration generator.
type Materializer struct {
	log        log.Logger
	binary     string
	cmdBuilder runner.CmdBuilder
}

// NewMaterializer creates a materializer for binary. A nil cmdBuilder uses
// exec.CommandContext.
func NewMaterializer(logger log.Logger, binary string, cmdBuilder runner.CmdBuilder) *Materializer {
	if binary == "" {
		binary = DefaultBinary
	}
	if cmdBuilder == nil {
		cmdBuilder = func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
			return exec.CommandContext(ctx, name, arg...), func() {}
		}
	}
	return &Materializer{log: logger, binary: binary, cmdBuilder: cmdBuilder}
}

// Args returns the generator arguments writing to configPath and
// accountsPath. Overrides follow the flags as positional "section.key value"
// pairs.
func Args(configPath, accountsPath string, insecure bool, opts Options) []string {
	args := []string{
		"--debug", "--non-admin", "--convert-to-raw",
		"--out", configPath,
		"--create-accounts-file", accountsPath,
	}
	for _, key := range opts.Removals {
		args = append(args, "--remove", key)
	}
	if insecure {
		args = append(args, "--insecure")
	}
	for _, o := range opts.Overrides {
		args = append(args, o.Name(), o.Value)
	}
	return args
}

// Materialize generates the configuration and accounts files for creds.
// The credentials reach the generator only through its environment. On
// error no files are left behind.
func (m *Materializer) Materialize(ctx context.Context, creds *cloudconfig.Credentials, opts Options) (*Materialized, error) {
	out := &Materialized{}
	var err error
	if out.ConfigPath, err = createTemp(opts.Dir, configPattern); err != nil {
		return nil, err
	}
	if out.AccountsPath, err = createTemp(opts.Dir, accountsPattern); err != nil {
		_ = out.Cleanup()
		return nil, err
	}

	if err := m.generate(ctx, creds, out, opts); err != nil {
		_ = out.Cleanup()
		return nil, err
	}
	return out, nil
}

func (m *Materializer) generate(ctx context.Context, creds *cloudconfig.Credentials, out *Materialized, opts Options) error {
	args := Args(out.ConfigPath, out.AccountsPath, creds.Insecure, opts)
	cmd, cleanup := m.cmdBuilder(ctx, m.binary, args...)
	defer cleanup()

	base := cmd.Env
	if base == nil {
		base = os.Environ()
	}
	cmd.Env = telemetry.InstrumentEnvironment(ctx, creds.Environ(base))

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	m.log.Info("generating tempest configuration", "command", runner.CommandLine(m.binary, args...), "cloud", creds.String())
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to generate tempest configuration: %w: %s", err, strings.TrimSpace(output.String()))
	}
	m.log.Debug("generator output", "output", output.String())

	info, err := os.Stat(out.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to read generated configuration: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("generator produced an empty configuration at %s", out.ConfigPath)
	}
	m.log.Info("tempest configuration ready", "config", out.ConfigPath, "accounts", out.AccountsPath)
	return nil
}

func createTemp(dir, pattern string) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", pattern, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to create %s: %w", pattern, err)
	}
	return f.Name(), nil
}
