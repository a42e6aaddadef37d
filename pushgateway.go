// Package pushgateway runs tempest and publishes the per-test results to a
// Prometheus Pushgateway.
package pushgateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum/go-ethereum/log"

	"github.com/vexxhost/tempest-pushgateway/cloudconfig"
	"github.com/vexxhost/tempest-pushgateway/metrics"
	"github.com/vexxhost/tempest-pushgateway/results"
	"github.com/vexxhost/tempest-pushgateway/runner"
	"github.com/vexxhost/tempest-pushgateway/tempestconf"
)

// Stage names used for spans and errors.
const (
	StageCredentials = "credentials"
	StageConfig      = "tempest config"
	StageTempest     = "tempest"
	StageTranslate   = "translate"
	StagePush        = "push"
)

// App implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &App{}

// App performs a single tempest run and pushes its results.
type App struct {
	config  *Config
	version string

	loader       *cloudconfig.Loader
	materializer *tempestconf.Materializer
	executor     *runner.Executor
	publisher    *metrics.Publisher
	formatter    ResultFormatter
	diagnostics  io.Writer
	tracer       trace.Tracer

	report  *Report
	stopped atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// Option customizes an App.
type Option func(*App)

// WithMaterializer replaces the configuration generator.
func WithMaterializer(m *tempestconf.Materializer) Option {
	return func(a *App) { a.materializer = m }
}

// WithExecutor replaces the tempest executor.
func WithExecutor(e *runner.Executor) Option {
	return func(a *App) { a.executor = e }
}

// WithPublisher replaces the Pushgateway publisher.
func WithPublisher(p *metrics.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithFormatter replaces the summary formatter.
func WithFormatter(f ResultFormatter) Option {
	return func(a *App) { a.formatter = f }
}

// WithDiagnostics sets where details of unsuccessful tests are written.
func WithDiagnostics(w io.Writer) Option {
	return func(a *App) { a.diagnostics = w }
}

// New creates the application. An unset gateway fails here, before tempest
// is started.
func New(config *Config, version string, shutdownCallback func(error), opts ...Option) (*App, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating app with config",
		"tests", len(config.Tests),
		"gateway", config.GatewayURL,
		"horizon", config.HorizonURL,
		"workdir", config.WorkDir)

	a := &App{
		config:           config,
		version:          version,
		loader:           cloudconfig.NewLoader(config.Log, config.CloudsPaths),
		diagnostics:      os.Stderr,
		tracer:           otel.Tracer("tempest-pushgateway"),
		shutdownCallback: shutdownCallback,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.publisher == nil {
		publisher, err := metrics.NewPublisher(config.Log, config.GatewayURL)
		if err != nil {
			return nil, NewRuntimeError(StagePush, err)
		}
		a.publisher = publisher
	}
	if a.materializer == nil {
		a.materializer = tempestconf.NewMaterializer(config.Log, config.TempestconfBinary, nil)
	}
	if a.executor == nil {
		a.executor = runner.NewExecutor(config.Log, config.TempestBinary, config.WorkDir, nil, nil)
	}
	if a.formatter == nil {
		a.formatter = NewConsoleResultFormatter(config.Log, nil)
	}
	return a, nil
}

// Start performs the run and then asks the application to shut down.
// Start implements the cliapp.Lifecycle interface.
func (a *App) Start(ctx context.Context) error {
	a.config.Log.Info("Starting tempest-pushgateway", "version", a.version)

	report, err := a.Run(ctx)
	if err != nil {
		a.config.Log.Error("Run failed", "err", err)
		return err
	}
	a.report = report

	go func() {
		a.shutdownCallback(nil)
	}()
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (a *App) Stop(ctx context.Context) error {
	if a.stopped.Swap(true) {
		return nil
	}
	a.config.Log.Info("tempest-pushgateway stopped")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (a *App) Stopped() bool {
	return a.stopped.Load()
}

// Report returns the result of the last successful run.
func (a *App) Report() *Report {
	return a.report
}

// Run resolves credentials, generates the tempest configuration, runs the
// tests, translates the result stream into a fresh registry and pushes it.
// Every stage must succeed before the next starts; nothing is pushed unless
// the whole stream was translated.
func (a *App) Run(ctx context.Context) (*Report, error) {
	runID := uuid.New().String()
	logger := a.config.Log.New("run_id", runID)
	start := time.Now()

	ctx, span := a.tracer.Start(ctx, "tempest-pushgateway run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("tests", len(a.config.Tests)),
	))
	defer span.End()

	var creds *cloudconfig.Credentials
	err := a.stage(ctx, StageCredentials, func(ctx context.Context) (err error) {
		creds, err = a.loader.Resolve(a.config.Credentials)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info("resolved credentials", "cloud", creds.String())

	var conf *tempestconf.Materialized
	err = a.stage(ctx, StageConfig, func(ctx context.Context) (err error) {
		conf, err = a.materializer.Materialize(ctx, creds, tempestconf.Options{
			Dir:       a.config.WorkDir,
			Overrides: tempestconf.Overrides(a.config.HorizonURL),
			Removals:  tempestconf.Removals(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conf.Cleanup(); err != nil {
			logger.Warn("failed to remove tempest configuration", "err", err)
		}
	}()

	var out *runner.Output
	err = a.stage(ctx, StageTempest, func(ctx context.Context) (err error) {
		out, err = a.executor.Run(ctx, conf.ConfigPath, a.config.Tests)
		return err
	})
	if err != nil {
		return nil, err
	}

	reg := metrics.NewRegistry(logger)
	report := &Report{RunID: runID, ExitCode: out.ExitCode}
	err = a.stage(ctx, StageTranslate, func(ctx context.Context) (err error) {
		report.Results, err = results.Translate(bytes.NewReader(out.Stdout), reg, logger, a.translateOptions(logger))
		return err
	})
	if err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)

	if a.config.Summary {
		if err := a.formatter.FormatResults(report); err != nil {
			logger.Warn("failed to print results", "err", err)
		}
	}

	err = a.stage(ctx, StagePush, func(ctx context.Context) error {
		return a.publisher.Publish(ctx, reg)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Run completed", "tests", len(report.Results), "passed", report.Passed(), "tempest_exit", report.ExitCode, "duration", report.Duration)
	return report, nil
}

func (a *App) translateOptions(logger log.Logger) results.Options {
	opts := results.Options{Diagnostics: a.diagnostics}
	if a.config.Passthrough {
		opts.Passthrough = func(b []byte) {
			logger.Debug("non-subunit output", "text", stripansi.Strip(string(b)))
		}
	}
	return opts
}

// stage runs fn in its own span and wraps its error with the stage name.
func (a *App) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := a.tracer.Start(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return NewRuntimeError(name, err)
	}
	return nil
}
