package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	pushgateway "github.com/vexxhost/tempest-pushgateway"
	"github.com/vexxhost/tempest-pushgateway/exitcodes"
	"github.com/vexxhost/tempest-pushgateway/flags"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

// EnvFileVar names the dotenv file loaded before flags are parsed.
const EnvFileVar = "TEMPEST_ENV_FILE"

func main() {
	if err := loadEnvFile(os.Getenv(EnvFileVar)); err != nil {
		log.Crit("Failed to load env file", "message", err)
	}

	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "tempest-pushgateway"
	app.Usage = "Run Tempest tests and push the results to a Prometheus Pushgateway"
	app.Description = "tempest-pushgateway runs the given Tempest tests once and publishes per-test results"
	app.ArgsUsage = "TEST [TEST...]"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.Failure))
		}
	}
	return app
}

// loadEnvFile loads path, or .env when path is empty. A missing default
// file is not an error; variables already set are never overridden.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := pushgateway.NewConfig(ctx, log)
	if err != nil {
		return nil, pushgateway.NewRuntimeError("config", err)
	}

	cfg.Log.Debug("Config", "tests", cfg.Tests, "gateway", cfg.GatewayURL, "workdir", cfg.WorkDir)

	app, err := pushgateway.New(cfg, Version, closeApp)
	if err != nil {
		return nil, err
	}

	return app, nil
}
