package pushgateway

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/vexxhost/tempest-pushgateway/cloudconfig"
	"github.com/vexxhost/tempest-pushgateway/flags"
)

// Config holds the application configuration
type Config struct {
	Tests             []string                // Test identifiers passed to tempest's whitelist
	GatewayURL        string                  // Pushgateway address
	HorizonURL        string                  // Dashboard URL, empty to skip the dashboard overrides
	TempestBinary     string
	TempestconfBinary string
	WorkDir           string                  // Working directory for tempest and the temp files
	Passthrough       bool                    // Tolerate non-subunit bytes in tempest's stdout
	Summary           bool                    // Print the results table
	Credentials       cloudconfig.Credentials // Explicit OpenStack values from flags and OS_* variables
	CloudsPaths       []string                // clouds.yaml lookup order
	Log               log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckArgs(ctx); err != nil {
		return nil, err
	}

	workDir := ctx.String(flags.WorkDir.Name)
	if workDir != "" {
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for work directory '%s': %w", workDir, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("work directory '%s': %w", abs, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("work directory '%s' is not a directory", abs)
		}
		workDir = abs
	}

	return &Config{
		Tests:             ctx.Args().Slice(),
		GatewayURL:        ctx.String(flags.Prometheus.Name),
		HorizonURL:        ctx.String(flags.HorizonURL.Name),
		TempestBinary:     ctx.String(flags.TempestBinary.Name),
		TempestconfBinary: ctx.String(flags.TempestconfBinary.Name),
		WorkDir:           workDir,
		Passthrough:       ctx.Bool(flags.Passthrough.Name),
		Summary:           ctx.Bool(flags.Summary.Name),
		Credentials: cloudconfig.Credentials{
			Cloud:              ctx.String(flags.OSCloud.Name),
			AuthURL:            ctx.String(flags.OSAuthURL.Name),
			Username:           ctx.String(flags.OSUsername.Name),
			Password:           ctx.String(flags.OSPassword.Name),
			ProjectName:        ctx.String(flags.OSProjectName.Name),
			ProjectID:          ctx.String(flags.OSProjectID.Name),
			UserDomainName:     ctx.String(flags.OSUserDomainName.Name),
			ProjectDomainName:  ctx.String(flags.OSProjectDomainName.Name),
			RegionName:         ctx.String(flags.OSRegionName.Name),
			Interface:          ctx.String(flags.OSInterface.Name),
			IdentityAPIVersion: ctx.String(flags.OSIdentityAPIVersion.Name),
			CACert:             ctx.String(flags.OSCACert.Name),
			Insecure:           ctx.Bool(flags.Insecure.Name),
		},
		CloudsPaths: cloudconfig.DefaultPaths(os.Getenv),
		Log:         log,
	}, nil
}
