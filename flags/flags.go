package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

const EnvVarPrefix = "TEMPEST"

var (
	Prometheus = &cli.StringFlag{
		Name:    "prometheus",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROMETHEUS"),
		Usage:   "Address of the Prometheus Pushgateway (eg. 'pushgateway:9091')",
	}
	HorizonURL = &cli.StringFlag{
		Name:    "horizon-url",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HORIZON_URL"),
		Usage:   "Horizon dashboard URL; enables the dashboard tests when set",
	}
	TempestBinary = &cli.StringFlag{
		Name:    "tempest-binary",
		Value:   "tempest",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEMPEST_BINARY"),
		Usage:   "Path to the tempest executable",
	}
	TempestconfBinary = &cli.StringFlag{
		Name:    "tempestconf-binary",
		Value:   "discover-tempest-config",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEMPESTCONF_BINARY"),
		Usage:   "Path to python-tempestconf's discover-tempest-config",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKDIR"),
		Usage:   "Directory tempest runs in and where temporary files are written. Defaults to the system temp dir",
	}
	Passthrough = &cli.BoolFlag{
		Name:    "passthrough",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PASSTHROUGH"),
		Usage:   "Tolerate non-subunit output from tempest instead of failing the run",
	}
	Summary = &cli.BoolFlag{
		Name:    "summary",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUMMARY"),
		Usage:   "Print a table of the test results",
	}
)

// OpenStack connection flags. These read the standard OS_* variables.
var (
	OSCloud = &cli.StringFlag{
		Name:    "os-cloud",
		EnvVars: []string{"OS_CLOUD"},
		Usage:   "Named cloud to connect to from clouds.yaml",
	}
	OSAuthURL = &cli.StringFlag{
		Name:    "os-auth-url",
		EnvVars: []string{"OS_AUTH_URL"},
		Usage:   "Identity service endpoint",
	}
	OSUsername = &cli.StringFlag{
		Name:    "os-username",
		EnvVars: []string{"OS_USERNAME"},
		Usage:   "Username",
	}
	OSPassword = &cli.StringFlag{
		Name:    "os-password",
		EnvVars: []string{"OS_PASSWORD"},
		Usage:   "Password",
	}
	OSProjectName = &cli.StringFlag{
		Name:    "os-project-name",
		EnvVars: []string{"OS_PROJECT_NAME"},
		Usage:   "Project name",
	}
	OSProjectID = &cli.StringFlag{
		Name:    "os-project-id",
		EnvVars: []string{"OS_PROJECT_ID"},
		Usage:   "Project ID",
	}
	OSUserDomainName = &cli.StringFlag{
		Name:    "os-user-domain-name",
		EnvVars: []string{"OS_USER_DOMAIN_NAME"},
		Usage:   "Domain of the user",
	}
	OSProjectDomainName = &cli.StringFlag{
		Name:    "os-project-domain-name",
		EnvVars: []string{"OS_PROJECT_DOMAIN_NAME"},
		Usage:   "Domain of the project",
	}
	OSRegionName = &cli.StringFlag{
		Name:    "os-region-name",
		EnvVars: []string{"OS_REGION_NAME"},
		Usage:   "Region",
	}
	OSInterface = &cli.StringFlag{
		Name:    "os-interface",
		EnvVars: []string{"OS_INTERFACE"},
		Usage:   "Endpoint interface (public, internal or admin)",
	}
	OSIdentityAPIVersion = &cli.StringFlag{
		Name:    "os-identity-api-version",
		EnvVars: []string{"OS_IDENTITY_API_VERSION"},
		Usage:   "Identity API version",
	}
	OSCACert = &cli.StringFlag{
		Name:    "os-cacert",
		EnvVars: []string{"OS_CACERT"},
		Usage:   "CA bundle used to verify TLS endpoints",
	}
	Insecure = &cli.BoolFlag{
		Name:    "insecure",
		EnvVars: []string{"OS_INSECURE"},
		Usage:   "Skip TLS verification of OpenStack endpoints",
	}
)

var cloudFlags = []cli.Flag{
	OSCloud,
	OSAuthURL,
	OSUsername,
	OSPassword,
	OSProjectName,
	OSProjectID,
	OSUserDomainName,
	OSProjectDomainName,
	OSRegionName,
	OSInterface,
	OSIdentityAPIVersion,
	OSCACert,
	Insecure,
}

var optionalFlags = []cli.Flag{
	Prometheus,
	HorizonURL,
	TempestBinary,
	TempestconfBinary,
	WorkDir,
	Passthrough,
	Summary,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, cloudFlags...)
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = optionalFlags
}

// CheckArgs validates the positional test identifiers.
func CheckArgs(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("at least one test is required")
	}
	for i, arg := range ctx.Args().Slice() {
		if arg == "" {
			return fmt.Errorf("test %d is empty", i+1)
		}
	}
	return nil
}
