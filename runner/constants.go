package runner

// Tempest command line
const (
	// DefaultTempestBinary is the tempest executable looked up in PATH
	DefaultTempestBinary = "tempest"

	RunCommand        = "run"
	DebugFlag         = "--debug"
	SubunitFlag       = "--subunit"
	ConcurrencyFlag   = "--concurrency=1"
	ConfigFileFlag    = "--config-file"
	WhitelistFileFlag = "--whitelist-file"

	whitelistPattern = "whitelist-*.txt"
)
