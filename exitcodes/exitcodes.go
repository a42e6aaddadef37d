// Package exitcodes defines the exit codes used by tempest-pushgateway.
//
// Failing tests are reported through the pushed metrics, not the exit code:
//
// * Success (0): tempest ran and the results were pushed
// * Failure (1): credentials, configuration, tempest, decoding or the push failed
package exitcodes

const (
	Success = 0
	Failure = 1
)
