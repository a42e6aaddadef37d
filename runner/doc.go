// Package runner executes tempest against a generated configuration.
//
// The main components are:
//   - Executor: builds the `tempest run` command line and runs it as a
//     blocking subprocess with buffered output
//   - WriteWhitelist: writes the selected test identifiers to a temp file
//
// A non-zero exit status is reported in Output rather than as an error so
// that partial result streams are still translated.
package runner
