package runner

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// successPacket is a bare subunit v2 success packet.
const successPacket = "b32003083338a379"

func helperBuilder(mode string) CmdBuilder {
	return func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, arg...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "HELPER_MODE="+mode)
		return cmd, func() {}
	}
}

// TestHelperProcess is not a real test; it stands in for tempest when
// executed by helperBuilder.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}

	switch os.Getenv("HELPER_MODE") {
	case "echo":
		for _, a := range args {
			fmt.Fprintln(os.Stdout, a)
		}
		for i, a := range args {
			if a == WhitelistFileFlag && i+1 < len(args) {
				data, _ := os.ReadFile(args[i+1])
				fmt.Fprint(os.Stderr, string(data))
			}
		}
		os.Exit(0)
	case "subunit":
		b, _ := hex.DecodeString(successPacket)
		_, _ = os.Stdout.Write(b)
		os.Exit(0)
	case "fail":
		b, _ := hex.DecodeString(successPacket)
		_, _ = os.Stdout.Write(b)
		fmt.Fprintln(os.Stderr, "ERROR: keystone unreachable")
		os.Exit(3)
	}
	os.Exit(2)
}

func discard() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func TestRunCommandLine(t *testing.T) {
	dir := t.TempDir()
	e := NewExecutor(discard(), "", dir, nil, helperBuilder("echo"))

	out, err := e.Run(context.Background(), "/tmp/tempest.conf", []string{"tempest.api.a", "tempest.api.b"})
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)

	lines := strings.Split(strings.TrimSpace(string(out.Stdout)), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, []string{
		"tempest", "run", "--debug", "--subunit", "--concurrency=1",
		"--config-file", "/tmp/tempest.conf", "--whitelist-file",
	}, lines[:8])

	whitelist := lines[8]
	assert.Equal(t, dir, filepath.Dir(whitelist))
	assert.Equal(t, "tempest.api.a\ntempest.api.b", string(out.Stderr))
	assert.NoFileExists(t, whitelist, "whitelist is removed after the run")
}

func TestRunBuffersStdout(t *testing.T) {
	e := NewExecutor(discard(), "tempest", t.TempDir(), nil, helperBuilder("subunit"))

	out, err := e.Run(context.Background(), "tempest.conf", []string{"test"})
	require.NoError(t, err)
	assert.Equal(t, successPacket, hex.EncodeToString(out.Stdout))
	assert.Empty(t, out.Stderr)
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	e := NewExecutor(discard(), "tempest", t.TempDir(), nil, helperBuilder("fail"))

	out, err := e.Run(context.Background(), "tempest.conf", []string{"test"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.ExitCode)
	assert.Equal(t, successPacket, hex.EncodeToString(out.Stdout))
	assert.Contains(t, string(out.Stderr), "keystone unreachable")
}

func TestRunMissingBinary(t *testing.T) {
	e := NewExecutor(discard(), filepath.Join(t.TempDir(), "no-such-tempest"), t.TempDir(), nil, nil)

	_, err := e.Run(context.Background(), "tempest.conf", []string{"test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to run")
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExecutor(discard(), "tempest", t.TempDir(), nil, helperBuilder("subunit"))
	_, err := e.Run(ctx, "tempest.conf", []string{"test"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteWhitelist(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteWhitelist(dir, []string{"a", "b", "c"})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc", string(data))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "whitelist-"))

	_, err = WriteWhitelist(dir, nil)
	assert.Error(t, err)
}

func TestCommandLine(t *testing.T) {
	assert.Equal(t, "tempest run --config-file '/tmp/my conf'", CommandLine("tempest", "run", "--config-file", "/tmp/my conf"))
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(8)
	_, _ = b.Write([]byte("0123"))
	assert.False(t, b.Truncated())
	_, _ = b.Write([]byte("456789"))
	assert.Equal(t, "23456789", string(b.Bytes()))
	assert.True(t, b.Truncated())
}
