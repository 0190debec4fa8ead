package cli

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runResult struct {
	code   int
	stdout string
	stderr string
}

func newTestApp(t *testing.T) (*App, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	return &App{
		Stdout:         &stdout,
		Stderr:         &stderr,
		ConfigDir:      t.TempDir(),
		SkipLoggerInit: true,
	}, &stdout, &stderr
}

func run(t *testing.T, app *App, stdout, stderr *bytes.Buffer, args ...string) runResult {
	t.Helper()
	stdout.Reset()
	stderr.Reset()
	code := app.Run(args)
	return runResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestHelpAndUnknown(t *testing.T) {
	app, stdout, stderr := newTestApp(t)

	res := run(t, app, stdout, stderr, "help")
	assert.Equal(t, ExitOK, res.code)
	assert.Contains(t, res.stdout, "Subcommands:")
	assert.Contains(t, res.stdout, "print")

	res = run(t, app, stdout, stderr)
	assert.Equal(t, ExitUsage, res.code)

	res = run(t, app, stdout, stderr, "frobnicate")
	assert.Equal(t, ExitUsage, res.code)
	assert.Contains(t, res.stderr, `unknown subcommand "frobnicate"`)

	res = run(t, app, stdout, stderr, "--version")
	assert.Equal(t, ExitOK, res.code)
	assert.Contains(t, res.stdout, "2.0.0")
}

func TestAddListDoneRemove(t *testing.T) {
	app, stdout, stderr := newTestApp(t)

	res := run(t, app, stdout, stderr, "add", "Buy", "milk", "--estimate", "15m", "--category", "Home")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Added #1 Buy milk")

	res = run(t, app, stdout, stderr, "add", "Ship release", "--priority", "high", "--date", "2024-01-04")
	require.Equal(t, ExitOK, res.code, res.stderr)

	res = run(t, app, stdout, stderr, "ls")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Buy milk")
	assert.Contains(t, res.stdout, "Ship release")

	res = run(t, app, stdout, stderr, "ls", "--category", "Home")
	require.Equal(t, ExitOK, res.code)
	assert.Contains(t, res.stdout, "Buy milk")
	assert.NotContains(t, res.stdout, "Ship release")

	res = run(t, app, stdout, stderr, "done", "1")
	require.Equal(t, ExitOK, res.code, res.stderr)
	res = run(t, app, stdout, stderr, "ls")
	assert.Contains(t, res.stdout, "[x]")

	res = run(t, app, stdout, stderr, "rm", "2")
	require.Equal(t, ExitOK, res.code, res.stderr)
	res = run(t, app, stdout, stderr, "ls")
	assert.NotContains(t, res.stdout, "Ship release")

	res = run(t, app, stdout, stderr, "rm", "2")
	assert.Equal(t, ExitError, res.code)
	assert.Contains(t, res.stderr, "not found")
}

func TestAddValidation(t *testing.T) {
	app, stdout, stderr := newTestApp(t)

	testCases := []struct {
		name string
		args []string
	}{
		{"NoTitle", []string{"add"}},
		{"BadPriority", []string{"add", "x", "--priority", "urgent"}},
		{"BadDate", []string{"add", "x", "--date", "tomorrow"}},
		{"UnknownFlag", []string{"add", "x", "--nope"}},
		{"DoneNoID", []string{"done"}},
		{"DoneBadID", []string{"done", "abc"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := run(t, app, stdout, stderr, tc.args...)
			assert.Equal(t, ExitUsage, res.code)
		})
	}
}

func TestListEmpty(t *testing.T) {
	app, stdout, stderr := newTestApp(t)
	res := run(t, app, stdout, stderr, "ls")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "No tasks!")
}

func TestPrintToFile(t *testing.T) {
	app, stdout, stderr := newTestApp(t)
	res := run(t, app, stdout, stderr, "add", "Water plants")
	require.Equal(t, ExitOK, res.code, res.stderr)

	out := filepath.Join(t.TempDir(), "out", "receipt.bin")
	res = run(t, app, stdout, stderr, "print", "--out", out)
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Receipt saved to")

	buf, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf, []byte{0x1B, 0x40}))
	assert.True(t, bytes.HasSuffix(buf, []byte{0x1D, 0x56, 0x42, 0x03}))
	assert.Contains(t, string(buf), "[ ] WATER PLANTS")
	assert.Contains(t, string(buf), "TBD")
}

func TestPrintWithoutPrinter(t *testing.T) {
	app, stdout, stderr := newTestApp(t)
	t.Setenv("TODO_RECEIPTS_PRINTER", "")

	res := run(t, app, stdout, stderr, "print")
	assert.Equal(t, ExitError, res.code)
	assert.Contains(t, res.stderr, "no printer specified")
}

func TestPrintOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		data, _ := io.ReadAll(conn)
		conn.Close()
		received <- data
	}()

	app, stdout, stderr := newTestApp(t)
	res := run(t, app, stdout, stderr, "add", "Call the bank", "-e", "10m")
	require.Equal(t, ExitOK, res.code, res.stderr)

	res = run(t, app, stdout, stderr, "print", "-p", "tcp://"+ln.Addr().String())
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Receipt sent to printer")

	select {
	case got := <-received:
		assert.Contains(t, string(got), "[ ] CALL THE BANK")
		assert.Contains(t, string(got), "10m")
	case <-time.After(5 * time.Second):
		t.Fatal("printer did not receive the job")
	}
}

func TestConfigSetShowReset(t *testing.T) {
	app, stdout, stderr := newTestApp(t)
	t.Setenv("TODO_RECEIPTS_PRINTER", "")

	res := run(t, app, stdout, stderr, "config", "--set", "printer=usb:0525:a700")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Updated printer = usb:0525:a700")

	res = run(t, app, stdout, stderr, "config", "--show")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "usb:0525:a700")

	res = run(t, app, stdout, stderr, "config", "--set", "nonsense")
	assert.Equal(t, ExitUsage, res.code)

	res = run(t, app, stdout, stderr, "config", "--set", "colour=blue")
	assert.Equal(t, ExitError, res.code)
	assert.Contains(t, res.stderr, "unknown config key")

	res = run(t, app, stdout, stderr, "config", "--reset")
	require.Equal(t, ExitOK, res.code, res.stderr)

	res = run(t, app, stdout, stderr, "config")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "(not set)")
	assert.True(t, strings.Contains(res.stdout, "Valid keys:"))
}
