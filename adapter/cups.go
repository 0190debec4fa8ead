package adapter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nixxel-company-limited/todo-receipts/logger"
	"go.uber.org/zap"
)

// commandRunner runs a program and returns its combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CUPSTransport submits jobs to a CUPS destination through lp.
type CUPSTransport struct {
	spec    CUPS
	run     commandRunner
	tempDir string
	logger  *zap.Logger
}

// NewCUPSTransport creates a transport for spec.
func NewCUPSTransport(spec CUPS) *CUPSTransport {
	return &CUPSTransport{
		spec:    spec,
		run:     execRunner,
		tempDir: os.TempDir(),
		logger:  logger.Named("cups"),
	}
}

// String returns the destination name.
func (t *CUPSTransport) String() string {
	return t.spec.Name
}

// Deliver checks that the destination exists, spools data to a temp file and
// submits it as a raw job. The temp file is removed whether or not lp
// succeeds.
func (t *CUPSTransport) Deliver(ctx context.Context, data []byte) error {
	if err := checkCUPSName(t.spec.Name); err != nil {
		return err
	}

	// lp reports a misleading "No such file or directory" for unknown
	// destinations, so check first
	if _, err := t.run(ctx, "lpstat", "-p", t.spec.Name); err != nil {
		return &DestinationNotFoundError{
			Name:  t.spec.Name,
			Known: t.knownDestinations(ctx),
		}
	}

	path := filepath.Join(t.tempDir, fmt.Sprintf("todo-receipt-%s.bin", uuid.NewString()))
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.logger.Debug("Failed to remove spool file", zap.String("file", path), zap.Error(err))
		}
	}()

	if err := writeSpoolFile(path, data); err != nil {
		return err
	}

	output, err := t.run(ctx, "lp", "-d", t.spec.Name, "-o", "raw", path)
	if err != nil {
		return fmt.Errorf("lp failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	t.logger.Debug("CUPS job submitted",
		zap.String("printer", t.spec.Name),
		zap.String("output", strings.TrimSpace(string(output))))
	return nil
}

// knownDestinations lists destination names for diagnostics. Failures yield
// an empty list.
func (t *CUPSTransport) knownDestinations(ctx context.Context) []string {
	dests, err := listDestinations(ctx, t.run)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(dests))
	for _, d := range dests {
		names = append(names, d.Name)
	}
	return names
}

func writeSpoolFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create spool file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write spool file: %w", err)
	}
	return nil
}

// Destination is a CUPS print queue.
type Destination struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ListDestinations returns the queues known to CUPS.
func ListDestinations(ctx context.Context) ([]Destination, error) {
	return listDestinations(ctx, execRunner)
}

func listDestinations(ctx context.Context, run commandRunner) ([]Destination, error) {
	output, err := run(ctx, "lpstat", "-p")
	if err != nil {
		return nil, fmt.Errorf("lpstat failed: %w", err)
	}
	return parseLpstat(string(output)), nil
}

// parseLpstat reads lines such as "printer NAME is idle.  enabled since ...".
func parseLpstat(output string) []Destination {
	var dests []Destination
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "printer ") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		status := "unknown"
		if len(parts) >= 4 {
			status = strings.TrimSuffix(strings.Join(parts[2:], " "), ".")
		}
		dests = append(dests, Destination{Name: parts[1], Status: status})
	}
	return dests
}

// DestinationNotFoundError reports an unknown CUPS destination together with
// the destinations that do exist.
type DestinationNotFoundError struct {
	Name  string
	Known []string
}

func (e *DestinationNotFoundError) Error() string {
	msg := fmt.Sprintf("Printer %q not found in CUPS.", e.Name)
	if len(e.Known) == 0 {
		return msg + "\nNo printers are configured. Add one via your system printer settings."
	}
	return msg + "\nAvailable printers: " + strings.Join(e.Known, ", ")
}

// IsDestinationNotFound reports whether err is a DestinationNotFoundError.
func IsDestinationNotFound(err error) bool {
	var nf *DestinationNotFoundError
	return errors.As(err, &nf)
}
