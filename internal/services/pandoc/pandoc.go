// Package pandoc shells out to the pandoc binary to turn recognized
// markdown into a docx document.
package pandoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"granth/internal/config"
	"granth/internal/services"
)

const stageName = "convert"

// commandContext is a seam so tests can observe or replace invocations.
var commandContext = exec.CommandContext

// Converter runs markdown to docx conversions.
type Converter struct {
	binary  string
	timeout time.Duration
}

// NewConverter constructs a converter from configuration.
func NewConverter(cfg config.Converter) *Converter {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = "pandoc"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Converter{binary: binary, timeout: timeout}
}

// Binary returns the configured executable name.
func (c *Converter) Binary() string {
	return c.binary
}

// Convert renders mdPath into a docx at docxPath. The output directory is
// created if needed.
func (c *Converter) Convert(ctx context.Context, mdPath, docxPath string) error {
	if _, err := os.Stat(mdPath); err != nil {
		return services.Wrap(services.ErrValidation, stageName, "convert", mdPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(docxPath), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "convert", "create output directory", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := commandContext(runCtx, c.binary,
		"--from", "markdown",
		"--to", "docx",
		"--output", docxPath,
		mdPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return classifyRunError(runCtx, err, stderr.String())
	}
	if info, err := os.Stat(docxPath); err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrPermanent, stageName, "convert", "converter produced no output", err)
	}
	return nil
}

// classifyRunError maps converter failures to the error taxonomy. A missing
// binary is a configuration problem; an exit status means this document's
// markdown is unconvertible and will fail identically on retry.
func classifyRunError(ctx context.Context, err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	if detail == "" {
		detail = err.Error()
	}
	if errors.Is(err, exec.ErrNotFound) {
		return services.Wrap(services.ErrConfiguration, stageName, "convert", "converter binary not found", err)
	}
	if ctx.Err() != nil {
		return services.Wrap(services.ErrTimeout, stageName, "convert", "conversion timed out", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return services.Wrap(services.ErrPermanent, stageName, "convert",
			fmt.Sprintf("converter exited %d: %s", exitErr.ExitCode(), detail), nil)
	}
	return services.Wrap(services.ErrTransient, stageName, "convert", detail, err)
}
