// Package convert turns recognized markdown into the deliverable docx.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"granth/internal/config"
	"granth/internal/ledger"
	"granth/internal/logging"
	"granth/internal/services"
	"granth/internal/services/pandoc"
	"granth/internal/stage"
)

const stageName = ledger.StageConvert

// DocumentConverter is the converter surface this handler needs.
type DocumentConverter interface {
	Convert(ctx context.Context, mdPath, docxPath string) error
	Binary() string
}

// Handler converts recognized markdown files.
type Handler struct {
	cfg       *config.Config
	converter DocumentConverter
	logger    *slog.Logger
}

// NewHandler constructs the convert handler with the default converter.
func NewHandler(cfg *config.Config, logger *slog.Logger) *Handler {
	return NewHandlerWithConverter(cfg, pandoc.NewConverter(cfg.Converter), logger)
}

// NewHandlerWithConverter constructs the handler around a custom converter
// (used by tests).
func NewHandlerWithConverter(cfg *config.Config, converter DocumentConverter, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		converter: converter,
		logger:    logging.NewComponentLogger(logger, stageName),
	}
}

func (h *Handler) Stage() string { return stageName }

// Execute converts the recognized markdown next to itself as a docx.
func (h *Handler) Execute(ctx context.Context, doc *ledger.Document) error {
	if doc.RecognizedFile == "" {
		return services.Wrap(services.ErrValidation, stageName, "convert", "document has no recognized markdown", nil)
	}

	target := strings.TrimSuffix(doc.RecognizedFile, filepath.Ext(doc.RecognizedFile)) + ".docx"
	if err := h.converter.Convert(ctx, doc.RecognizedFile, target); err != nil {
		return err
	}

	doc.ConvertedFile = target
	h.logger.InfoContext(ctx, "converted document",
		logging.String("path", target))
	return nil
}

// HealthCheck verifies the converter binary is on PATH.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	binary := h.converter.Binary()
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(stageName, fmt.Sprintf("converter %q not found on PATH", binary))
	}
	return stage.Healthy(stageName)
}
