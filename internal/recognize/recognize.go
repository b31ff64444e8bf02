// Package recognize runs a staged PDF through the OCR service and stores
// the recognized markdown alongside it.
package recognize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"granth/internal/config"
	"granth/internal/fileutil"
	"granth/internal/ledger"
	"granth/internal/logging"
	"granth/internal/services"
	"granth/internal/services/ocr"
	"granth/internal/stage"
)

const stageName = ledger.StageRecognize

// Recognizer is the OCR surface this handler needs.
type Recognizer interface {
	Recognize(ctx context.Context, pdfPath string) ([]byte, error)
}

// Handler OCRs staged PDFs.
type Handler struct {
	cfg        *config.Config
	recognizer Recognizer
	logger     *slog.Logger
}

// NewHandler constructs the recognize handler with the default OCR client.
func NewHandler(cfg *config.Config, logger *slog.Logger) *Handler {
	return NewHandlerWithRecognizer(cfg, ocr.NewClient(cfg.OCR), logger)
}

// NewHandlerWithRecognizer constructs the handler around a custom OCR
// implementation (used by tests).
func NewHandlerWithRecognizer(cfg *config.Config, recognizer Recognizer, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:        cfg,
		recognizer: recognizer,
		logger:     logging.NewComponentLogger(logger, stageName),
	}
}

func (h *Handler) Stage() string { return stageName }

// Execute verifies the staged PDF still matches its recorded checksum, then
// submits it for recognition and writes the markdown result.
func (h *Handler) Execute(ctx context.Context, doc *ledger.Document) error {
	if doc.RawFile == "" {
		return services.Wrap(services.ErrValidation, stageName, "recognize", "document has no staged pdf", nil)
	}
	checksum, err := fileutil.HashFile(doc.RawFile)
	if err != nil {
		return services.Wrap(services.ErrValidation, stageName, "recognize", "staged pdf unreadable", err)
	}
	if doc.Checksum != "" && checksum != doc.Checksum {
		return services.Wrap(services.ErrValidation, stageName, "recognize",
			fmt.Sprintf("staged pdf changed since download (%s)", doc.RawFile), nil)
	}

	markdown, err := h.recognizer.Recognize(ctx, doc.RawFile)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(markdown))) == 0 {
		return services.Wrap(services.ErrPermanent, stageName, "recognize", "service returned empty markdown", nil)
	}

	target := strings.TrimSuffix(doc.RawFile, filepath.Ext(doc.RawFile)) + ".md"
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, markdown, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "recognize", "write markdown", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "recognize", "finalize markdown", err)
	}

	doc.RecognizedFile = target
	h.logger.InfoContext(ctx, "recognized document",
		logging.String("path", target),
		logging.Int("bytes", len(markdown)))
	return nil
}

// HealthCheck verifies the OCR credentials are configured.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(h.cfg.OCR.APIKey) == "" {
		return stage.Unhealthy(stageName, "ocr api key not configured")
	}
	return stage.Healthy(stageName)
}
