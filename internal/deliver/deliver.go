// Package deliver copies converted documents into the delivery tree under
// their human-readable names.
package deliver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"granth/internal/catalog"
	"granth/internal/config"
	"granth/internal/fileutil"
	"granth/internal/ledger"
	"granth/internal/logging"
	"granth/internal/services"
	"granth/internal/stage"
	"granth/internal/textutil"
)

const stageName = ledger.StageDeliver

// Handler places finished documents in the delivery directory.
type Handler struct {
	cfg    *config.Config
	slug   string
	logger *slog.Logger
}

// NewHandler constructs the deliver handler.
func NewHandler(cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:    cfg,
		slug:   catalog.SlugFromURL(cfg.Catalog.URL),
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

func (h *Handler) Stage() string { return stageName }

// Execute copies the converted docx and the recognized markdown (and
// optionally the raw PDF) into the delivery tree. An existing identical
// delivery is left alone; a differing one is only replaced when overwrite
// is enabled.
func (h *Handler) Execute(ctx context.Context, doc *ledger.Document) error {
	if doc.ConvertedFile == "" {
		return services.Wrap(services.ErrValidation, stageName, "deliver", "document has no converted file", nil)
	}
	if strings.TrimSpace(doc.TranslitTitle) == "" {
		return services.Wrap(services.ErrValidation, stageName, "deliver", "document has no transliterated title", nil)
	}

	target := filepath.Join(h.cfg.Paths.DeliveryDir, h.slug, h.deliveredName(doc)+".docx")
	if err := h.place(doc.ConvertedFile, target); err != nil {
		return err
	}
	if doc.RecognizedFile != "" {
		mdTarget := strings.TrimSuffix(target, ".docx") + ".md"
		if err := h.place(doc.RecognizedFile, mdTarget); err != nil {
			return err
		}
	}
	if h.cfg.Delivery.IncludeRaw && doc.RawFile != "" {
		rawTarget := strings.TrimSuffix(target, ".docx") + ".pdf"
		if err := h.place(doc.RawFile, rawTarget); err != nil {
			return err
		}
	}

	doc.DeliveredFile = target
	h.logger.InfoContext(ctx, "delivered document",
		logging.String("path", target))
	return nil
}

// place copies src to dst with verification, honoring the overwrite policy.
func (h *Handler) place(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		same, err := fileutil.SameContent(src, dst)
		if err != nil {
			return services.Wrap(services.ErrTransient, stageName, "deliver", "compare existing delivery", err)
		}
		if same {
			return nil
		}
		if !h.cfg.Delivery.Overwrite {
			return services.Wrap(services.ErrPermanent, stageName, "deliver",
				fmt.Sprintf("%s exists with different content and overwrite is disabled", dst), nil)
		}
	}
	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "deliver", "copy to delivery directory", err)
	}
	return nil
}

// HealthCheck verifies the delivery directory can be created and written.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	dir := h.cfg.Paths.DeliveryDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return stage.Unhealthy(stageName, fmt.Sprintf("delivery directory unavailable: %v", err))
	}
	probe := filepath.Join(dir, ".writecheck")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return stage.Unhealthy(stageName, fmt.Sprintf("delivery directory not writable: %v", err))
	}
	_ = os.Remove(probe)
	return stage.Healthy(stageName)
}

// deliveredName builds "{id}_{title-slug}" plus "_{author-slug}" when an
// author is known.
func (h *Handler) deliveredName(doc *ledger.Document) string {
	name := textutil.PadIdentifier(doc.Key, ledger.KeyPadWidth) + "_" + textutil.Slugify(doc.TranslitTitle)
	if author := textutil.Slugify(doc.TranslitAuthor); author != "" {
		name += "_" + author
	}
	return name
}
