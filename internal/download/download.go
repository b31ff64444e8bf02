// Package download fetches a document's scanned PDF from the catalog
// source into the staging tree.
package download

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"granth/internal/catalog"
	"granth/internal/config"
	"granth/internal/fileutil"
	"granth/internal/ledger"
	"granth/internal/logging"
	"granth/internal/services"
	"granth/internal/stage"
	"granth/internal/textutil"
)

const stageName = ledger.StageDownload

// Handler downloads raw PDFs and records their checksum.
type Handler struct {
	cfg    *config.Config
	slug   string
	http   *resty.Client
	logger *slog.Logger
}

// NewHandler constructs the download handler.
func NewHandler(cfg *config.Config, logger *slog.Logger) *Handler {
	httpClient := resty.New().
		SetTimeout(time.Duration(cfg.Catalog.RequestTimeout) * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)
	return &Handler{
		cfg:    cfg,
		slug:   catalog.SlugFromURL(cfg.Catalog.URL),
		http:   httpClient,
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

func (h *Handler) Stage() string { return stageName }

// Execute downloads the PDF unless a verified copy already exists. On
// success the document carries the raw file path and its checksum.
func (h *Handler) Execute(ctx context.Context, doc *ledger.Document) error {
	if doc.SourceURL == "" {
		return services.Wrap(services.ErrValidation, stageName, "download", "document has no source url", nil)
	}

	target := h.rawPath(doc)
	if doc.RawFile == target && doc.Checksum != "" {
		if checksum, err := fileutil.HashFile(target); err == nil && checksum == doc.Checksum {
			h.logger.InfoContext(ctx, "raw pdf already staged, skipping download",
				logging.String("path", target))
			return nil
		}
		h.logger.WarnContext(ctx, "staged pdf missing or changed, downloading again",
			logging.String("path", target))
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "download", "create staging directory", err)
	}

	resp, err := h.http.R().
		SetContext(ctx).
		Get(doc.SourceURL)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "download", doc.SourceURL, err)
	}
	if resp.IsError() {
		marker := services.ErrTransient
		if code := resp.StatusCode(); code == 404 || code == 410 {
			marker = services.ErrPermanent
		}
		return services.Wrap(marker, stageName, "download",
			fmt.Sprintf("source returned %s for %s", resp.Status(), doc.SourceURL), nil)
	}

	body := resp.Body()
	if !bytes.HasPrefix(body, []byte("%PDF-")) {
		return services.Wrap(services.ErrPermanent, stageName, "download",
			"source response is not a PDF", nil)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "download", "write staging file", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "download", "finalize staging file", err)
	}

	checksum, err := fileutil.HashFile(target)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "download", "hash staged file", err)
	}

	doc.RawFile = target
	doc.Checksum = checksum
	h.logger.InfoContext(ctx, "downloaded raw pdf",
		logging.String("path", target),
		logging.Int("bytes", len(body)))
	return nil
}

// HealthCheck verifies the staging directory is writable.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	probe := filepath.Join(h.cfg.Paths.StagingDir, ".writecheck")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return stage.Unhealthy(stageName, fmt.Sprintf("staging directory not writable: %v", err))
	}
	_ = os.Remove(probe)
	return stage.Healthy(stageName)
}

func (h *Handler) rawPath(doc *ledger.Document) string {
	dir := ledger.DocumentDir(h.cfg.Paths.StagingDir, h.slug, doc.Key)
	return filepath.Join(dir, textutil.PadIdentifier(doc.Key, ledger.KeyPadWidth)+".pdf")
}
