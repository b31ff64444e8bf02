// Package transliterate fills in a document's target-script title and
// author. Every source string goes through the transliteration cache first;
// the external model is only consulted on a cache miss, and its answer is
// stored before use so equal strings are never transliterated twice.
package transliterate

import (
	"context"
	"log/slog"
	"strings"

	"granth/internal/config"
	"granth/internal/ledger"
	"granth/internal/logging"
	"granth/internal/services"
	"granth/internal/services/translit"
	"granth/internal/stage"
	"granth/internal/translitcache"
)

const stageName = ledger.StageTransliterate

// Transliterator is the model surface this handler needs.
type Transliterator interface {
	Transliterate(ctx context.Context, text string) (string, error)
}

// Handler resolves document metadata into the target script.
type Handler struct {
	cfg    *config.Config
	cache  *translitcache.Cache
	client Transliterator
	logger *slog.Logger
}

// NewHandler constructs the transliterate handler with the default client.
func NewHandler(cfg *config.Config, cache *translitcache.Cache, logger *slog.Logger) *Handler {
	return NewHandlerWithClient(cfg, cache, translit.NewClient(cfg.Transliteration), logger)
}

// NewHandlerWithClient constructs the handler around a custom model client
// (used by tests).
func NewHandlerWithClient(cfg *config.Config, cache *translitcache.Cache, client Transliterator, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:    cfg,
		cache:  cache,
		client: client,
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

func (h *Handler) Stage() string { return stageName }

// Execute transliterates the document's title and, when present, author.
func (h *Handler) Execute(ctx context.Context, doc *ledger.Document) error {
	if strings.TrimSpace(doc.SourceTitle) == "" {
		return services.Wrap(services.ErrValidation, stageName, "transliterate", "document has no source title", nil)
	}

	title, err := h.resolve(ctx, doc.SourceTitle)
	if err != nil {
		return err
	}
	doc.TranslitTitle = title

	if strings.TrimSpace(doc.SourceAuthor) != "" {
		author, err := h.resolve(ctx, doc.SourceAuthor)
		if err != nil {
			return err
		}
		doc.TranslitAuthor = author
	}
	return nil
}

// resolve answers from the cache when possible and records fresh model
// answers before returning them.
func (h *Handler) resolve(ctx context.Context, source string) (string, error) {
	if entry, ok := h.cache.Lookup(source); ok {
		h.logger.DebugContext(ctx, "transliteration cache hit",
			logging.String("source", source))
		return entry.Value, nil
	}

	value, err := h.client.Transliterate(ctx, source)
	if err != nil {
		return "", err
	}
	entry, err := h.cache.Store(source, value)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "transliterate", "persist cache entry", err)
	}
	h.logger.InfoContext(ctx, "transliterated metadata",
		logging.String("source", source),
		logging.String("value", entry.Value))
	return entry.Value, nil
}

// HealthCheck verifies the model credentials are configured.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(h.cfg.Transliteration.APIKey) == "" {
		return stage.Unhealthy(stageName, "transliteration api key not configured")
	}
	return stage.Healthy(stageName)
}
