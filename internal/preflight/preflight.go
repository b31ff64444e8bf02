// Package preflight gates workflow runs on environment readiness. A failed
// check is a configuration problem; nothing should be attempted until the
// operator fixes it.
package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"granth/internal/config"
	"granth/internal/logging"
	"granth/internal/services"
	"granth/internal/stage"
)

// Check is one named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Run executes the built-in environment checks followed by every handler's
// health check. The first failure aborts with a configuration error.
func Run(ctx context.Context, cfg *config.Config, handlers []stage.Handler, logger *slog.Logger) error {
	log := logging.NewComponentLogger(logger, "preflight")

	for _, check := range environmentChecks(cfg) {
		if err := check.Probe(ctx); err != nil {
			return services.Wrap(services.ErrConfiguration, "preflight", check.Name, "preflight check failed", err)
		}
		log.DebugContext(ctx, "preflight check passed", logging.String("check", check.Name))
	}

	for _, handler := range handlers {
		health := handler.HealthCheck(ctx)
		if !health.Ready {
			return services.Wrap(services.ErrConfiguration, "preflight", health.Name,
				fmt.Sprintf("stage not ready: %s", health.Detail), nil)
		}
		log.DebugContext(ctx, "stage ready", logging.String("stage", health.Name))
	}
	return nil
}

func environmentChecks(cfg *config.Config) []Check {
	return []Check{
		{Name: "catalog url", Probe: func(context.Context) error {
			parsed, err := url.Parse(cfg.Catalog.URL)
			if err != nil || parsed.Scheme == "" || parsed.Host == "" {
				return fmt.Errorf("catalog.url %q is not an absolute URL", cfg.Catalog.URL)
			}
			return nil
		}},
		{Name: "staging directory", Probe: func(context.Context) error {
			return writableDir(cfg.Paths.StagingDir)
		}},
		{Name: "delivery directory", Probe: func(context.Context) error {
			return writableDir(cfg.Paths.DeliveryDir)
		}},
		{Name: "ocr credentials", Probe: func(context.Context) error {
			if strings.TrimSpace(cfg.OCR.APIKey) == "" {
				return fmt.Errorf("ocr.api_key is not set")
			}
			return nil
		}},
		{Name: "transliteration credentials", Probe: func(context.Context) error {
			if strings.TrimSpace(cfg.Transliteration.APIKey) == "" {
				return fmt.Errorf("transliteration.api_key is not set")
			}
			return nil
		}},
		{Name: "converter binary", Probe: func(context.Context) error {
			if _, err := exec.LookPath(cfg.Converter.Binary); err != nil {
				return fmt.Errorf("converter %q not found on PATH", cfg.Converter.Binary)
			}
			return nil
		}},
	}
}

func writableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	probe := filepath.Join(dir, ".writecheck")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	return os.Remove(probe)
}
