// Package workflow orchestrates the pipeline: it discovers documents from
// the catalog, walks each eligible document forward one stage per pass, and
// records every outcome in the ledger before moving on. Runs are resumable;
// the ledger is the only source of truth for where each document stands.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"granth/internal/catalog"
	"granth/internal/config"
	"granth/internal/convert"
	"granth/internal/deliver"
	"granth/internal/download"
	"granth/internal/ledger"
	"granth/internal/logging"
	"granth/internal/preflight"
	"granth/internal/recognize"
	"granth/internal/services"
	"granth/internal/stage"
	"granth/internal/translitcache"
	"granth/internal/transliterate"
)

// ErrAlreadyRunning is returned when another process holds the run lock.
var ErrAlreadyRunning = errors.New("another granth run is already in progress")

// RunOptions controls a single invocation of the manager.
type RunOptions struct {
	// Rescan forces a catalog fetch even when the ledger already has
	// documents.
	Rescan bool
	// Limit caps how many documents are touched per pass. Zero means no
	// cap.
	Limit int
	// Drain repeats passes until no document makes progress.
	Drain bool
}

// Report summarizes what a run accomplished.
type Report struct {
	Discovered int
	Processed  int
	Advanced   int
	Retried    int
	Attention  int
	Delivered  int
	Passes     int
}

// Manager drives documents through the pipeline.
type Manager struct {
	cfg      *config.Config
	store    *ledger.Store
	cache    *translitcache.Cache
	logger   *slog.Logger
	source   catalog.Source
	handlers map[string]stage.Handler
	sleeper  func(context.Context, time.Duration) error
	lockPath string
}

// Option customizes the manager.
type Option func(*Manager)

// WithSource overrides the catalog source (used by tests).
func WithSource(source catalog.Source) Option {
	return func(m *Manager) {
		if source != nil {
			m.source = source
		}
	}
}

// WithHandlers overrides the stage handler table (used by tests).
func WithHandlers(handlers map[string]stage.Handler) Option {
	return func(m *Manager) {
		if handlers != nil {
			m.handlers = handlers
		}
	}
}

// WithSleeper overrides how inter-document pauses are performed.
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(m *Manager) {
		if sleeper != nil {
			m.sleeper = sleeper
		}
	}
}

// NewManager wires the default handler set from configuration.
func NewManager(cfg *config.Config, store *ledger.Store, cache *translitcache.Cache, logger *slog.Logger, opts ...Option) *Manager {
	manager := &Manager{
		cfg:    cfg,
		store:  store,
		cache:  cache,
		logger: logging.NewComponentLogger(logger, "workflow"),
		source: catalog.NewHTTPSource(cfg.Catalog),
		handlers: map[string]stage.Handler{
			ledger.StageDownload:      download.NewHandler(cfg, logger),
			ledger.StageRecognize:     recognize.NewHandler(cfg, logger),
			ledger.StageTransliterate: transliterate.NewHandler(cfg, cache, logger),
			ledger.StageConvert:       convert.NewHandler(cfg, logger),
			ledger.StageDeliver:       deliver.NewHandler(cfg, logger),
		},
		lockPath: filepath.Join(cfg.Paths.StagingDir, "granth.lock"),
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager
}

// Run executes one invocation: acquire the instance lock, gate on
// preflight, discover if needed, then process eligible documents.
func (m *Manager) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	lock := flock.New(m.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "lock", "acquire instance lock", err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}
	defer func() {
		_ = lock.Unlock()
	}()

	if err := preflight.Run(ctx, m.cfg, m.orderedHandlers(), m.logger); err != nil {
		return nil, err
	}

	report := &Report{}
	if err := m.discover(ctx, opts, report); err != nil {
		return report, err
	}

	for {
		report.Passes++
		before := report.Advanced + report.Retried
		if _, err := m.pass(ctx, opts, report); err != nil {
			return report, err
		}
		// Advancement and pending retries both count as progress; parked
		// documents do not. The attempt ceiling bounds the retry passes.
		if !opts.Drain || report.Advanced+report.Retried == before {
			break
		}
	}

	m.logger.InfoContext(ctx, "run complete",
		logging.Int("processed", report.Processed),
		logging.Int("advanced", report.Advanced),
		logging.Int("delivered", report.Delivered),
		logging.Int("attention", report.Attention))
	return report, nil
}

// discover fetches the catalog when forced or when the ledger is empty, and
// merges every entry into the ledger.
func (m *Manager) discover(ctx context.Context, opts RunOptions, report *Report) error {
	if !opts.Rescan {
		stats, err := m.store.Stats(ctx)
		if err != nil {
			return err
		}
		total := 0
		for _, count := range stats {
			total += count
		}
		if total > 0 {
			return nil
		}
	}

	entries, err := m.source.Fetch(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		_, created, err := m.store.UpsertDiscovered(ctx, entry.Key, entry.Title, entry.Author, entry.PDFURL)
		if err != nil {
			return err
		}
		if created {
			report.Discovered++
		}
	}
	if err := m.store.SetLastScan(ctx, time.Now()); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "catalog scan complete",
		logging.Int("entries", len(entries)),
		logging.Int("new", report.Discovered))
	return nil
}

// pass walks every eligible document forward one stage. It returns how many
// documents advanced.
func (m *Manager) pass(ctx context.Context, opts RunOptions, report *Report) (int, error) {
	docs, err := m.store.ListEligible(ctx, opts.Limit)
	if err != nil {
		return 0, err
	}

	advanced := 0
	for i, doc := range docs {
		if ctx.Err() != nil {
			return advanced, ctx.Err()
		}
		if i > 0 {
			if err := m.pause(ctx); err != nil {
				return advanced, err
			}
		}

		moved, err := m.processOne(ctx, doc, report)
		if err != nil {
			return advanced, err
		}
		if moved {
			advanced++
		}
	}
	return advanced, nil
}

// processOne runs the document's next stage and persists the outcome. The
// returned bool reports whether the document advanced. Only configuration
// errors propagate; per-document failures are absorbed into the ledger.
func (m *Manager) processOne(ctx context.Context, doc *ledger.Document, report *Report) (bool, error) {
	stageName, ok := ledger.NextStage(doc.Status)
	if !ok {
		return false, nil
	}
	handler, ok := m.handlers[stageName]
	if !ok {
		return false, services.Wrap(services.ErrConfiguration, "workflow", "dispatch",
			fmt.Sprintf("no handler for stage %s", stageName), nil)
	}

	report.Processed++
	runCtx := services.WithDocumentKey(ctx, doc.Key)
	runCtx = services.WithStage(runCtx, stageName)
	runCtx = services.WithRequestID(runCtx, uuid.NewString())
	log := logging.WithContext(runCtx, m.logger)

	log.InfoContext(runCtx, "running stage")
	err := handler.Execute(runCtx, doc)
	if err == nil {
		next, ok := ledger.StatusAfter(stageName)
		if !ok {
			return false, services.Wrap(services.ErrConfiguration, "workflow", "dispatch",
				fmt.Sprintf("stage %s has no result status", stageName), nil)
		}
		doc.ClearFailure()
		doc.Status = next
		if err := m.store.Update(runCtx, doc); err != nil {
			return false, err
		}
		report.Advanced++
		if next == ledger.StatusDelivered {
			report.Delivered++
		}
		log.InfoContext(runCtx, "stage complete", logging.String("status", string(next)))
		return true, nil
	}

	return false, m.recordFailure(runCtx, log, doc, stageName, err, report)
}

// recordFailure applies the error taxonomy: transient failures retry until
// the attempt ceiling, per-document failures are parked for attention, and
// configuration errors abort the run.
func (m *Manager) recordFailure(ctx context.Context, log *slog.Logger, doc *ledger.Document, stageName string, stageErr error, report *Report) error {
	switch services.Classify(stageErr) {
	case services.DispositionAbort:
		log.ErrorContext(ctx, "configuration error, stopping run", logging.Error(stageErr))
		doc.RecordFailure(stageName, stageErr.Error())
		if err := m.store.Update(ctx, doc); err != nil {
			return err
		}
		return stageErr

	case services.DispositionAttention:
		doc.RecordFailure(stageName, stageErr.Error())
		doc.MarkAttention(stageErr.Error())
		report.Attention++
		log.WarnContext(ctx, "document parked for attention", logging.Error(stageErr))
		return m.store.Update(ctx, doc)

	default:
		doc.RecordFailure(stageName, stageErr.Error())
		if doc.StageAttempts(stageName) >= m.cfg.Workflow.RetryLimit {
			doc.MarkAttention(fmt.Sprintf("stage %s failed %d times: %s",
				stageName, doc.StageAttempts(stageName), stageErr.Error()))
			report.Attention++
			log.WarnContext(ctx, "retry limit reached, parking document",
				logging.Int("attempts", doc.StageAttempts(stageName)),
				logging.Error(stageErr))
		} else {
			report.Retried++
			log.WarnContext(ctx, "stage failed, will retry",
				logging.Int("attempts", doc.StageAttempts(stageName)),
				logging.Error(stageErr))
		}
		return m.store.Update(ctx, doc)
	}
}

func (m *Manager) orderedHandlers() []stage.Handler {
	var out []stage.Handler
	for _, name := range []string{
		ledger.StageDownload,
		ledger.StageRecognize,
		ledger.StageTransliterate,
		ledger.StageConvert,
		ledger.StageDeliver,
	} {
		if handler, ok := m.handlers[name]; ok {
			out = append(out, handler)
		}
	}
	return out
}

func (m *Manager) pause(ctx context.Context) error {
	delay := time.Duration(m.cfg.Workflow.PauseBetween) * time.Second
	if delay <= 0 {
		return nil
	}
	if m.sleeper != nil {
		return m.sleeper(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
