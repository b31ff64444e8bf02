package workflow_test

import (
	"context"
	"errors"
	"testing"

	"granth/internal/catalog"
	"granth/internal/config"
	"granth/internal/ledger"
	"granth/internal/logging"
	"granth/internal/services"
	"granth/internal/stage"
	"granth/internal/testsupport"
	"granth/internal/translitcache"
	"granth/internal/workflow"
)

type fakeSource struct {
	entries []catalog.Descriptor
	fetches int
}

func (f *fakeSource) Slug() string { return "books" }

func (f *fakeSource) Fetch(ctx context.Context) ([]catalog.Descriptor, error) {
	f.fetches++
	return f.entries, nil
}

type stubHandler struct {
	name  string
	calls int
	fail  func(calls int) error
}

func (s *stubHandler) Stage() string { return s.name }

func (s *stubHandler) HealthCheck(context.Context) stage.Health { return stage.Healthy(s.name) }

func (s *stubHandler) Execute(ctx context.Context, doc *ledger.Document) error {
	s.calls++
	if s.fail != nil {
		if err := s.fail(s.calls); err != nil {
			return err
		}
	}
	switch s.name {
	case ledger.StageDownload:
		doc.RawFile = "/staging/" + doc.Key + ".pdf"
		doc.Checksum = "checksum-" + doc.Key
	case ledger.StageRecognize:
		doc.RecognizedFile = "/staging/" + doc.Key + ".md"
	case ledger.StageTransliterate:
		doc.TranslitTitle = "Title " + doc.Key
	case ledger.StageConvert:
		doc.ConvertedFile = "/staging/" + doc.Key + ".docx"
	case ledger.StageDeliver:
		doc.DeliveredFile = "/delivered/" + doc.Key + ".docx"
	}
	return nil
}

type fixture struct {
	cfg      *config.Config
	store    *ledger.Store
	manager  *workflow.Manager
	source   *fakeSource
	handlers map[string]*stubHandler
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	opts = append(opts, testsupport.WithStubbedBinaries())
	cfg := testsupport.NewConfig(t, opts...)

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cache := translitcache.NewCache(cfg.Paths.TranslitCache, logging.NewNop())
	source := &fakeSource{entries: []catalog.Descriptor{
		{Key: "7", Title: "ಅಧ್ಯಾತ್ಮ ಪ್ರಕಾಶ", Author: "ಸ್ವಾಮೀಜಿ", PDFURL: "https://example.org/7.pdf"},
		{Key: "12A", Title: "ಗೀತಾ ಭಾಷ್ಯ", PDFURL: "https://example.org/12A.pdf"},
	}}

	handlers := map[string]*stubHandler{}
	table := map[string]stage.Handler{}
	for _, name := range []string{
		ledger.StageDownload,
		ledger.StageRecognize,
		ledger.StageTransliterate,
		ledger.StageConvert,
		ledger.StageDeliver,
	} {
		stub := &stubHandler{name: name}
		handlers[name] = stub
		table[name] = stub
	}

	manager := workflow.NewManager(cfg, store, cache, logging.NewNop(),
		workflow.WithSource(source),
		workflow.WithHandlers(table),
	)
	return &fixture{cfg: cfg, store: store, manager: manager, source: source, handlers: handlers}
}

func (f *fixture) document(t *testing.T, key string) *ledger.Document {
	t.Helper()
	doc, err := f.store.GetByKey(context.Background(), key)
	if err != nil {
		t.Fatalf("get document %s: %v", key, err)
	}
	return doc
}

func TestRunDrainDeliversEverything(t *testing.T) {
	f := newFixture(t)

	report, err := f.manager.Run(context.Background(), workflow.RunOptions{Drain: true})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Discovered != 2 {
		t.Errorf("discovered = %d, want 2", report.Discovered)
	}
	if report.Delivered != 2 {
		t.Errorf("delivered = %d, want 2", report.Delivered)
	}
	for _, key := range []string{"7", "12A"} {
		doc := f.document(t, key)
		if doc.Status != ledger.StatusDelivered {
			t.Errorf("document %s status = %s", key, doc.Status)
		}
	}
	for name, stub := range f.handlers {
		if stub.calls != 2 {
			t.Errorf("handler %s called %d times, want 2", name, stub.calls)
		}
	}
	if f.source.fetches != 1 {
		t.Errorf("fetches = %d, catalog scanned more than once", f.source.fetches)
	}
}

func TestRunLimitOneAdvancesSingleStage(t *testing.T) {
	f := newFixture(t)

	report, err := f.manager.Run(context.Background(), workflow.RunOptions{Limit: 1})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Processed != 1 || report.Advanced != 1 {
		t.Fatalf("report = %+v, want exactly one stage processed", report)
	}
	if f.handlers[ledger.StageDownload].calls != 1 {
		t.Fatalf("download calls = %d, want 1", f.handlers[ledger.StageDownload].calls)
	}
	for _, name := range []string{ledger.StageRecognize, ledger.StageTransliterate, ledger.StageConvert, ledger.StageDeliver} {
		if f.handlers[name].calls != 0 {
			t.Fatalf("handler %s called before its turn", name)
		}
	}
	if doc := f.document(t, "12A"); doc.Status != ledger.StatusDownloaded {
		t.Fatalf("document status = %s, want downloaded", doc.Status)
	}
}

func TestRunResumeDoesNotRepeatCompletedStages(t *testing.T) {
	f := newFixture(t)

	// Two single passes, then a drain. Completed stages must not rerun.
	if _, err := f.manager.Run(context.Background(), workflow.RunOptions{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := f.manager.Run(context.Background(), workflow.RunOptions{}); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if _, err := f.manager.Run(context.Background(), workflow.RunOptions{Drain: true}); err != nil {
		t.Fatalf("drain Run: %v", err)
	}

	for name, stub := range f.handlers {
		if stub.calls != 2 {
			t.Errorf("handler %s called %d times, want exactly once per document", name, stub.calls)
		}
	}
	for _, key := range []string{"7", "12A"} {
		if doc := f.document(t, key); doc.Status != ledger.StatusDelivered {
			t.Errorf("document %s status = %s", key, doc.Status)
		}
	}
}

func TestRunTransientFailureRetriesThenParks(t *testing.T) {
	f := newFixture(t, testsupport.WithRetryLimit(2))
	f.handlers[ledger.StageRecognize].fail = func(int) error {
		return services.Wrap(services.ErrTransient, "recognize", "poll job", "service flapping", nil)
	}

	report, err := f.manager.Run(context.Background(), workflow.RunOptions{Drain: true})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Attention != 2 {
		t.Errorf("attention = %d, want both documents parked", report.Attention)
	}
	doc := f.document(t, "7")
	if doc.Status != ledger.StatusDownloaded {
		t.Errorf("status = %s, failed stage must not advance", doc.Status)
	}
	if !doc.NeedsAttention {
		t.Error("document not parked after retry limit")
	}
	if doc.StageAttempts(ledger.StageRecognize) != 2 {
		t.Errorf("attempts = %d, want 2", doc.StageAttempts(ledger.StageRecognize))
	}

	// A later run must leave parked documents alone.
	before := f.handlers[ledger.StageRecognize].calls
	if _, err := f.manager.Run(context.Background(), workflow.RunOptions{Drain: true}); err != nil {
		t.Fatalf("followup Run: %v", err)
	}
	if f.handlers[ledger.StageRecognize].calls != before {
		t.Error("parked document was retried")
	}
}

func TestRunPermanentFailureParksImmediately(t *testing.T) {
	f := newFixture(t)
	f.handlers[ledger.StageRecognize].fail = func(int) error {
		return services.Wrap(services.ErrPermanent, "recognize", "job", "page limit exceeded", nil)
	}

	if _, err := f.manager.Run(context.Background(), workflow.RunOptions{Drain: true}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	doc := f.document(t, "7")
	if !doc.NeedsAttention {
		t.Fatal("permanent failure should park immediately")
	}
	if doc.StageAttempts(ledger.StageRecognize) != 1 {
		t.Fatalf("attempts = %d, permanent failure should not retry", doc.StageAttempts(ledger.StageRecognize))
	}
}

func TestRunConfigurationErrorAborts(t *testing.T) {
	f := newFixture(t)
	f.handlers[ledger.StageDownload].fail = func(int) error {
		return services.Wrap(services.ErrConfiguration, "download", "download", "credentials rejected", nil)
	}

	_, err := f.manager.Run(context.Background(), workflow.RunOptions{Drain: true})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("configuration error should abort the run, got %v", err)
	}
	if f.handlers[ledger.StageDownload].calls != 1 {
		t.Fatalf("download calls = %d, run should stop at first abort", f.handlers[ledger.StageDownload].calls)
	}
}

func TestRunTransientFailureRecoversOnRetry(t *testing.T) {
	f := newFixture(t)
	f.handlers[ledger.StageDownload].fail = func(calls int) error {
		if calls <= 2 {
			return services.Wrap(services.ErrTransient, "download", "download", "connection reset", nil)
		}
		return nil
	}

	if _, err := f.manager.Run(context.Background(), workflow.RunOptions{Drain: true}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	// Both documents end up delivered; the flaky stage recovered within the
	// default retry limit.
	for _, key := range []string{"7", "12A"} {
		doc := f.document(t, key)
		if doc.Status != ledger.StatusDelivered {
			t.Errorf("document %s status = %s", key, doc.Status)
		}
		if doc.FailedStage != "" || doc.NeedsAttention {
			t.Errorf("document %s failure bookkeeping not cleared: %+v", key, doc)
		}
	}
}

func TestRunRescanRefreshesMetadataOnly(t *testing.T) {
	f := newFixture(t)
	if _, err := f.manager.Run(context.Background(), workflow.RunOptions{Drain: true}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	f.source.entries[0].Title = "ಅಧ್ಯಾತ್ಮ ಪ್ರಕಾಶ (ಪರಿಷ್ಕೃತ)"
	report, err := f.manager.Run(context.Background(), workflow.RunOptions{Rescan: true})
	if err != nil {
		t.Fatalf("rescan Run: %v", err)
	}
	if report.Discovered != 0 {
		t.Errorf("discovered = %d, rescan of known documents should create nothing", report.Discovered)
	}
	doc := f.document(t, "7")
	if doc.SourceTitle != "ಅಧ್ಯಾತ್ಮ ಪ್ರಕಾಶ (ಪರಿಷ್ಕೃತ)" {
		t.Errorf("source title = %q, rescan should refresh metadata", doc.SourceTitle)
	}
	if doc.Status != ledger.StatusDelivered {
		t.Errorf("status = %s, rescan must not reset progress", doc.Status)
	}
}

func TestRunSecondInstanceIsRejected(t *testing.T) {
	f := newFixture(t)

	blocker := make(chan struct{})
	release := make(chan struct{})
	f.handlers[ledger.StageDownload].fail = func(calls int) error {
		if calls == 1 {
			close(blocker)
			<-release
		}
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Run(context.Background(), workflow.RunOptions{})
		done <- err
	}()
	<-blocker

	second := workflow.NewManager(f.cfg, f.store, translitcache.NewCache("", logging.NewNop()), logging.NewNop(),
		workflow.WithSource(f.source),
	)
	if _, err := second.Run(context.Background(), workflow.RunOptions{}); !errors.Is(err, workflow.ErrAlreadyRunning) {
		t.Fatalf("second run should be rejected, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
}
