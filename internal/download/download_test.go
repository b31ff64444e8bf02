package download_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"granth/internal/download"
	"granth/internal/ledger"
	"granth/internal/logging"
	"granth/internal/services"
	"granth/internal/testsupport"
)

func newPDFServer(t *testing.T, body []byte) (*httptest.Server, *int) {
	t.Helper()
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestExecuteDownloadsAndRecordsChecksum(t *testing.T) {
	pdf := testsupport.PDFStub("scanned pages")
	server, hits := newPDFServer(t, pdf)

	cfg := testsupport.NewConfig(t)
	handler := download.NewHandler(cfg, logging.NewNop())
	doc := &ledger.Document{Key: "7", SourceURL: server.URL + "/download.php?book_id=7"}

	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if doc.RawFile == "" || doc.Checksum == "" {
		t.Fatalf("document not updated: raw=%q checksum=%q", doc.RawFile, doc.Checksum)
	}
	if !strings.HasSuffix(doc.RawFile, "007.pdf") {
		t.Errorf("raw path = %q, identifier not padded", doc.RawFile)
	}
	content, err := os.ReadFile(doc.RawFile)
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	if string(content) != string(pdf) {
		t.Fatalf("staged content mismatch")
	}
	if *hits != 1 {
		t.Fatalf("hits = %d", *hits)
	}
}

func TestExecuteSkipsVerifiedExistingFile(t *testing.T) {
	server, hits := newPDFServer(t, testsupport.PDFStub("scanned pages"))

	cfg := testsupport.NewConfig(t)
	handler := download.NewHandler(cfg, logging.NewNop())
	doc := &ledger.Document{Key: "7", SourceURL: server.URL + "/download.php?book_id=7"}

	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if *hits != 1 {
		t.Fatalf("hits = %d, verified file should not be downloaded again", *hits)
	}
}

func TestExecuteRedownloadsWhenChecksumDiffers(t *testing.T) {
	server, hits := newPDFServer(t, testsupport.PDFStub("scanned pages"))

	cfg := testsupport.NewConfig(t)
	handler := download.NewHandler(cfg, logging.NewNop())
	doc := &ledger.Document{Key: "7", SourceURL: server.URL + "/download.php?book_id=7"}

	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if err := os.WriteFile(doc.RawFile, []byte("%PDF-1.4\ntruncated"), 0o644); err != nil {
		t.Fatalf("corrupt staged file: %v", err)
	}
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if *hits != 2 {
		t.Fatalf("hits = %d, corrupted file should trigger re-download", *hits)
	}
}

func TestExecuteRejectsNonPDFResponse(t *testing.T) {
	server, _ := newPDFServer(t, []byte("<html>error page</html>"))

	cfg := testsupport.NewConfig(t)
	handler := download.NewHandler(cfg, logging.NewNop())
	doc := &ledger.Document{Key: "7", SourceURL: server.URL + "/download.php?book_id=7"}

	err := handler.Execute(context.Background(), doc)
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("non-PDF body should be permanent, got %v", err)
	}
}

func TestExecuteMissingSourceIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	handler := download.NewHandler(cfg, logging.NewNop())
	doc := &ledger.Document{Key: "7", SourceURL: server.URL + "/gone.pdf"}

	err := handler.Execute(context.Background(), doc)
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("404 should be permanent, got %v", err)
	}
}

func TestHealthCheckReportsStagingDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler := download.NewHandler(cfg, logging.NewNop())
	if health := handler.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("health = %+v", health)
	}
}
