package ocr_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"granth/internal/config"
	"granth/internal/services"
	"granth/internal/services/ocr"
)

func resultZip(t *testing.T, markdown string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entry, err := zw.Create("result/output.md")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := entry.Write([]byte(markdown)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// newJobServer wires the whole job lifecycle into one handler. pollStates is
// consumed one state per poll; the last state repeats.
func newJobServer(t *testing.T, pollStates []string, failDetail string, markdown string) (*httptest.Server, *int) {
	t.Helper()
	polls := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/doc-digitization/job":
			if r.Header.Get("api-subscription-key") == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, map[string]string{"job_id": "job-1"})
		case r.Method == http.MethodPost && r.URL.Path == "/doc-digitization/job/job-1/upload-url":
			writeJSON(w, map[string]string{"upload_url": server.URL + "/blob/job-1"})
		case r.Method == http.MethodPut && r.URL.Path == "/blob/job-1":
			if r.Header.Get("x-ms-blob-type") != "BlockBlob" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPost && r.URL.Path == "/doc-digitization/job/job-1/start":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/doc-digitization/job/job-1/status":
			idx := polls
			if idx >= len(pollStates) {
				idx = len(pollStates) - 1
			}
			polls++
			writeJSON(w, map[string]string{"state": pollStates[idx], "error_message": failDetail})
		case r.Method == http.MethodPost && r.URL.Path == "/doc-digitization/job/job-1/download-url":
			writeJSON(w, map[string]string{"download_url": server.URL + "/blob/job-1/result.zip"})
		case r.Method == http.MethodGet && r.URL.Path == "/blob/job-1/result.zip":
			_, _ = w.Write(resultZip(t, markdown))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return server, &polls
}

func testClient(serverURL string) *ocr.Client {
	cfg := config.OCR{
		APIKey:         "test-key",
		BaseURL:        serverURL,
		Language:       "kn-IN",
		OutputFormat:   "md",
		PollInterval:   1,
		PollTimeout:    30,
		RequestTimeout: 5,
	}
	return ocr.NewClient(cfg,
		ocr.WithPollInterval(time.Millisecond),
		ocr.WithPollTimeout(time.Second),
	)
}

func stubPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "042.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4\nscanned pages"), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func TestRecognizeFullLifecycle(t *testing.T) {
	server, polls := newJobServer(t, []string{"Accepted", "Running", "Completed"}, "", "# ಪುಟ ಒಂದು\n")
	defer server.Close()

	client := testClient(server.URL)
	markdown, err := client.Recognize(context.Background(), stubPDF(t))
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	if !strings.Contains(string(markdown), "ಪುಟ ಒಂದು") {
		t.Fatalf("markdown = %q", markdown)
	}
	if *polls < 3 {
		t.Fatalf("polls = %d, want at least 3", *polls)
	}
}

func TestRecognizePartiallyCompletedStillDownloads(t *testing.T) {
	server, _ := newJobServer(t, []string{"Running", "PartiallyCompleted"}, "", "partial content")
	defer server.Close()

	client := testClient(server.URL)
	markdown, err := client.Recognize(context.Background(), stubPDF(t))
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	if string(markdown) != "partial content" {
		t.Fatalf("markdown = %q", markdown)
	}
}

func TestRecognizePageLimitIsPermanent(t *testing.T) {
	server, _ := newJobServer(t, []string{"Failed"}, "document exceeds page limit of 100", "")
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Recognize(context.Background(), stubPDF(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("page limit should be permanent, got %v", err)
	}
}

func TestRecognizeGenericFailureIsTransient(t *testing.T) {
	server, _ := newJobServer(t, []string{"Failed"}, "internal worker crash", "")
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Recognize(context.Background(), stubPDF(t))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("worker crash should be transient, got %v", err)
	}
}

func TestRecognizeRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("plain text"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	server, _ := newJobServer(t, []string{"Completed"}, "", "")
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Recognize(context.Background(), path)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("non-PDF input should be a validation error, got %v", err)
	}
}

func TestRecognizeUnauthorizedIsConfiguration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Recognize(context.Background(), stubPDF(t))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("401 should be a configuration error, got %v", err)
	}
}
