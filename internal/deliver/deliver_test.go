package deliver_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"granth/internal/deliver"
	"granth/internal/ledger"
	"granth/internal/logging"
	"granth/internal/services"
	"granth/internal/testsupport"
)

func convertedDocument(t *testing.T) *ledger.Document {
	t.Helper()
	dir := t.TempDir()
	docx := filepath.Join(dir, "007.docx")
	md := filepath.Join(dir, "007.md")
	raw := filepath.Join(dir, "007.pdf")
	testsupport.MustWriteFile(t, docx, "docx bytes")
	testsupport.MustWriteFile(t, md, "# ಪುಟ ಒಂದು\n")
	testsupport.MustWriteFile(t, raw, string(testsupport.PDFStub("scanned pages")))
	return &ledger.Document{
		Key:            "7",
		TranslitTitle:  "Adhyatma Prakasha",
		TranslitAuthor: "Swamiji",
		RawFile:        raw,
		RecognizedFile: md,
		ConvertedFile:  docx,
	}
}

func TestExecuteDeliversUnderSlugName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler := deliver.NewHandler(cfg, logging.NewNop())

	doc := convertedDocument(t)
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	want := filepath.Join(cfg.Paths.DeliveryDir, "books", "007_adhyatma-prakasha_swamiji.docx")
	if doc.DeliveredFile != want {
		t.Fatalf("delivered path = %q, want %q", doc.DeliveredFile, want)
	}
	content, err := os.ReadFile(doc.DeliveredFile)
	if err != nil {
		t.Fatalf("read delivery: %v", err)
	}
	if string(content) != "docx bytes" {
		t.Fatalf("delivered content = %q", content)
	}
	md := doc.DeliveredFile[:len(doc.DeliveredFile)-5] + ".md"
	if _, err := os.Stat(md); err != nil {
		t.Fatalf("markdown not delivered alongside docx: %v", err)
	}
}

func TestExecuteOmitsMissingAuthor(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler := deliver.NewHandler(cfg, logging.NewNop())

	doc := convertedDocument(t)
	doc.TranslitAuthor = ""
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if filepath.Base(doc.DeliveredFile) != "007_adhyatma-prakasha.docx" {
		t.Fatalf("delivered name = %q", filepath.Base(doc.DeliveredFile))
	}
}

func TestExecuteIsIdempotentForIdenticalDelivery(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler := deliver.NewHandler(cfg, logging.NewNop())

	doc := convertedDocument(t)
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
}

func TestExecuteConflictWithoutOverwriteIsPermanent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Delivery.Overwrite = false
	handler := deliver.NewHandler(cfg, logging.NewNop())

	doc := convertedDocument(t)
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	testsupport.MustWriteFile(t, doc.ConvertedFile, "different docx bytes")

	err := handler.Execute(context.Background(), doc)
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("conflict should be permanent without overwrite, got %v", err)
	}
}

func TestExecuteOverwriteReplacesConflict(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Delivery.Overwrite = true
	handler := deliver.NewHandler(cfg, logging.NewNop())

	doc := convertedDocument(t)
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	testsupport.MustWriteFile(t, doc.ConvertedFile, "different docx bytes")
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	content, err := os.ReadFile(doc.DeliveredFile)
	if err != nil {
		t.Fatalf("read delivery: %v", err)
	}
	if string(content) != "different docx bytes" {
		t.Fatalf("delivery not replaced, content = %q", content)
	}
}

func TestExecuteIncludeRawCopiesPDF(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Delivery.IncludeRaw = true
	handler := deliver.NewHandler(cfg, logging.NewNop())

	doc := convertedDocument(t)
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	raw := doc.DeliveredFile[:len(doc.DeliveredFile)-5] + ".pdf"
	if _, err := os.Stat(raw); err != nil {
		t.Fatalf("raw pdf not delivered: %v", err)
	}
}

func TestExecuteRequiresConvertedFileAndTitle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler := deliver.NewHandler(cfg, logging.NewNop())

	if err := handler.Execute(context.Background(), &ledger.Document{Key: "7", TranslitTitle: "X"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing converted file should be a validation error, got %v", err)
	}
	doc := convertedDocument(t)
	doc.TranslitTitle = ""
	if err := handler.Execute(context.Background(), doc); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing title should be a validation error, got %v", err)
	}
}
