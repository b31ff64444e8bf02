package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"granth/internal/fileutil"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestHashFileIsStable(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "payload")
	b := writeFile(t, dir, "b.txt", "payload")

	hashA, err := fileutil.HashFile(a)
	if err != nil {
		t.Fatalf("HashFile returned error: %v", err)
	}
	hashB, err := fileutil.HashFile(b)
	if err != nil {
		t.Fatalf("HashFile returned error: %v", err)
	}
	if hashA != hashB {
		t.Fatalf("identical content hashed differently: %s vs %s", hashA, hashB)
	}
	if len(hashA) != 64 {
		t.Fatalf("hash length = %d, want hex sha256", len(hashA))
	}
}

func TestSameContent(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.docx", "docx bytes")
	b := writeFile(t, dir, "b.docx", "docx bytes")
	c := writeFile(t, dir, "c.docx", "other bytes")

	same, err := fileutil.SameContent(a, b)
	if err != nil {
		t.Fatalf("SameContent returned error: %v", err)
	}
	if !same {
		t.Fatal("identical files reported as different")
	}

	same, err = fileutil.SameContent(a, c)
	if err != nil {
		t.Fatalf("SameContent returned error: %v", err)
	}
	if same {
		t.Fatal("differing files reported as identical")
	}
}

func TestSameContentMissingFileIsError(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.docx", "docx bytes")

	if _, err := fileutil.SameContent(a, filepath.Join(dir, "missing.docx")); err == nil {
		t.Fatal("missing file should be an error, not a mismatch")
	}
	if _, err := fileutil.SameContent(filepath.Join(dir, "missing.docx"), a); err == nil {
		t.Fatal("missing file should be an error, not a mismatch")
	}
}

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.pdf", "%PDF-1.4\nscanned pages")
	dst := filepath.Join(dir, "nested", "dst.pdf")

	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		t.Fatalf("CopyFileVerified returned error: %v", err)
	}
	same, err := fileutil.SameContent(src, dst)
	if err != nil {
		t.Fatalf("SameContent returned error: %v", err)
	}
	if !same {
		t.Fatal("copy does not match source")
	}
}

func TestCopyFileVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := fileutil.CopyFileVerified(filepath.Join(dir, "missing.pdf"), filepath.Join(dir, "dst.pdf")); err == nil {
		t.Fatal("expected error for missing source")
	}
}
