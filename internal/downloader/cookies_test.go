package downloader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMergeCookieFiles(t *testing.T) {
	dir := t.TempDir()

	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	out := filepath.Join(dir, "merged.txt")

	if err := os.WriteFile(a, []byte("# comment\nexample.com\tTRUE\t/\tFALSE\t0\tfoo\tbar\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("other.com\tTRUE\t/\tFALSE\t0\tbaz\tqux\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := MergeCookieFiles(out, a, b); err != nil {
		t.Fatalf("MergeCookieFiles: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	if !strings.HasPrefix(content, "# Netscape HTTP Cookie File\n") {
		t.Errorf("missing Netscape header: %q", content)
	}
	if strings.Contains(content, "# comment\n") {
		t.Error("comment line from input leaked into merged output")
	}
	if !strings.Contains(content, "example.com") || !strings.Contains(content, "other.com") {
		t.Errorf("merged output missing expected cookie lines: %q", content)
	}
}

func TestMergeCookieFilesSkipsMissingInput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "merged.txt")

	if err := MergeCookieFiles(out, filepath.Join(dir, "does-not-exist.txt")); err != nil {
		t.Fatalf("MergeCookieFiles with missing input: %v", err)
	}
}
