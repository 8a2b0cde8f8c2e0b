package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsImageFile(t *testing.T) {
	tests := map[string]bool{
		"a.jpg":   true,
		"b.JPEG":  true,
		"c.webp":  true,
		"d.png":   true,
		"e.txt":   false,
		"noext":   false,
		"f.zip":   false,
		"dir/g.P": false,
	}
	for name, expected := range tests {
		if got := IsImageFile(name); got != expected {
			t.Errorf("IsImageFile(%q) = %v, expected %v", name, got, expected)
		}
	}
}

func TestCaptureFilename(t *testing.T) {
	if got := CaptureFilename("Left", "01HX", ".jpg"); got != "Left-01HX.jpg" {
		t.Errorf("Unexpected name %q", got)
	}
	if got := CaptureFilename("a/b", "1", "png"); got != "a_b-1.png" {
		t.Errorf("Expected sanitized label, got %q", got)
	}
}

func TestListImageFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"003.png", "001.jpg", "002.webp", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := ListImageFiles(dir)
	if err != nil {
		t.Fatalf("ListImageFiles failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("Expected 3 files, got %v", files)
	}
	if filepath.Base(files[0]) != "001.jpg" || filepath.Base(files[2]) != "003.png" {
		t.Errorf("Expected sorted order, got %v", files)
	}

	if _, err := ListImageFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected error for missing dir")
	}
}

func TestEnsureDirAndFileExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if FileExists(dir) {
		t.Error("Directory must not count as a file")
	}
	f := filepath.Join(dir, "x.jpg")
	os.WriteFile(f, nil, 0o644)
	if !FileExists(f) {
		t.Error("Expected file to exist")
	}
}

func TestSanitizeAndFormat(t *testing.T) {
	if got := SanitizeFilename(" a:b?c. "); got != "a_b_c" {
		t.Errorf("SanitizeFilename: got %q", got)
	}
	sizes := map[int64]string{
		512:         "512 B",
		2048:        "2.0 KB",
		5 * 1 << 20: "5.0 MB",
	}
	for in, expected := range sizes {
		if got := FormatFileSize(in); got != expected {
			t.Errorf("FormatFileSize(%d) = %q, expected %q", in, got, expected)
		}
	}
}
