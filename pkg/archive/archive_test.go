package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		data := bytes.Repeat([]byte(n), 100)
		if err := os.WriteFile(filepath.Join(dir, n), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func readZip(t *testing.T, path string) map[string][]byte {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer r.Close()

	out := map[string][]byte{}
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		out[f.Name] = data
	}
	return out
}

func TestZipArchiver(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "Straight-1.jpg", "Left-2.jpg", DefaultName)
	os.Mkdir(filepath.Join(dir, "nested"), 0o755)

	a := NewZipArchiver(dir, "")
	if err := a.Archive(context.Background()); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	members := readZip(t, a.Path())
	var names []string
	for n := range members {
		names = append(names, n)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "Left-2.jpg" || names[1] != "Straight-1.jpg" {
		t.Fatalf("Unexpected members %v", names)
	}
	if !bytes.Equal(members["Left-2.jpg"], bytes.Repeat([]byte("Left-2.jpg"), 100)) {
		t.Error("Member content mismatch")
	}

	res := a.Last()
	if res.Files != 2 || res.TotalBytes <= 0 {
		t.Errorf("Unexpected result %+v", res)
	}
	if _, err := os.Stat(a.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp archive should be gone")
	}
}

func TestZipArchiverIncludesSubdirectories(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "Straight-1.jpg")
	nested := filepath.Join(dir, "retake", "left")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFiles(t, nested, "Left-1.jpg", DefaultName)

	a := NewZipArchiver(dir, "")
	if err := a.Archive(context.Background()); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	members := readZip(t, a.Path())
	if len(members) != 3 {
		t.Fatalf("Expected 3 members, got %d", len(members))
	}
	if _, ok := members["retake/left/Left-1.jpg"]; !ok {
		t.Error("Expected nested capture to be packed with its relative path")
	}
	if _, ok := members["retake/left/"+DefaultName]; !ok {
		t.Error("Only the top-level archive is excluded")
	}
	if _, ok := members[DefaultName]; ok {
		t.Error("Archive must not contain itself")
	}
}

func TestZipArchiverMissingDir(t *testing.T) {
	a := NewZipArchiver(filepath.Join(t.TempDir(), "missing"), "out.zip")
	if err := a.Archive(context.Background()); err == nil {
		t.Error("Expected error for missing directory")
	}
}

type fakeUploader struct {
	key  string
	size int
	err  error
}

func (f *fakeUploader) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, _ := io.ReadAll(body)
	f.key, f.size = key, len(data)
	return "https://bucket/" + key, f.err
}

func TestZipArchiverUpload(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "Up-1.png")

	up := &fakeUploader{}
	a := NewZipArchiver(dir, "").WithUploader(up)
	if err := a.Archive(context.Background()); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if up.key != DefaultName || int64(up.size) != a.Last().TotalBytes {
		t.Errorf("Unexpected upload key=%s size=%d", up.key, up.size)
	}
	if a.Last().Location != "https://bucket/"+DefaultName {
		t.Errorf("Unexpected location %q", a.Last().Location)
	}

	up.err = errors.New("denied")
	if err := a.Archive(context.Background()); err == nil {
		t.Error("Expected upload error")
	}
}

func TestZipArchiverUploadKey(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "Down-1.jpg")

	up := &fakeUploader{}
	a := NewZipArchiver(dir, "").WithUploader(up).WithKey("session-7/" + DefaultName)
	if err := a.Archive(context.Background()); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if up.key != "session-7/"+DefaultName {
		t.Errorf("Unexpected upload key %s", up.key)
	}
}

func TestFunc(t *testing.T) {
	called := 0
	var trig Trigger = Func(func(context.Context) error { called++; return nil })
	trig.Archive(context.Background())
	if called != 1 {
		t.Errorf("Expected 1 call, got %d", called)
	}
}
