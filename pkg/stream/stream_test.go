package stream

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/menta2k/face-capture/pkg/types"
)

func writePNG(t *testing.T, path string, w int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, 10))
	img.Set(0, 0, color.White)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 20)
	writePNG(t, filepath.Join(dir, "a.png"), 10)
	os.WriteFile(filepath.Join(dir, "c.jpg"), []byte("broken"), 0o644)

	src, err := NewDirSource(dir)
	if err != nil {
		t.Fatalf("NewDirSource failed: %v", err)
	}
	if src.Len() != 3 {
		t.Fatalf("Expected 3 files, got %d", src.Len())
	}

	ctx := context.Background()
	f, err := src.Next(ctx)
	if err != nil || f.Image.Bounds().Dx() != 10 || f.Seq != 1 {
		t.Fatalf("Expected a.png first, got %+v, %v", f, err)
	}
	f, err = src.Next(ctx)
	if err != nil || f.Image.Bounds().Dx() != 20 {
		t.Fatalf("Expected b.png second, got %v", err)
	}
	if _, err := src.Next(ctx); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("Expected load error for broken file, got %v", err)
	}
	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestDirSourceEmpty(t *testing.T) {
	if _, err := NewDirSource(t.TempDir()); err == nil {
		t.Error("Expected error for empty directory")
	}
}

func TestMailboxKeepsNewest(t *testing.T) {
	m := NewMailbox()
	for i := 0; i < 3; i++ {
		m.Publish(types.Frame{Source: string(rune('a' + i))})
	}

	f, err := m.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if f.Source != "c" || f.Seq != 3 {
		t.Errorf("Expected newest frame c#3, got %s#%d", f.Source, f.Seq)
	}
	if m.Drops() != 2 {
		t.Errorf("Expected 2 drops, got %d", m.Drops())
	}
}

func TestMailboxBlocksUntilPublish(t *testing.T) {
	m := NewMailbox()
	got := make(chan types.Frame, 1)
	go func() {
		f, err := m.Next(context.Background())
		if err == nil {
			got <- f
		}
	}()

	time.Sleep(20 * time.Millisecond)
	m.Publish(types.Frame{Source: "late"})

	select {
	case f := <-got:
		if f.Source != "late" {
			t.Errorf("Unexpected frame %s", f.Source)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not wake on publish")
	}
}

func TestMailboxContextAndClose(t *testing.T) {
	m := NewMailbox()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Next(context.Background())
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	m.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not wake consumer")
	}

	m.Publish(types.Frame{})
	if _, err := m.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after close, got %v", err)
	}
}
