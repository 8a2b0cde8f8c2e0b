// Package sink persists accepted face crops.
package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/menta2k/face-capture/internal/utils"
	"github.com/menta2k/face-capture/pkg/log"
	"github.com/menta2k/face-capture/pkg/storage/s3"
	"github.com/menta2k/face-capture/pkg/types"
)

// ErrEmptyFrame is returned for frames without image bytes
var ErrEmptyFrame = errors.New("captured frame has no data")

// FrameSink receives accepted frames
type FrameSink interface {
	Save(ctx context.Context, frame types.CapturedFrame) error
}

// Filename returns "<Direction>-<ULID>.<format>" for a frame, with the ULID
// carrying the capture timestamp
func Filename(frame types.CapturedFrame) string {
	id := ulid.MustNew(ulid.Timestamp(frame.Timestamp), ulid.DefaultEntropy())
	ext := frame.Format
	if ext == "" {
		ext = "jpg"
	}
	return utils.CaptureFilename(frame.Label(), id.String(), ext)
}

// DirSink writes frames into a local directory
type DirSink struct {
	dir string

	mu    sync.Mutex
	saved []string
}

// NewDirSink creates the directory if needed
func NewDirSink(dir string) (*DirSink, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create capture dir: %w", err)
	}
	return &DirSink{dir: dir}, nil
}

// Dir returns the capture directory
func (s *DirSink) Dir() string {
	return s.dir
}

// Save writes the frame atomically
func (s *DirSink) Save(ctx context.Context, frame types.CapturedFrame) error {
	if len(frame.Data) == 0 {
		return ErrEmptyFrame
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	name := Filename(frame)
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, frame.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize %s: %w", name, err)
	}

	s.mu.Lock()
	s.saved = append(s.saved, path)
	s.mu.Unlock()

	log.Debug(log.Fields{"file": name, "bytes": len(frame.Data), "index": frame.Index}, "frame saved")
	return nil
}

// Saved returns the paths written so far
func (s *DirSink) Saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.saved))
	copy(out, s.saved)
	return out
}

// S3Sink uploads frames to a bucket
type S3Sink struct {
	uploader s3.Uploader
	prefix   string
}

// NewS3Sink wraps an uploader
func NewS3Sink(uploader s3.Uploader) *S3Sink {
	return &S3Sink{uploader: uploader}
}

// WithPrefix places every uploaded frame under prefix/
func (s *S3Sink) WithPrefix(prefix string) *S3Sink {
	s.prefix = strings.Trim(prefix, "/")
	return s
}

// Save uploads the frame under its capture filename
func (s *S3Sink) Save(ctx context.Context, frame types.CapturedFrame) error {
	if len(frame.Data) == 0 {
		return ErrEmptyFrame
	}
	name := Filename(frame)
	if s.prefix != "" {
		name = s.prefix + "/" + name
	}
	loc, err := s.uploader.Upload(ctx, name, bytes.NewReader(frame.Data), contentType(frame.Format))
	if err != nil {
		return err
	}
	log.Debug(log.Fields{"location": loc, "bytes": len(frame.Data)}, "frame uploaded")
	return nil
}

func contentType(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
