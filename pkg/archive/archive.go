// Package archive packages a finished capture directory.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/menta2k/face-capture/internal/utils"
	"github.com/menta2k/face-capture/pkg/log"
	"github.com/menta2k/face-capture/pkg/storage/s3"
)

// DefaultName is the archive file written inside the capture directory
const DefaultName = "face_images.zip"

// Trigger is invoked once when a capture sequence completes
type Trigger interface {
	Archive(ctx context.Context) error
}

// Func adapts a function to Trigger
type Func func(ctx context.Context) error

func (f Func) Archive(ctx context.Context) error { return f(ctx) }

// Result describes a written archive
type Result struct {
	Path       string
	Files      int
	TotalBytes int64
	Location   string
}

// ZipArchiver packs every regular file of a directory into a zip at
// maximum compression, optionally uploading the result
type ZipArchiver struct {
	dir      string
	name     string
	uploader s3.Uploader
	key      string
	last     Result
}

// NewZipArchiver archives dir into dir/name. An empty name uses DefaultName.
func NewZipArchiver(dir, name string) *ZipArchiver {
	if name == "" {
		name = DefaultName
	}
	return &ZipArchiver{dir: dir, name: name, key: name}
}

// WithUploader uploads the archive after it is written
func (a *ZipArchiver) WithUploader(u s3.Uploader) *ZipArchiver {
	a.uploader = u
	return a
}

// WithKey sets the object key used for the upload, name by default
func (a *ZipArchiver) WithKey(key string) *ZipArchiver {
	if key != "" {
		a.key = key
	}
	return a
}

// Name returns the archive file name
func (a *ZipArchiver) Name() string {
	return a.name
}

// Path returns the archive location on disk
func (a *ZipArchiver) Path() string {
	return filepath.Join(a.dir, a.name)
}

// Last returns the result of the most recent Archive call
func (a *ZipArchiver) Last() Result {
	return a.last
}

// Archive writes the zip and uploads it when configured
func (a *ZipArchiver) Archive(ctx context.Context) error {
	res, err := a.write(ctx)
	if err != nil {
		return err
	}

	if a.uploader != nil {
		f, err := os.Open(res.Path)
		if err != nil {
			return fmt.Errorf("failed to open archive for upload: %w", err)
		}
		defer f.Close()

		loc, err := a.uploader.Upload(ctx, a.key, f, "application/zip")
		if err != nil {
			return fmt.Errorf("archive upload failed: %w", err)
		}
		res.Location = loc
	}

	a.last = res
	log.Info(log.Fields{
		"path":     res.Path,
		"files":    res.Files,
		"bytes":    res.TotalBytes,
		"size":     utils.FormatFileSize(res.TotalBytes),
		"location": res.Location,
	}, "capture archive written")
	return nil
}

func (a *ZipArchiver) write(ctx context.Context) (Result, error) {
	files, err := a.members()
	if err != nil {
		return Result{}, err
	}

	out := a.Path()
	tmp := out + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create archive: %w", err)
	}

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	fail := func(err error) (Result, error) {
		zw.Close()
		f.Close()
		os.Remove(tmp)
		return Result{}, err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if err := addFile(zw, a.dir, path); err != nil {
			return fail(err)
		}
	}

	if err := zw.Close(); err != nil {
		return fail(fmt.Errorf("failed to finalize archive: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return Result{}, fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return Result{}, fmt.Errorf("failed to finalize archive: %w", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		return Result{}, err
	}
	return Result{Path: out, Files: len(files), TotalBytes: info.Size()}, nil
}

// members lists the files to pack relative to the capture dir, walking
// subdirectories and excluding the archive and temp files
func (a *ZipArchiver) members() ([]string, error) {
	if _, err := os.Stat(a.dir); err != nil {
		return nil, fmt.Errorf("failed to read capture dir: %w", err)
	}
	var files []string
	err := filepath.WalkDir(a.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(a.dir, path)
		if err != nil {
			return err
		}
		if rel == a.name {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read capture dir: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func addFile(zw *zip.Writer, dir, rel string) error {
	src, err := os.Open(filepath.Join(dir, rel))
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to add %s: %w", hdr.Name, err)
	}
	return nil
}
