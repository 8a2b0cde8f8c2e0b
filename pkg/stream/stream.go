// Package stream supplies frames to the capture loop.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/menta2k/face-capture/internal/utils"
	"github.com/menta2k/face-capture/pkg/processing"
	"github.com/menta2k/face-capture/pkg/types"
)

// ErrClosed is returned by Next once a mailbox is closed
var ErrClosed = errors.New("stream closed")

// Source yields frames. Next blocks until a frame is available and returns
// io.EOF when a finite source is exhausted.
type Source interface {
	Next(ctx context.Context) (types.Frame, error)
}

// DirSource replays the image files of a directory in name order
type DirSource struct {
	files     []string
	pos       int
	processor *processing.Processor
	now       func() time.Time
}

// NewDirSource lists the images of dir
func NewDirSource(dir string) (*DirSource, error) {
	files, err := utils.ListImageFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}
	return &DirSource{files: files, processor: processing.NewProcessor(), now: time.Now}, nil
}

// Len returns the number of frames in the source
func (s *DirSource) Len() int {
	return len(s.files)
}

// Next loads the next file. Unreadable files are returned as errors and
// skipped on the following call.
func (s *DirSource) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if s.pos >= len(s.files) {
		return types.Frame{}, io.EOF
	}
	path := s.files[s.pos]
	s.pos++

	img, err := s.processor.LoadImage(path)
	if err != nil {
		return types.Frame{}, fmt.Errorf("failed to load frame %s: %w", path, err)
	}
	return types.Frame{Seq: uint64(s.pos), Timestamp: s.now(), Image: img, Source: path}, nil
}

// Mailbox is a single-slot frame buffer with overwrite semantics.
// Producers never block; the consumer always gets the newest frame and
// older unconsumed frames are counted as drops.
type Mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *types.Frame
	seq    uint64
	drops  uint64
	closed bool
}

// NewMailbox creates an empty mailbox
func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish stores a frame, replacing any unconsumed one.
// Frames without a sequence number are numbered by the mailbox.
func (m *Mailbox) Publish(frame types.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if m.frame != nil {
		m.drops++
	}
	m.seq++
	if frame.Seq == 0 {
		frame.Seq = m.seq
	}
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now()
	}
	m.frame = &frame
	m.cond.Signal()
}

// Next blocks until a frame is available, the mailbox closes, or ctx ends
func (m *Mailbox) Next(ctx context.Context) (types.Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	for m.frame == nil && !m.closed && ctx.Err() == nil {
		m.cond.Wait()
	}
	if m.closed {
		return types.Frame{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}

	frame := *m.frame
	m.frame = nil
	return frame, nil
}

// Drops returns how many frames were overwritten before being consumed
func (m *Mailbox) Drops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

// Close wakes the consumer; subsequent Next calls return ErrClosed
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.frame = nil
	m.cond.Broadcast()
	m.mu.Unlock()
}
