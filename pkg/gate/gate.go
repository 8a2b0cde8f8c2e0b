// Package gate decides, frame by frame, whether a classified face is
// captured into the active stage of a sequence.
package gate

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/menta2k/face-capture/pkg/archive"
	"github.com/menta2k/face-capture/pkg/cropper"
	"github.com/menta2k/face-capture/pkg/log"
	"github.com/menta2k/face-capture/pkg/processing"
	"github.com/menta2k/face-capture/pkg/sequencer"
	"github.com/menta2k/face-capture/pkg/sink"
	"github.com/menta2k/face-capture/pkg/types"
)

// DefaultDebounce is the minimum spacing between accepted captures
const DefaultDebounce = 50 * time.Millisecond

// Reason explains a gate decision
type Reason string

const (
	ReasonNoFace            Reason = "no_face"
	ReasonMultipleFaces     Reason = "multiple_faces"
	ReasonIndeterminatePose Reason = "indeterminate_pose"
	ReasonDebounced         Reason = "debounced"
	ReasonComplete          Reason = "complete"
	ReasonDirectionMismatch Reason = "direction_mismatch"
	ReasonCropFailed        Reason = "crop_failed"
	ReasonSinkFailed        Reason = "sink_failed"
	ReasonAccepted          Reason = "accepted"
)

// Input is one classified frame
type Input struct {
	Direction types.Direction
	// Face is the single detected face; nil for NoFace and MultipleFaces
	Face *types.Face
	// Frame is the full video frame the face was detected in
	Frame image.Image
	// PoseErr is set when the single face's pose could not be estimated;
	// Direction is then ignored
	PoseErr error
}

// Decision is the outcome of evaluating one frame
type Decision struct {
	Accepted bool
	Reason   Reason
	Progress sequencer.Progress
	// Err carries the crop or sink failure behind a rejection
	Err error
	// ArchiveErr is set when the completion archive failed
	ArchiveErr error
}

// Config controls capture pacing and encoding
type Config struct {
	Debounce time.Duration
	Format   string
	Quality  int
	Lossless bool
}

// DefaultConfig returns 50 ms debounce and JPEG at quality 100
func DefaultConfig() Config {
	return Config{
		Debounce: DefaultDebounce,
		Format:   processing.FormatJPEG,
		Quality:  100,
		Lossless: true,
	}
}

// CaptureGate applies the capture rules against a sequencer.
// Evaluate calls are serialized.
type CaptureGate struct {
	mu        sync.Mutex
	seq       *sequencer.Sequencer
	cropper   *cropper.FaceCropper
	processor *processing.Processor
	sink      sink.FrameSink
	archive   archive.Trigger
	config    Config
	archived  bool
}

// New creates a gate. archive may be nil.
func New(seq *sequencer.Sequencer, c *cropper.FaceCropper, fs sink.FrameSink, at archive.Trigger, config Config) (*CaptureGate, error) {
	if seq == nil || c == nil || fs == nil {
		return nil, fmt.Errorf("gate requires a sequencer, cropper and sink")
	}
	format, err := processing.NormalizeFormat(config.Format)
	if err != nil {
		return nil, err
	}
	config.Format = format
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = 100
	}
	if config.Debounce < 0 {
		config.Debounce = 0
	}
	return &CaptureGate{
		seq:       seq,
		cropper:   c,
		processor: processing.NewProcessor(),
		sink:      fs,
		archive:   at,
		config:    config,
	}, nil
}

// Sequencer returns the sequencer the gate records into
func (g *CaptureGate) Sequencer() *sequencer.Sequencer {
	return g.seq
}

// Evaluate applies the rules in order and, on accept, persists the crop
// and records it. The first failing rule decides the reason.
func (g *CaptureGate) Evaluate(ctx context.Context, now time.Time, in Input) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case in.PoseErr != nil:
		return Decision{Reason: ReasonIndeterminatePose, Err: in.PoseErr}
	case in.Direction == types.NoFace:
		return Decision{Reason: ReasonNoFace}
	case in.Direction == types.MultipleFaces:
		return Decision{Reason: ReasonMultipleFaces}
	case !in.Direction.Capturable():
		return Decision{Reason: ReasonIndeterminatePose}
	}

	if last := g.seq.LastCapture(); !last.IsZero() && now.Sub(last) < g.config.Debounce {
		return Decision{Reason: ReasonDebounced}
	}

	stage, _, ok := g.seq.Active()
	if !ok {
		return Decision{Reason: ReasonComplete}
	}
	if stage.Target != in.Direction {
		return Decision{Reason: ReasonDirectionMismatch}
	}

	data, err := g.encodeCrop(in)
	if err != nil {
		log.Warn(log.Fields{"direction": in.Direction.String(), "error": err}, "face crop failed")
		return Decision{Reason: ReasonCropFailed, Err: err}
	}

	frame := types.CapturedFrame{
		Data:      data,
		Direction: in.Direction,
		Index:     stage.Captured + 1,
		Timestamp: now,
		Format:    g.config.Format,
	}
	if err := g.sink.Save(ctx, frame); err != nil {
		err = fmt.Errorf("sink: %w", err)
		log.Warn(log.Fields{"direction": in.Direction.String(), "index": frame.Index, "error": err}, "frame sink failed")
		return Decision{Reason: ReasonSinkFailed, Err: err}
	}

	progress, err := g.seq.Record(in.Direction, now)
	if err != nil {
		// Unreachable while Evaluate holds mu and is the only writer
		return Decision{Reason: ReasonDirectionMismatch, Err: err}
	}

	d := Decision{Accepted: true, Reason: ReasonAccepted, Progress: progress}
	if progress.StageFilled {
		log.Info(log.Fields{"stage": progress.Stage, "direction": progress.Direction.String(), "count": progress.Index}, "stage complete")
	}
	if progress.Completed && !g.archived {
		g.archived = true
		d.ArchiveErr = g.runArchive(ctx)
	}
	return d
}

func (g *CaptureGate) encodeCrop(in Input) ([]byte, error) {
	if in.Face == nil || in.Frame == nil {
		return nil, fmt.Errorf("no face region to capture")
	}
	crop, err := g.cropper.CropFace(in.Frame, in.Face.Box)
	if err != nil {
		return nil, err
	}
	return g.processor.Encode(crop.Image, g.config.Format, g.config.Quality, g.config.Lossless)
}

func (g *CaptureGate) runArchive(ctx context.Context) error {
	if g.archive == nil {
		return nil
	}
	if err := g.archive.Archive(ctx); err != nil {
		err = fmt.Errorf("archive: %w", err)
		log.Error(log.Fields{"error": err}, "capture archive failed")
		return err
	}
	return nil
}
