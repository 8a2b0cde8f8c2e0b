// Package session runs the capture tick loop: pull the newest frame,
// detect, estimate, classify, gate and report progress.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/menta2k/face-capture/pkg/gate"
	"github.com/menta2k/face-capture/pkg/log"
	"github.com/menta2k/face-capture/pkg/notify"
	"github.com/menta2k/face-capture/pkg/sequencer"
	"github.com/menta2k/face-capture/pkg/stream"
	"github.com/menta2k/face-capture/pkg/types"
	"github.com/menta2k/face-capture/pkg/vision"
)

// DefaultTick is the pacing interval between detector invocations
const DefaultTick = 100 * time.Millisecond

// Detector finds faces in a frame
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Face, error)
	Ready(ctx context.Context) error
}

// Config controls the loop
type Config struct {
	// ID names the session; a random UUID is used when empty
	ID   string
	Tick time.Duration
	// ReadyTimeout bounds the detector readiness probe; zero means no bound
	ReadyTimeout time.Duration
}

// Result is the outcome of one tick
type Result struct {
	Seq       uint64
	Faces     int
	Direction types.Direction
	Pose      *types.Pose
	Decision  gate.Decision
}

// Summary describes a finished run
type Summary struct {
	SessionID    string              `json:"session_id"`
	Frames       int                 `json:"frames"`
	Accepted     int                 `json:"accepted"`
	Rejected     map[gate.Reason]int `json:"rejected"`
	Captured     int                 `json:"captured"`
	Target       int                 `json:"target"`
	Complete     bool                `json:"complete"`
	Drops        uint64              `json:"drops"`
	ArchiveErr   error               `json:"-"`
	ArchiveError string              `json:"archive_error,omitempty"`
}

// Session drives one capture sequence
type Session struct {
	id         string
	source     stream.Source
	detector   Detector
	estimator  *vision.PoseEstimator
	classifier *vision.DirectionClassifier
	gate       *gate.CaptureGate
	notifier   notify.Notifier
	config     Config
}

// New creates a session. notifier may be nil.
func New(src stream.Source, det Detector, g *gate.CaptureGate, est *vision.PoseEstimator, cls *vision.DirectionClassifier, n notify.Notifier, config Config) *Session {
	if config.Tick <= 0 {
		config.Tick = DefaultTick
	}
	if est == nil {
		est = vision.NewPoseEstimator()
	}
	if cls == nil {
		cls = vision.NewDirectionClassifier()
	}
	if n == nil {
		n = notify.LogNotifier{}
	}
	if config.ID == "" {
		config.ID = uuid.NewString()
	}
	return &Session{
		id:         config.ID,
		source:     src,
		detector:   det,
		estimator:  est,
		classifier: cls,
		gate:       g,
		notifier:   n,
		config:     config,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Sequencer returns the sequence being filled
func (s *Session) Sequencer() *sequencer.Sequencer {
	return s.gate.Sequencer()
}

// Run loops until the sequence completes, the source is exhausted or
// closed, or ctx ends. Ticks never overlap: the next frame is pulled only
// after the previous one has been fully evaluated.
func (s *Session) Run(ctx context.Context) (Summary, error) {
	logger := log.WithSession(s.id)
	sum := Summary{SessionID: s.id, Rejected: map[gate.Reason]int{}}

	if err := s.waitReady(ctx); err != nil {
		return s.finish(sum), fmt.Errorf("detector not ready: %w", err)
	}
	logger.WithField("looking_for", s.Sequencer().LookingFor()).Info("capture session started")

	limiter := rate.NewLimiter(rate.Every(s.config.Tick), 1)
	for !s.Sequencer().Complete() {
		if err := limiter.Wait(ctx); err != nil {
			return s.finish(sum), ctx.Err()
		}

		frame, err := s.source.Next(ctx)
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, stream.ErrClosed):
			logger.Info("frame source exhausted")
			return s.finish(sum), nil
		case ctx.Err() != nil:
			return s.finish(sum), ctx.Err()
		case err != nil:
			logger.WithError(err).Warn("skipping unreadable frame")
			continue
		}

		res := s.Step(ctx, frame)
		sum.Frames++
		if res.Decision.Accepted {
			sum.Accepted++
		} else {
			sum.Rejected[res.Decision.Reason]++
		}
		if res.Decision.ArchiveErr != nil {
			sum.ArchiveErr = res.Decision.ArchiveErr
		}
	}

	logger.Info("capture sequence complete")
	return s.finish(sum), nil
}

func (s *Session) waitReady(ctx context.Context) error {
	if s.config.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ReadyTimeout)
		defer cancel()
	}
	return s.detector.Ready(ctx)
}

func (s *Session) finish(sum Summary) Summary {
	sum.Captured, sum.Target = s.Sequencer().Total()
	sum.Complete = s.Sequencer().Complete()
	if sum.ArchiveErr != nil {
		sum.ArchiveError = sum.ArchiveErr.Error()
	}
	if mb, ok := s.source.(*stream.Mailbox); ok {
		sum.Drops = mb.Drops()
	}
	return sum
}

// Step evaluates a single frame and publishes the progress event
func (s *Session) Step(ctx context.Context, frame types.Frame) Result {
	res := Result{Seq: frame.Seq}

	faces, err := s.detector.Detect(ctx, frame.Image)
	if err != nil {
		log.Warn(log.Fields{"session_id": s.id, "seq": frame.Seq, "error": err}, "detection failed, treating frame as empty")
		faces = nil
	}
	res.Faces = len(faces)

	in := gate.Input{Frame: frame.Image}
	in.Direction, res.Pose, in.PoseErr = vision.DirectionOf(faces, s.estimator, s.classifier)
	if len(faces) == 1 {
		face := faces[0]
		in.Face = &face
	}
	res.Direction = in.Direction

	now := frame.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	res.Decision = s.gate.Evaluate(ctx, now, in)

	s.publish(ctx, frame, res)
	return res
}

func (s *Session) publish(ctx context.Context, frame types.Frame, res Result) {
	seq := s.Sequencer()
	captured, total := seq.Total()
	_, index, _ := seq.Active()

	message := res.Direction.Message()
	if res.Decision.Reason == gate.ReasonIndeterminatePose {
		message = "Indeterminate pose"
	}

	ev := notify.Event{
		SessionID:  s.id,
		Seq:        frame.Seq,
		Time:       frame.Timestamp,
		Direction:  res.Direction,
		Message:    message,
		LookingFor: seq.LookingFor(),
		Pose:       res.Pose,
		Accepted:   res.Decision.Accepted,
		Reason:     string(res.Decision.Reason),
		Stage:      index,
		Captured:   captured,
		Total:      total,
		Complete:   seq.Complete(),
	}
	if res.Decision.Accepted {
		ev.Stage = res.Decision.Progress.Stage
	}

	if err := s.notifier.Notify(ctx, ev); err != nil {
		log.Debug(log.Fields{"session_id": s.id, "error": err}, "progress notification failed")
	}
}
