// Package facecapture guides a subject through a five-pose face capture.
//
// Frames flow through a landmark detector, a 2-D pose heuristic and a
// direction classifier. A capture gate then accepts frames whose direction
// matches the active stage of a Straight, Left, Right, Up, Down sequence,
// spacing captures by a debounce interval. Accepted faces are cropped to a
// 224x224 square and handed to a frame sink; when the last stage fills the
// capture directory is archived once.
//
// Basic usage:
//
//	cfg := config.Default()
//	app, err := facecapture.New(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer app.Close()
//
//	src, _ := stream.NewDirSource("./frames")
//	sess, err := app.NewSession(ctx, src)
//	if err != nil {
//		log.Fatal(err)
//	}
//	summary, err := sess.Run(ctx)
//
// The package wires these components:
//
//  1. Detection (pkg/detection, pkg/ollama, pkg/llamacpp, pkg/wsclient): landmark backends
//  2. Vision (pkg/vision): pose estimation and direction classification
//  3. Gate and sequencer (pkg/gate, pkg/sequencer): the capture state machine
//  4. Sink and archive (pkg/sink, pkg/archive, pkg/storage/s3): persistence
//  5. Session (pkg/session): the paced tick loop
package facecapture

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/face-capture/internal/config"
	"github.com/menta2k/face-capture/pkg/archive"
	"github.com/menta2k/face-capture/pkg/client"
	"github.com/menta2k/face-capture/pkg/cropper"
	"github.com/menta2k/face-capture/pkg/detection"
	"github.com/menta2k/face-capture/pkg/gate"
	"github.com/menta2k/face-capture/pkg/llamacpp"
	"github.com/menta2k/face-capture/pkg/notify"
	"github.com/menta2k/face-capture/pkg/ollama"
	"github.com/menta2k/face-capture/pkg/sequencer"
	"github.com/menta2k/face-capture/pkg/session"
	"github.com/menta2k/face-capture/pkg/sink"
	"github.com/menta2k/face-capture/pkg/storage/s3"
	"github.com/menta2k/face-capture/pkg/stream"
	"github.com/menta2k/face-capture/pkg/types"
	"github.com/menta2k/face-capture/pkg/vision"
	"github.com/menta2k/face-capture/pkg/wsclient"
)

// Version of the face capture library
const Version = "1.0.0"

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

// Classification is the per-frame reading of a single image
type Classification struct {
	Faces      []types.Face    `json:"faces"`
	Direction  types.Direction `json:"direction"`
	Message    string          `json:"message"`
	Pose       *types.Pose     `json:"pose,omitempty"`
	PoseError  string          `json:"pose_error,omitempty"`
	Capturable bool            `json:"capturable"`
}

// App holds the components built from a configuration
type App struct {
	cfg        *config.Config
	client     client.LandmarkClient
	detector   *detection.Detector
	estimator  *vision.PoseEstimator
	classifier *vision.DirectionClassifier
	notifier   notify.Multi
	dialMQTT   func(context.Context, notify.MQTTConfig) (*notify.MQTTNotifier, error)
}

// New builds the detector and vision components from cfg
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lc, err := NewLandmarkClient(cfg.Detector)
	if err != nil {
		return nil, err
	}
	return NewWithClient(cfg, lc), nil
}

// NewWithClient builds an app around an existing landmark backend
func NewWithClient(cfg *config.Config, lc client.LandmarkClient) *App {
	return &App{
		cfg:    cfg,
		client: lc,
		detector: detection.NewDetector(lc, detection.Config{
			Model:         cfg.Detector.Model,
			Prompt:        cfg.Detector.Prompt,
			SendFormat:    cfg.Detector.SendFormat,
			SendMaxDim:    cfg.Detector.SendMaxDim,
			SendQuality:   cfg.Detector.SendQuality,
			MinConfidence: cfg.Detector.MinConfidence,
		}),
		estimator:  vision.NewPoseEstimator(),
		classifier: vision.NewDirectionClassifierWithConfig(classifierConfig(cfg.Classifier)),
		dialMQTT:   notify.DialMQTT,
	}
}

// NewLandmarkClient creates the backend named by the detector config
func NewLandmarkClient(cfg config.DetectorConfig) (client.LandmarkClient, error) {
	switch cfg.Backend {
	case "ollama":
		c, err := ollama.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c.WithPrompt(cfg.Prompt), nil
	case "llamacpp":
		c, err := llamacpp.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c.WithPrompt(cfg.Prompt), nil
	case "websocket":
		return wsclient.NewClient(cfg.URL), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

func classifierConfig(c config.ClassifierConfig) vision.ClassifierConfig {
	return vision.ClassifierConfig{
		YawThreshold:   c.YawThreshold,
		PitchThreshold: c.PitchThreshold,
		UpPitchMax:     c.UpPitchMax,
		DownPitchMin:   c.DownPitchMin,
		VerticalYawMax: c.VerticalYawMax,
		LeftYawMin:     c.LeftYawMin,
	}
}

// Detector returns the configured detector
func (a *App) Detector() *detection.Detector {
	return a.detector
}

// Classify detects faces in img and classifies the head direction
func (a *App) Classify(ctx context.Context, img image.Image) (Classification, error) {
	if timeout := a.cfg.Detector.Timeout.Duration; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	faces, err := a.detector.Detect(ctx, img)
	if err != nil {
		return Classification{}, err
	}
	return a.ClassifyFaces(faces), nil
}

// ClassifyFaces classifies already detected faces
func (a *App) ClassifyFaces(faces []types.Face) Classification {
	dir, pose, err := vision.DirectionOf(faces, a.estimator, a.classifier)
	c := Classification{
		Faces:      faces,
		Direction:  dir,
		Message:    dir.Message(),
		Pose:       pose,
		Capturable: err == nil && dir.Capturable(),
	}
	if err != nil {
		c.PoseError = err.Error()
		c.Message = "Indeterminate pose"
	}
	return c
}

// NewSession builds the sequencer, gate, sink, archive and notifier for
// one capture sequence reading from src. Each session writes into its own
// subdirectory (or key prefix) named by the session id, so the archive
// only packs that sequence.
func (a *App) NewSession(ctx context.Context, src stream.Source) (*session.Session, error) {
	seq, err := sequencer.NewWithStages(sequencer.DefaultStages(a.cfg.Capture.Quota))
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	fs, trigger, err := a.storage(id)
	if err != nil {
		return nil, err
	}

	g, err := gate.New(seq, cropper.NewWithConfig(cropper.CropConfig{
		Margin: a.cfg.Crop.Margin,
		Size:   a.cfg.Crop.Size,
		Square: true,
	}), fs, trigger, gate.Config{
		Debounce: a.cfg.Capture.Debounce.Duration,
		Format:   a.cfg.Crop.Format,
		Quality:  a.cfg.Crop.Quality,
		Lossless: a.cfg.Crop.Lossless,
	})
	if err != nil {
		return nil, err
	}

	n, err := a.notifiers(ctx)
	if err != nil {
		return nil, err
	}

	return session.New(src, timeoutDetector{a.detector, a.cfg.Detector.Timeout.Duration}, g,
		a.estimator, a.classifier, n, session.Config{
			ID:           id,
			Tick:         a.cfg.Capture.Tick.Duration,
			ReadyTimeout: a.cfg.Detector.Timeout.Duration,
		}), nil
}

// storage builds the frame sink and the completion archive for one session
func (a *App) storage(id string) (sink.FrameSink, archive.Trigger, error) {
	var (
		uploader s3.Uploader
		err      error
	)
	if a.cfg.Sink.Type == "s3" || a.cfg.Archive.Upload {
		uploader, err = s3.New(s3.Config{
			Bucket:   a.cfg.Sink.S3.Bucket,
			Region:   a.cfg.Sink.S3.Region,
			Prefix:   a.cfg.Sink.S3.Prefix,
			Endpoint: a.cfg.Sink.S3.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	if a.cfg.Sink.Type == "s3" {
		return sink.NewS3Sink(uploader).WithPrefix(id), nil, nil
	}

	ds, err := sink.NewDirSink(filepath.Join(a.cfg.Sink.Dir, id))
	if err != nil {
		return nil, nil, err
	}
	if !a.cfg.Archive.Enabled {
		return ds, nil, nil
	}
	za := archive.NewZipArchiver(ds.Dir(), a.cfg.Archive.Name)
	if a.cfg.Archive.Upload {
		za.WithUploader(uploader).WithKey(id + "/" + za.Name())
	}
	return ds, za, nil
}

// notifiers builds the progress notifiers once. A failed broker dial
// leaves nothing cached so the next session dials again.
func (a *App) notifiers(ctx context.Context) (notify.Notifier, error) {
	if len(a.notifier) > 0 {
		return a.notifier, nil
	}
	n := notify.Multi{notify.LogNotifier{}}

	m := a.cfg.Notify.MQTT
	if m.Enabled {
		mn, err := a.dialMQTT(ctx, notify.MQTTConfig{
			Broker:      m.Broker,
			ClientID:    m.ClientID,
			Username:    os.Getenv("MQTT_USERNAME"),
			Password:    os.Getenv("MQTT_PASSWORD"),
			TopicPrefix: m.TopicPrefix,
			QoS:         m.QoS,
		})
		if err != nil {
			return nil, err
		}
		n = append(n, mn)
	}
	a.notifier = n
	return n, nil
}

// Close releases backend and broker connections
func (a *App) Close() error {
	err := a.notifier.Close()
	if c, ok := a.client.(interface{ Close() error }); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// timeoutDetector bounds each detection with the configured request timeout
type timeoutDetector struct {
	*detection.Detector
	timeout time.Duration
}

func (d timeoutDetector) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.Detector.Detect(ctx, img)
}
