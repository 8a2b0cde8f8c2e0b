package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/menta2k/face-capture/pkg/client"
	"github.com/menta2k/face-capture/pkg/processing"
	"github.com/menta2k/face-capture/pkg/types"
)

// ErrNoClient is returned when a detector has no landmark backend
var ErrNoClient = errors.New("no landmark client configured")

// DefaultPrompt is the instruction sent to vision-model backends
const DefaultPrompt = `You are a facial landmark locator.

Return JSON only:
{
  "faces": [
    {
      "box": {"x": 0, "y": 0, "w": 0, "h": 0},
      "confidence": 0.0,
      "landmarks": [{"x": 0, "y": 0}]
    }
  ]
}

HARD RULES
- Coordinates are PIXELS of the image you received, origin top-left.
- "landmarks" is the 68-point iBUG face shape in order: jaw 0-16, brows 17-26,
  nose 27-35, left eye 36-41, right eye 42-47, mouth 48-67.
- One entry per visible human face. No faces: {"faces": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Config holds detector settings
type Config struct {
	Model         string
	Prompt        string
	SendFormat    string
	SendMaxDim    int
	SendQuality   int
	MinConfidence float64
}

// DefaultConfig returns the default detector settings
func DefaultConfig() Config {
	return Config{
		Prompt:      DefaultPrompt,
		SendFormat:  "jpg",
		SendMaxDim:  1024,
		SendQuality: 90,
	}
}

// Detector turns frames into face detections using a landmark backend
type Detector struct {
	client    client.LandmarkClient
	processor *processing.Processor
	config    Config
}

// NewDetector creates a new detector with a landmark client
func NewDetector(c client.LandmarkClient, config Config) *Detector {
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	return &Detector{
		client:    c,
		processor: processing.NewProcessor(),
		config:    config,
	}
}

// Ready checks that the backend is reachable, when it supports probing
func (d *Detector) Ready(ctx context.Context) error {
	if d.client == nil {
		return ErrNoClient
	}
	if p, ok := d.client.(client.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Detect finds faces in a frame. Returned coordinates are in frame pixels.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	if d.client == nil {
		return nil, ErrNoClient
	}

	imgB64, scale, err := d.processor.PrepareImageForModel(img, d.config.SendFormat, d.config.SendMaxDim, d.config.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare frame: %w", err)
	}

	faces, err := d.client.DetectLandmarks(ctx, d.config.Model, imgB64)
	if err != nil {
		return nil, fmt.Errorf("landmark detection failed: %w", err)
	}

	return d.normalizeFaces(faces, scale, img.Bounds()), nil
}

// normalizeFaces rescales detections to frame space and clamps boxes.
// Every face the backend reported is kept so the face count stays intact.
// A face off the frame keeps an empty box and one below MinConfidence
// loses its landmarks; neither can be captured.
func (d *Detector) normalizeFaces(faces []types.Face, scale float64, bounds image.Rectangle) []types.Face {
	out := make([]types.Face, 0, len(faces))
	for _, f := range faces {
		f.Box = clampBox(scaleBox(f.Box, scale), bounds)
		if f.Confidence < d.config.MinConfidence {
			f.Landmarks = types.LandmarkSet{}
		} else {
			f.Landmarks = types.LandmarkSet{
				Nose:     scalePoints(f.Landmarks.Nose, scale),
				LeftEye:  scalePoints(f.Landmarks.LeftEye, scale),
				RightEye: scalePoints(f.Landmarks.RightEye, scale),
			}
		}
		out = append(out, f)
	}
	return out
}

func scaleBox(b types.Box, s float64) types.Box {
	return types.Box{X: b.X * s, Y: b.Y * s, W: b.W * s, H: b.H * s}
}

func scalePoints(points []types.Point, s float64) []types.Point {
	if len(points) == 0 {
		return nil
	}
	out := make([]types.Point, len(points))
	for i, p := range points {
		out[i] = types.Point{X: p.X * s, Y: p.Y * s}
	}
	return out
}

// clampBox ensures the box lies within the frame bounds
func clampBox(b types.Box, bounds image.Rectangle) types.Box {
	minX, minY := float64(bounds.Min.X), float64(bounds.Min.Y)
	maxX, maxY := float64(bounds.Max.X), float64(bounds.Max.Y)

	x0 := clamp(b.X, minX, maxX)
	y0 := clamp(b.Y, minY, maxY)
	x1 := clamp(b.X+b.W, minX, maxX)
	y1 := clamp(b.Y+b.H, minY, maxY)

	return types.Box{X: x0, Y: y0, W: math.Max(0, x1-x0), H: math.Max(0, y1-y0)}
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
