package client

import (
	"context"

	"github.com/menta2k/face-capture/pkg/types"
)

// LandmarkClient is a facial landmark detection backend.
// Coordinates in the returned faces are in the pixel space of the image sent.
type LandmarkClient interface {
	DetectLandmarks(ctx context.Context, model, imgB64 string) ([]types.Face, error)
}

// Pinger is implemented by backends that can report readiness
type Pinger interface {
	Ping(ctx context.Context) error
}
