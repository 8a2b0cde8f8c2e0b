package vision

import (
	"errors"
	"math"

	"github.com/menta2k/face-capture/pkg/types"
)

// ErrIndeterminatePose is returned when landmark geometry cannot yield a finite pose
var ErrIndeterminatePose = errors.New("indeterminate pose")

// PoseEstimator derives heuristic yaw/pitch values from facial landmarks
type PoseEstimator struct {
	config PoseConfig
}

// PoseConfig holds the scale factors of the pose heuristic
type PoseConfig struct {
	YawScale    float64
	PitchScale  float64
	PitchOffset float64
}

// DefaultPoseConfig returns the calibrated pose heuristic constants
func DefaultPoseConfig() PoseConfig {
	return PoseConfig{
		YawScale:    100,
		PitchScale:  50,
		PitchOffset: 1.5,
	}
}

// NewPoseEstimator creates a PoseEstimator with default configuration
func NewPoseEstimator() *PoseEstimator {
	return &PoseEstimator{config: DefaultPoseConfig()}
}

// NewPoseEstimatorWithConfig creates a PoseEstimator with custom configuration
func NewPoseEstimatorWithConfig(config PoseConfig) *PoseEstimator {
	return &PoseEstimator{config: config}
}

// Estimate computes the pose of a single face.
//
// Yaw is the horizontal nose offset from the eye midline normalized by the
// inter-eye distance; negative means the head is turned toward the viewer's
// right. Pitch compares the nose-bottom drop below eye level with the nose
// height. Both are ratios, not angles.
func (e *PoseEstimator) Estimate(landmarks types.LandmarkSet) (types.Pose, error) {
	noseTop, okTop := landmarks.NoseTop()
	noseBottom, okBottom := landmarks.NoseBottom()
	if !okTop || !okBottom {
		return types.Pose{}, ErrIndeterminatePose
	}

	leftEye, ok := centroid(landmarks.LeftEye)
	if !ok {
		return types.Pose{}, ErrIndeterminatePose
	}
	rightEye, ok := centroid(landmarks.RightEye)
	if !ok {
		return types.Pose{}, ErrIndeterminatePose
	}

	eyeDistance := rightEye.X - leftEye.X
	noseHeight := noseBottom.Y - noseTop.Y
	if eyeDistance == 0 || noseHeight == 0 {
		return types.Pose{}, ErrIndeterminatePose
	}

	noseCenterX := (noseTop.X + noseBottom.X) / 2
	eyesCenterX := (leftEye.X + rightEye.X) / 2
	yaw := (noseCenterX - eyesCenterX) / eyeDistance * e.config.YawScale

	eyeLevel := (leftEye.Y + rightEye.Y) / 2
	pitch := ((noseBottom.Y-eyeLevel)/noseHeight - e.config.PitchOffset) * e.config.PitchScale

	if !finite(yaw) || !finite(pitch) {
		return types.Pose{}, ErrIndeterminatePose
	}

	return types.Pose{Yaw: yaw, Pitch: pitch}, nil
}

func centroid(points []types.Point) (types.Point, bool) {
	if len(points) == 0 {
		return types.Point{}, false
	}
	var sx, sy float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(points))
	return types.Point{X: sx / n, Y: sy / n}, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
