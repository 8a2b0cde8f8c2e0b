package vision

import "github.com/menta2k/face-capture/pkg/types"

// DirectionOf maps one frame's detections to a direction. Zero faces give
// NoFace and two or more give MultipleFaces. For a single face the pose is
// estimated and classified; if estimation fails the error is returned with
// NoFace and a nil pose.
func DirectionOf(faces []types.Face, est *PoseEstimator, cls *DirectionClassifier) (types.Direction, *types.Pose, error) {
	switch len(faces) {
	case 0:
		return types.NoFace, nil, nil
	case 1:
		pose, err := est.Estimate(faces[0].Landmarks)
		if err != nil {
			return types.NoFace, nil, err
		}
		return cls.Classify(pose), &pose, nil
	default:
		return types.MultipleFaces, nil, nil
	}
}
