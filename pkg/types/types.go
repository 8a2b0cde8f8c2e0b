package types

import (
	"image"
	"time"
)

// Point is a 2-D landmark coordinate in frame pixel space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is a pixel-space bounding box of a detected face
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Rect converts the box to an integer rectangle
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X+0.5), int(b.Y+0.5), int(b.X+b.W+0.5), int(b.Y+b.H+0.5))
}

// Empty reports whether the box has no area
func (b Box) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// LandmarkSet holds the facial feature contours needed for pose estimation.
// Nose follows the 9-point nose layout of the 68-point shape (points 27..35).
type LandmarkSet struct {
	Nose     []Point `json:"nose"`
	LeftEye  []Point `json:"left_eye"`
	RightEye []Point `json:"right_eye"`
}

// Face is one detected face in a frame
type Face struct {
	Box        Box         `json:"box"`
	Landmarks  LandmarkSet `json:"landmarks"`
	Confidence float64     `json:"confidence"`
}

// Pose is the heuristic head orientation derived from landmarks.
// Values are scale-normalized offsets, not degrees.
type Pose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// Frame is a single video frame handed to the capture loop
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Image     image.Image
	Source    string
}

// CapturedFrame is an accepted, encoded face crop handed to a frame sink
type CapturedFrame struct {
	Data      []byte    `json:"-"`
	Direction Direction `json:"direction"`
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Format    string    `json:"format"`
}

// Label returns the direction label used for file names and archives
func (c CapturedFrame) Label() string {
	return c.Direction.String()
}
