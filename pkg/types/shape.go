package types

import "fmt"

// 68-point facial shape indices (iBUG 300-W layout)
const (
	NoseStart     = 27
	NoseEnd       = 36
	LeftEyeStart  = 36
	LeftEyeEnd    = 42
	RightEyeStart = 42
	RightEyeEnd   = 48
	ShapePoints   = 68
)

// Indices into LandmarkSet.Nose used as the nose top and bottom reference points
const (
	NoseTopIndex    = 3
	NoseBottomIndex = 6
)

// LandmarksFromShape68 extracts the nose and eye contours from a full 68-point shape
func LandmarksFromShape68(points []Point) (LandmarkSet, error) {
	if len(points) != ShapePoints {
		return LandmarkSet{}, fmt.Errorf("expected %d landmark points, got %d", ShapePoints, len(points))
	}
	clone := func(from, to int) []Point {
		out := make([]Point, to-from)
		copy(out, points[from:to])
		return out
	}
	return LandmarkSet{
		Nose:     clone(NoseStart, NoseEnd),
		LeftEye:  clone(LeftEyeStart, LeftEyeEnd),
		RightEye: clone(RightEyeStart, RightEyeEnd),
	}, nil
}

// NoseTop returns the upper nose reference point
func (l LandmarkSet) NoseTop() (Point, bool) {
	if len(l.Nose) <= NoseTopIndex {
		return Point{}, false
	}
	return l.Nose[NoseTopIndex], true
}

// NoseBottom returns the lower nose reference point
func (l LandmarkSet) NoseBottom() (Point, bool) {
	if len(l.Nose) <= NoseBottomIndex {
		return Point{}, false
	}
	return l.Nose[NoseBottomIndex], true
}

// Points returns every landmark in the set, nose first
func (l LandmarkSet) Points() []Point {
	out := make([]Point, 0, len(l.Nose)+len(l.LeftEye)+len(l.RightEye))
	out = append(out, l.Nose...)
	out = append(out, l.LeftEye...)
	return append(out, l.RightEye...)
}
