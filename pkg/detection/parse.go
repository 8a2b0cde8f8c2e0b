package detection

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/menta2k/face-capture/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInlineComment = regexp.MustCompile(`(?m)//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// RawFace is the wire shape of one face returned by a landmark backend.
// Landmarks is either a full 68-point shape or empty when only the grouped
// fields are provided.
type RawFace struct {
	Box        types.Box     `json:"box"`
	Confidence *float64      `json:"confidence,omitempty"`
	Landmarks  []types.Point `json:"landmarks"`
	Nose       []types.Point `json:"nose,omitempty"`
	LeftEye    []types.Point `json:"left_eye,omitempty"`
	RightEye   []types.Point `json:"right_eye,omitempty"`
}

// Response is the wire shape of a landmark backend answer
type Response struct {
	Faces []RawFace `json:"faces"`
}

// Face converts the wire face into a detection
func (r RawFace) Face() (types.Face, error) {
	face := types.Face{Box: r.Box, Confidence: 1}
	if r.Confidence != nil {
		face.Confidence = *r.Confidence
	}

	switch {
	case len(r.Landmarks) == types.ShapePoints:
		set, err := types.LandmarksFromShape68(r.Landmarks)
		if err != nil {
			return types.Face{}, err
		}
		face.Landmarks = set
	case len(r.Landmarks) > 0:
		return types.Face{}, fmt.Errorf("expected %d landmark points, got %d", types.ShapePoints, len(r.Landmarks))
	default:
		face.Landmarks = types.LandmarkSet{Nose: r.Nose, LeftEye: r.LeftEye, RightEye: r.RightEye}
	}
	return face, nil
}

// ParseResponse decodes a backend answer into faces.
// A face with a malformed landmark list keeps its box but loses its
// landmarks, so it still counts toward the face total.
func ParseResponse(raw string) ([]types.Face, error) {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse landmark response: %w", err)
	}

	faces := make([]types.Face, 0, len(resp.Faces))
	for _, rf := range resp.Faces {
		face, err := rf.Face()
		if err != nil {
			face = types.Face{Box: rf.Box, Confidence: 1}
			if rf.Confidence != nil {
				face.Confidence = *rf.Confidence
			}
		}
		faces = append(faces, face)
	}
	return faces, nil
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from a model answer
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reInlineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
