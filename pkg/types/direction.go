package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Direction is the discrete head orientation presented in a frame
type Direction int

const (
	Straight Direction = iota
	Left
	Right
	Up
	Down
	NoFace
	MultipleFaces
)

var directionNames = [...]string{
	Straight:      "Straight",
	Left:          "Left",
	Right:         "Right",
	Up:            "Up",
	Down:          "Down",
	NoFace:        "NoFace",
	MultipleFaces: "MultipleFaces",
}

func (d Direction) String() string {
	if d < 0 || int(d) >= len(directionNames) {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// Message is the user-facing status text for the direction
func (d Direction) Message() string {
	switch d {
	case NoFace:
		return "No face detected"
	case MultipleFaces:
		return "Multiple faces detected"
	default:
		return d.String()
	}
}

// Capturable reports whether the direction can ever satisfy a capture stage
func (d Direction) Capturable() bool {
	return d >= Straight && d <= Down
}

// ParseDirection parses a direction name, case-insensitively
func ParseDirection(s string) (Direction, error) {
	for i, name := range directionNames {
		if strings.EqualFold(s, name) {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
