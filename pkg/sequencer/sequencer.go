// Package sequencer owns the ordered capture stages and their counters.
//
// A sequence is a fixed table of stages, each targeting one head direction
// with a quota. The active stage is always the first stage that is not yet
// full, so advancing is implicit: filling a stage makes the next one active.
// Once the final stage is full the sequence is complete and never mutates
// again.
package sequencer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/menta2k/face-capture/pkg/types"
)

// DefaultQuota is the number of frames captured per stage
const DefaultQuota = 50

// DoneMessage is reported by LookingFor once every stage is full
const DoneMessage = "Done capturing all images"

var (
	// ErrComplete is returned when recording into a finished sequence
	ErrComplete = errors.New("sequence complete")
	// ErrNotActive is returned when the direction does not match the active stage
	ErrNotActive = errors.New("direction is not the active stage")
)

// StageSpec is one entry of the ordered stage table
type StageSpec struct {
	Target types.Direction `json:"target"`
	Quota  int             `json:"quota"`
}

// Stage is a stage with its running capture count
type Stage struct {
	StageSpec
	Captured int `json:"captured"`
}

// Full reports whether the stage reached its quota
func (s Stage) Full() bool {
	return s.Captured >= s.Quota
}

// Remaining returns how many captures the stage still needs
func (s Stage) Remaining() int {
	if s.Full() {
		return 0
	}
	return s.Quota - s.Captured
}

// State is a point-in-time copy of the sequence
type State struct {
	Stages      []Stage   `json:"stages"`
	Active      int       `json:"active"`
	LastCapture time.Time `json:"last_capture"`
	Complete    bool      `json:"complete"`
}

// Progress describes the outcome of a recorded capture
type Progress struct {
	Stage     int
	Direction types.Direction
	// Index is the 1-based capture number within the stage
	Index int
	Quota int
	// StageFilled is true when this capture filled its stage
	StageFilled bool
	// Completed is true only for the capture that completed the whole sequence
	Completed bool
}

// DefaultStages returns the Straight, Left, Right, Up, Down table
func DefaultStages(quota int) []StageSpec {
	order := []types.Direction{types.Straight, types.Left, types.Right, types.Up, types.Down}
	specs := make([]StageSpec, len(order))
	for i, d := range order {
		specs[i] = StageSpec{Target: d, Quota: quota}
	}
	return specs
}

// Sequencer is the capture state machine. Safe for concurrent use.
type Sequencer struct {
	mu          sync.Mutex
	stages      []Stage
	lastCapture time.Time
}

// New creates a sequencer with the default five stages and quota
func New() *Sequencer {
	s, _ := NewWithStages(DefaultStages(DefaultQuota))
	return s
}

// NewWithStages creates a sequencer over a custom stage table
func NewWithStages(specs []StageSpec) (*Sequencer, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("stage table is empty")
	}
	stages := make([]Stage, len(specs))
	for i, spec := range specs {
		if spec.Quota < 1 {
			return nil, fmt.Errorf("stage %d (%s): quota must be positive", i, spec.Target)
		}
		if !spec.Target.Capturable() {
			return nil, fmt.Errorf("stage %d: %s cannot be a capture target", i, spec.Target)
		}
		stages[i] = Stage{StageSpec: spec}
	}
	return &Sequencer{stages: stages}, nil
}

// activeIndex returns the first non-full stage, or -1 when complete.
// Caller must hold mu.
func (s *Sequencer) activeIndex() int {
	for i, stage := range s.stages {
		if !stage.Full() {
			return i
		}
	}
	return -1
}

// Active returns the currently active stage and its index.
// ok is false when the sequence is complete.
func (s *Sequencer) Active() (stage Stage, index int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.activeIndex()
	if i < 0 {
		return Stage{}, -1, false
	}
	return s.stages[i], i, true
}

// Complete reports whether every stage is full
func (s *Sequencer) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeIndex() < 0
}

// LastCapture returns the time of the most recent accepted capture.
// The zero time means nothing has been captured yet.
func (s *Sequencer) LastCapture() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCapture
}

// LookingFor returns the direction label the sequence expects next
func (s *Sequencer) LookingFor() string {
	stage, _, ok := s.Active()
	if !ok {
		return DoneMessage
	}
	return stage.Target.String()
}

// Record counts one accepted capture of the given direction at time at.
// It fails without mutating anything if the sequence is complete or the
// direction is not the active stage's target.
func (s *Sequencer) Record(direction types.Direction, at time.Time) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.activeIndex()
	if i < 0 {
		return Progress{}, ErrComplete
	}
	stage := &s.stages[i]
	if stage.Target != direction {
		return Progress{}, fmt.Errorf("%w: expected %s, got %s", ErrNotActive, stage.Target, direction)
	}

	stage.Captured++
	s.lastCapture = at

	filled := stage.Full()
	return Progress{
		Stage:       i,
		Direction:   direction,
		Index:       stage.Captured,
		Quota:       stage.Quota,
		StageFilled: filled,
		Completed:   filled && i == len(s.stages)-1,
	}, nil
}

// Snapshot returns a copy of the current state
func (s *Sequencer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	stages := make([]Stage, len(s.stages))
	copy(stages, s.stages)
	active := s.activeIndex()
	return State{
		Stages:      stages,
		Active:      active,
		LastCapture: s.lastCapture,
		Complete:    active < 0,
	}
}

// Total returns the number of captures recorded and the overall target
func (s *Sequencer) Total() (captured, target int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stage := range s.stages {
		captured += stage.Captured
		target += stage.Quota
	}
	return captured, target
}
