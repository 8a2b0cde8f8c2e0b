package sequencer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/menta2k/face-capture/pkg/types"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fill records quota captures of the active stage
func fill(t *testing.T, s *Sequencer, at time.Time) time.Time {
	t.Helper()
	stage, _, ok := s.Active()
	if !ok {
		t.Fatal("fill called on complete sequence")
	}
	for i := 0; i < stage.Remaining(); i++ {
		at = at.Add(100 * time.Millisecond)
		if _, err := s.Record(stage.Target, at); err != nil {
			t.Fatalf("Record(%s) failed: %v", stage.Target, err)
		}
	}
	return at
}

func TestNew(t *testing.T) {
	s := New()

	state := s.Snapshot()
	if len(state.Stages) != 5 {
		t.Fatalf("Expected 5 stages, got %d", len(state.Stages))
	}

	expected := []types.Direction{types.Straight, types.Left, types.Right, types.Up, types.Down}
	for i, stage := range state.Stages {
		if stage.Target != expected[i] {
			t.Errorf("Stage %d: expected %s, got %s", i, expected[i], stage.Target)
		}
		if stage.Quota != DefaultQuota {
			t.Errorf("Stage %d: expected quota %d, got %d", i, DefaultQuota, stage.Quota)
		}
		if stage.Captured != 0 {
			t.Errorf("Stage %d: expected 0 captured, got %d", i, stage.Captured)
		}
	}

	if state.Active != 0 {
		t.Errorf("Expected stage 0 active, got %d", state.Active)
	}
	if !state.LastCapture.IsZero() {
		t.Errorf("Expected zero last capture, got %v", state.LastCapture)
	}
	if s.LookingFor() != "Straight" {
		t.Errorf("Expected looking for Straight, got %s", s.LookingFor())
	}
}

func TestNewWithStagesValidation(t *testing.T) {
	if _, err := NewWithStages(nil); err == nil {
		t.Error("Expected error for empty stage table")
	}
	if _, err := NewWithStages([]StageSpec{{Target: types.Left, Quota: 0}}); err == nil {
		t.Error("Expected error for zero quota")
	}
	if _, err := NewWithStages([]StageSpec{{Target: types.NoFace, Quota: 3}}); err == nil {
		t.Error("Expected error for non-capturable target")
	}
}

func TestRecordRejectsInactiveDirection(t *testing.T) {
	s := New()

	_, err := s.Record(types.Left, epoch)
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("Expected ErrNotActive, got %v", err)
	}

	state := s.Snapshot()
	if state.Stages[0].Captured != 0 || state.Stages[1].Captured != 0 {
		t.Error("Rejected record must not mutate counters")
	}
	if !state.LastCapture.IsZero() {
		t.Error("Rejected record must not update last capture")
	}
}

func TestAutoAdvance(t *testing.T) {
	s := New()
	at := fill(t, s, epoch)

	stage, index, ok := s.Active()
	if !ok || index != 1 || stage.Target != types.Left {
		t.Fatalf("Expected Left stage active after Straight filled, got %s (index %d, ok %v)", stage.Target, index, ok)
	}

	progress, err := s.Record(types.Left, at.Add(time.Second))
	if err != nil {
		t.Fatalf("Record(Left) failed: %v", err)
	}
	if progress.Index != 1 || progress.Stage != 1 {
		t.Errorf("Expected capture #1 of stage 1, got #%d of stage %d", progress.Index, progress.Stage)
	}

	if _, err := s.Record(types.Straight, at.Add(2*time.Second)); !errors.Is(err, ErrNotActive) {
		t.Errorf("Expected full Straight stage to reject, got %v", err)
	}
}

func TestCompletionFiresOnce(t *testing.T) {
	s := New()
	at := epoch
	completions := 0

	for !s.Complete() {
		stage, _, _ := s.Active()
		at = at.Add(100 * time.Millisecond)
		progress, err := s.Record(stage.Target, at)
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if progress.Completed {
			completions++
			if stage.Target != types.Down || progress.Index != DefaultQuota {
				t.Errorf("Completion reported on %s #%d", stage.Target, progress.Index)
			}
		}
	}

	if completions != 1 {
		t.Fatalf("Expected exactly one completion, got %d", completions)
	}

	for _, d := range []types.Direction{types.Straight, types.Left, types.Right, types.Up, types.Down} {
		if _, err := s.Record(d, at.Add(time.Hour)); !errors.Is(err, ErrComplete) {
			t.Errorf("Record(%s) after completion: expected ErrComplete, got %v", d, err)
		}
	}

	if s.LookingFor() != DoneMessage {
		t.Errorf("Expected %q, got %q", DoneMessage, s.LookingFor())
	}

	captured, target := s.Total()
	if captured != 250 || target != 250 {
		t.Errorf("Expected 250/250, got %d/%d", captured, target)
	}
}

func TestActiveStageMonotonicAndQuotaBound(t *testing.T) {
	s := New()
	order := []types.Direction{types.Down, types.Straight, types.Up, types.Left, types.Right}
	at := epoch
	lastActive := 0

	for step := 0; step < 2000 && !s.Complete(); step++ {
		at = at.Add(60 * time.Millisecond)
		_, _ = s.Record(order[step%len(order)], at)

		state := s.Snapshot()
		active := state.Active
		if active < 0 {
			active = len(state.Stages)
		}
		if active < lastActive {
			t.Fatalf("Active stage went backwards: %d -> %d", lastActive, active)
		}
		lastActive = active

		for i, stage := range state.Stages {
			if stage.Captured > stage.Quota {
				t.Fatalf("Stage %d exceeded quota: %d > %d", i, stage.Captured, stage.Quota)
			}
		}
	}

	if !s.Complete() {
		t.Error("Expected rotating directions to eventually complete the sequence")
	}
}

func TestConcurrentRecordNeverExceedsQuota(t *testing.T) {
	s, err := NewWithStages([]StageSpec{{Target: types.Straight, Quota: 10}})
	if err != nil {
		t.Fatalf("NewWithStages failed: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	completions := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			progress, err := s.Record(types.Straight, epoch)
			if err == nil && progress.Completed {
				mu.Lock()
				completions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if got := s.Snapshot().Stages[0].Captured; got != 10 {
		t.Errorf("Expected 10 captures, got %d", got)
	}
	if completions != 1 {
		t.Errorf("Expected one completion, got %d", completions)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := New()
	state := s.Snapshot()
	state.Stages[0].Captured = 49

	if s.Snapshot().Stages[0].Captured != 0 {
		t.Error("Mutating a snapshot must not affect the sequencer")
	}
}
