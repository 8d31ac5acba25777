package stepper

import (
	"testing"

	werrors "winder-go/pkg/errors"
	"winder-go/pkg/motion"
)

func TestHomingStopsAtSwitch(t *testing.T) {
	tests := []uint64{0, 1, 5, 250}

	for _, triggerAfter := range tests {
		step := &MemoryLine{}
		limit := &CountingSwitch{TriggerAfter: triggerAfter}
		e := NewHomingEngine(HomingConfig{
			Axis:  "x",
			Step:  step,
			Dir:   &MemoryLine{},
			Limit: limit,
			Clock: &CountingClock{},
		})

		emitted, err := e.Run(motion.HomingSpec{Dir: motion.DirNegative, CyclesPerStep: 10})
		if err != nil {
			t.Fatalf("triggerAfter=%d: Run error: %v", triggerAfter, err)
		}

		// The switch is sampled once per pulse cycle, before pulsing:
		// no pulse is emitted in or after the cycle that observed the
		// trigger.
		if emitted != triggerAfter {
			t.Errorf("triggerAfter=%d: emitted %d pulses, want %d", triggerAfter, emitted, triggerAfter)
		}
		if step.Rises() != triggerAfter {
			t.Errorf("triggerAfter=%d: step line rose %d times, want %d", triggerAfter, step.Rises(), triggerAfter)
		}
		if limit.Samples() != triggerAfter+1 {
			t.Errorf("triggerAfter=%d: switch sampled %d times, want %d", triggerAfter, limit.Samples(), triggerAfter+1)
		}
		if e.State() != StateIdle {
			t.Errorf("triggerAfter=%d: final state = %s, want idle", triggerAfter, e.State())
		}
	}
}

func TestHomingAlreadyTriggeredEmitsNoPulse(t *testing.T) {
	step := &MemoryLine{}
	sw := &LatchedSwitch{}
	sw.Trigger()
	clock := &CountingClock{}
	e := NewHomingEngine(HomingConfig{Axis: "z", Step: step, Dir: &MemoryLine{}, Limit: sw, Clock: clock})

	emitted, err := e.Run(motion.HomingSpec{Dir: motion.DirNegative, CyclesPerStep: 4})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if emitted != 0 || step.Writes() != 0 {
		t.Errorf("emitted = %d, step writes = %d, want 0 pulses for an asserted switch", emitted, step.Writes())
	}
	if clock.Cycles() != 0 {
		t.Errorf("slept %d cycles, want 0", clock.Cycles())
	}

	select {
	case <-e.Done():
	default:
		t.Error("no completion signal")
	}
}

func TestHomingDirectionSetOnce(t *testing.T) {
	rec := &eventRecorder{}
	e := NewHomingEngine(HomingConfig{
		Axis:  "c",
		Step:  rec.line("step"),
		Dir:   rec.line("dir"),
		Limit: &CountingSwitch{TriggerAfter: 4},
		Clock: &CountingClock{},
	})

	if _, err := e.Run(motion.HomingSpec{Dir: motion.DirPositive, CyclesPerStep: 6}); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	events := rec.all()
	if len(events) == 0 || events[0] != "dir+" {
		t.Fatalf("first write = %v, want the direction line set toward the switch", events)
	}
	for _, ev := range events[1:] {
		if ev == "dir+" || ev == "dir-" {
			t.Error("direction written again after loading")
		}
	}
}

func TestHomingCadence(t *testing.T) {
	clock := &CountingClock{}
	e := NewHomingEngine(HomingConfig{
		Axis:  "x",
		Step:  &MemoryLine{},
		Dir:   &MemoryLine{},
		Limit: &CountingSwitch{TriggerAfter: 40},
		Clock: clock,
	})

	spec := motion.HomingSpec{Dir: motion.DirNegative, CyclesPerStep: 25}
	if _, err := e.Run(spec); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	want := uint64(40) * uint64(spec.CyclesPerStep)
	if clock.Cycles() != want {
		t.Errorf("total cycles = %d, want %d", clock.Cycles(), want)
	}
}

func TestHomingRejectsMalformedSpec(t *testing.T) {
	step := &MemoryLine{}
	e := NewHomingEngine(HomingConfig{
		Axis:  "x",
		Step:  step,
		Dir:   &MemoryLine{},
		Limit: &LatchedSwitch{},
		Clock: &CountingClock{},
	})

	_, err := e.Run(motion.HomingSpec{Dir: motion.DirNegative, CyclesPerStep: 0})
	if err == nil {
		t.Fatal("zero cadence should be rejected")
	}
	if !werrors.IsTiming(err) {
		t.Errorf("error = %v, want a timing violation", err)
	}
	if step.Writes() != 0 {
		t.Error("no line may be written when the spec is rejected")
	}
}

func TestHomingRejectsOverlappingLoad(t *testing.T) {
	clock := &gateClock{entered: make(chan struct{}), release: make(chan struct{})}
	sw := &CountingSwitch{TriggerAfter: 1}
	e := NewHomingEngine(HomingConfig{Axis: "x", Step: &MemoryLine{}, Dir: &MemoryLine{}, Limit: sw, Clock: clock})

	errCh := make(chan error, 1)
	go func() {
		_, err := e.Run(motion.HomingSpec{Dir: motion.DirNegative, CyclesPerStep: 4})
		errCh <- err
	}()

	<-clock.entered

	_, err := e.Run(motion.HomingSpec{Dir: motion.DirNegative, CyclesPerStep: 4})
	if !werrors.Is(err, werrors.ErrRuntimeBusy) {
		t.Errorf("error = %v, want ErrRuntimeBusy", err)
	}

	close(clock.release)
	<-clock.entered
	if err := <-errCh; err != nil {
		t.Fatalf("first Run error: %v", err)
	}
}
