package stepper

import (
	"sync"
	"testing"

	werrors "winder-go/pkg/errors"
	"winder-go/pkg/motion"
)

// eventRecorder collects labeled line writes so ordering between the
// step and direction lines can be asserted.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) line(label string) LineFunc {
	return func(high bool) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if high {
			r.events = append(r.events, label+"+")
		} else {
			r.events = append(r.events, label+"-")
		}
	}
}

func (r *eventRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func TestPulseEngineExactStepCount(t *testing.T) {
	tests := []uint32{1, 2, 7, 100}

	for _, steps := range tests {
		step := &MemoryLine{}
		e := NewPulseEngine(Config{
			Axis:  "x",
			Step:  step,
			Dir:   &MemoryLine{},
			Clock: &CountingClock{},
		})

		err := e.Run(motion.PulseSpec{Steps: steps, Dir: motion.DirPositive, CyclesPerStep: 10})
		if err != nil {
			t.Fatalf("steps=%d: Run error: %v", steps, err)
		}
		if got := step.Rises(); got != uint64(steps) {
			t.Errorf("steps=%d: emitted %d pulses, want exactly %d", steps, got, steps)
		}
		if e.State() != StateIdle {
			t.Errorf("steps=%d: final state = %s, want idle", steps, e.State())
		}
	}
}

func TestPulseEngineZeroStepsIsNoOp(t *testing.T) {
	step := &MemoryLine{}
	dir := &MemoryLine{}
	clock := &CountingClock{}
	e := NewPulseEngine(Config{Axis: "z", Step: step, Dir: dir, Clock: clock})

	err := e.Run(motion.PulseSpec{Steps: 0, Dir: motion.DirPositive, CyclesPerStep: motion.MinCyclesPerStep})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if step.Writes() != 0 {
		t.Errorf("step line written %d times, want 0", step.Writes())
	}
	if dir.Writes() != 0 {
		t.Errorf("dir line written %d times, want 0", dir.Writes())
	}
	if clock.Cycles() != 0 {
		t.Errorf("slept %d cycles, want 0", clock.Cycles())
	}

	// Completion must still be signaled.
	select {
	case <-e.Done():
	default:
		t.Error("no completion signal for zero-step spec")
	}
}

func TestPulseEngineDirectionSetOnceBeforeFirstPulse(t *testing.T) {
	rec := &eventRecorder{}
	e := NewPulseEngine(Config{
		Axis:  "c",
		Step:  rec.line("step"),
		Dir:   rec.line("dir"),
		Clock: &CountingClock{},
	})

	err := e.Run(motion.PulseSpec{Steps: 3, Dir: motion.DirNegative, CyclesPerStep: 5})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	events := rec.all()
	if len(events) == 0 {
		t.Fatal("no line writes recorded")
	}
	if events[0] != "dir-" {
		t.Errorf("first write = %s, want the direction line", events[0])
	}
	dirWrites := 0
	for _, ev := range events[1:] {
		if ev == "dir-" || ev == "dir+" {
			dirWrites++
		}
	}
	if dirWrites != 0 {
		t.Errorf("direction written %d more times after loading, want 0", dirWrites)
	}
}

func TestPulseEngineDirectionPolarity(t *testing.T) {
	tests := []struct {
		dir       motion.Direction
		invert    bool
		wantLevel bool
	}{
		{motion.DirPositive, false, true},
		{motion.DirNegative, false, false},
		{motion.DirPositive, true, false},
		{motion.DirNegative, true, true},
	}

	for _, tt := range tests {
		dir := &MemoryLine{}
		e := NewPulseEngine(Config{
			Axis:      "x",
			Step:      &MemoryLine{},
			Dir:       dir,
			InvertDir: tt.invert,
			Clock:     &CountingClock{},
		})
		err := e.Run(motion.PulseSpec{Steps: 1, Dir: tt.dir, CyclesPerStep: 4})
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
		if dir.Level() != tt.wantLevel {
			t.Errorf("dir=%s invert=%v: level = %v, want %v",
				tt.dir, tt.invert, dir.Level(), tt.wantLevel)
		}
	}
}

func TestPulseEngineTotalDuration(t *testing.T) {
	clock := &CountingClock{}
	e := NewPulseEngine(Config{Axis: "z", Step: &MemoryLine{}, Dir: &MemoryLine{}, Clock: clock})

	spec := motion.PulseSpec{Steps: 50, Dir: motion.DirPositive, CyclesPerStep: 20}
	if err := e.Run(spec); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	want := uint64(spec.Steps) * uint64(spec.CyclesPerStep)
	if clock.Cycles() != want {
		t.Errorf("total cycles = %d, want %d", clock.Cycles(), want)
	}
}

func TestPulseEngineRejectsMalformedSpecBeforeMotion(t *testing.T) {
	step := &MemoryLine{}
	dir := &MemoryLine{}
	e := NewPulseEngine(Config{Axis: "x", Step: step, Dir: dir, Clock: &CountingClock{}})

	err := e.Run(motion.PulseSpec{Steps: 5, Dir: motion.DirPositive, CyclesPerStep: 1})
	if err == nil {
		t.Fatal("cadence below minimum pulse width should be rejected")
	}
	if !werrors.IsTiming(err) {
		t.Errorf("error = %v, want a timing violation", err)
	}
	if step.Writes() != 0 || dir.Writes() != 0 {
		t.Error("no line may be written when the spec is rejected")
	}
}

// gateClock blocks each Sleep until released, to hold an engine in a
// non-terminal state.
type gateClock struct {
	entered chan struct{}
	release chan struct{}
}

func (c *gateClock) Sleep(uint32) {
	c.entered <- struct{}{}
	<-c.release
}

func TestPulseEngineRejectsOverlappingLoad(t *testing.T) {
	clock := &gateClock{entered: make(chan struct{}), release: make(chan struct{})}
	e := NewPulseEngine(Config{Axis: "x", Step: &MemoryLine{}, Dir: &MemoryLine{}, Clock: clock})

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Run(motion.PulseSpec{Steps: 1, Dir: motion.DirPositive, CyclesPerStep: 4})
	}()

	// Wait until the first run is mid-pulse.
	<-clock.entered

	err := e.Run(motion.PulseSpec{Steps: 1, Dir: motion.DirPositive, CyclesPerStep: 4})
	if err == nil {
		t.Error("overlapping spec load should be rejected")
	} else if !werrors.Is(err, werrors.ErrRuntimeBusy) {
		t.Errorf("error = %v, want ErrRuntimeBusy", err)
	}

	// Release both sleeps (pulse width + cadence remainder).
	close(clock.release)
	<-clock.entered
	if err := <-errCh; err != nil {
		t.Fatalf("first Run error: %v", err)
	}
}

func TestPulseEnginePulseTrainShape(t *testing.T) {
	step := &MemoryLine{}
	e := NewPulseEngine(Config{Axis: "x", Step: step, Dir: &MemoryLine{}, Clock: &CountingClock{}})

	if err := e.Run(motion.PulseSpec{Steps: 3, Dir: motion.DirPositive, CyclesPerStep: 8}); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	// Each pulse is an assert followed by a deassert.
	trace := step.Trace()
	if len(trace) != 6 {
		t.Fatalf("trace length = %d, want 6", len(trace))
	}
	for i, high := range trace {
		want := i%2 == 0
		if high != want {
			t.Errorf("trace[%d] = %v, want %v", i, high, want)
		}
	}
}
