// Package winder coordinates the per-axis engines into a machine: it
// tracks position and homing state, translates commands into per-axis
// specs, dispatches them simultaneously and waits for the conjunction
// of completions.
package winder

import (
	"sync"
	"time"

	werrors "winder-go/pkg/errors"
	"winder-go/pkg/gcode"
	"winder-go/pkg/log"
	"winder-go/pkg/metrics"
	"winder-go/pkg/motion"
	"winder-go/pkg/stepper"
)

// AxisHardware is the wiring for one axis.
type AxisHardware struct {
	// Step and Dir are the step and direction output lines, exclusively
	// owned by this axis's engines.
	Step stepper.Line
	Dir  stepper.Line

	// Enable energizes the driver. Optional; nil means no enable line.
	Enable stepper.Line

	// InvertDir flips the direction line polarity.
	InvertDir bool

	// Limit is the axis's limit switch input.
	Limit stepper.Switch

	// Clock paces the pulse loops. Defaults to the wall clock.
	Clock stepper.Clock
}

// Config assembles a Controller.
type Config struct {
	// Calibration per axis, indexed by gcode.Axis.
	Calibration [gcode.NumAxes]motion.AxisCalibration

	// Hardware per axis, indexed by gcode.Axis.
	Hardware [gcode.NumAxes]AxisHardware

	// RapidFeedrate is used by G0 commands without a feedrate word.
	RapidFeedrate float64

	// DefaultFeedrate seeds the sticky feedrate before any F word.
	DefaultFeedrate float64

	// HomingFeedrate is the rate axes travel toward their switches.
	HomingFeedrate float64

	Logger *log.Logger
}

// Controller owns the three axis engines and the machine state. It
// executes one command at a time; a command is complete only when
// every participating axis engine has reached a terminal state.
type Controller struct {
	cfg        Config
	translator *motion.Translator
	pulse      [gcode.NumAxes]*stepper.PulseEngine
	homing     [gcode.NumAxes]*stepper.HomingEngine
	logger     *log.Logger
	metrics    *metrics.WinderMetrics

	// execMu serializes Execute so no engine is ever handed a new spec
	// before reaching a terminal state.
	execMu sync.Mutex

	mu       sync.RWMutex
	position [gcode.NumAxes]float64
	feedrate float64
	homed    bool
	enabled  bool
	lastErr  string
}

// NewController validates the configuration and builds the engines.
func NewController(cfg Config) (*Controller, error) {
	translator, err := motion.NewTranslator(cfg.Calibration)
	if err != nil {
		return nil, err
	}
	if cfg.RapidFeedrate <= 0 || cfg.DefaultFeedrate <= 0 || cfg.HomingFeedrate <= 0 {
		return nil, werrors.InitError("controller", "feedrates must be positive")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.GetLogger("winder")
	}

	c := &Controller{
		cfg:        cfg,
		translator: translator,
		logger:     cfg.Logger,
		metrics:    metrics.Default(),
		feedrate:   cfg.DefaultFeedrate,
	}
	for _, axis := range gcode.Axes() {
		hw := cfg.Hardware[axis]
		if hw.Step == nil || hw.Dir == nil {
			return nil, werrors.InitError("controller",
				"axis "+axis.String()+" is missing step/dir lines")
		}
		if hw.Limit == nil {
			return nil, werrors.InitError("controller",
				"axis "+axis.String()+" is missing a limit switch")
		}
		if hw.Enable == nil {
			hw.Enable = stepper.NullLine{}
			c.cfg.Hardware[axis] = hw
		}
		c.pulse[axis] = stepper.NewPulseEngine(stepper.Config{
			Axis:      axis.String(),
			Step:      hw.Step,
			Dir:       hw.Dir,
			InvertDir: hw.InvertDir,
			Clock:     hw.Clock,
		})
		c.homing[axis] = stepper.NewHomingEngine(stepper.HomingConfig{
			Axis:      axis.String(),
			Step:      hw.Step,
			Dir:       hw.Dir,
			InvertDir: hw.InvertDir,
			Limit:     hw.Limit,
			Clock:     hw.Clock,
		})
	}
	return c, nil
}

// Execute runs one command to completion. Motion commands block until
// every participating axis engine is terminal.
func (c *Controller) Execute(cmd gcode.Command) error {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	code := metrics.Labels{"code": string(cmd.Code)}
	observe := c.metrics.ExecuteSeconds.Timer(code)
	err := c.execute(cmd)
	observe()
	c.metrics.CommandsExecuted.Inc(code)
	if err != nil {
		c.metrics.CommandErrors.Inc(code)
	}

	c.mu.Lock()
	if err != nil {
		c.lastErr = err.Error()
	} else {
		c.lastErr = ""
	}
	c.mu.Unlock()
	return err
}

func (c *Controller) execute(cmd gcode.Command) error {
	switch cmd.Code {
	case gcode.CodeHalt:
		// Sequencing halt; all prior commands have already completed
		// because execution is strictly in order.
		c.logger.Debug("halt")
		return nil

	case gcode.CodeEnableAll:
		return c.setEnabled(true)

	case gcode.CodeDisableAll:
		return c.disable()

	case gcode.CodeDwell:
		c.logger.Debug("dwell %s", cmd.Pause)
		time.Sleep(cmd.Pause)
		return nil

	case gcode.CodePark:
		// Accepted for compatibility; the winder has no park position.
		c.logger.Debug("park")
		return nil

	case gcode.CodeHomeAll:
		return c.homeAll()

	case gcode.CodeRapidMove, gcode.CodeLinearMove:
		return c.move(cmd)

	default:
		return werrors.UnknownCommandError(string(cmd.Code))
	}
}

func (c *Controller) setEnabled(on bool) error {
	for _, axis := range gcode.Axes() {
		c.cfg.Hardware[axis].Enable.Set(on)
	}
	c.mu.Lock()
	c.enabled = on
	c.mu.Unlock()
	c.logger.Info("steppers %s", map[bool]string{true: "enabled", false: "disabled"}[on])
	return nil
}

// disable de-energizes the drivers. Open-loop position is meaningless
// once holding torque is gone, so the tracked position and homed flag
// are reset.
func (c *Controller) disable() error {
	if err := c.setEnabled(false); err != nil {
		return err
	}
	c.mu.Lock()
	c.homed = false
	c.position = [gcode.NumAxes]float64{}
	c.mu.Unlock()
	c.resetPositionGauges()
	return nil
}

// homeAll drives every axis toward its limit switch simultaneously and
// waits for all of them to trigger.
func (c *Controller) homeAll() error {
	specs := [gcode.NumAxes]motion.HomingSpec{}
	for _, axis := range gcode.Axes() {
		// A switch with no input reads as never asserted, so homing
		// against it would pulse forever.
		if w, ok := c.cfg.Hardware[axis].Limit.(interface{ Wired() bool }); ok && !w.Wired() {
			return werrors.InitError("homing",
				"axis "+axis.String()+" limit switch has no input wired")
		}
		spec, err := c.translator.Homing(axis, c.cfg.HomingFeedrate)
		if err != nil {
			return err
		}
		specs[axis] = spec
	}

	errs := make(chan error, gcode.NumAxes)
	for _, axis := range gcode.Axes() {
		go func(axis gcode.Axis) {
			pulses, err := c.homing[axis].Run(specs[axis])
			if err == nil {
				c.logger.WithField("pulses", pulses).Debug("axis %s homed", axis)
				c.metrics.HomingCycles.Inc(metrics.Labels{"axis": axis.String()})
				c.metrics.StepsEmitted.Add(metrics.Labels{"axis": axis.String()}, pulses)
			}
			errs <- err
		}(axis)
	}

	var firstErr error
	for range gcode.Axes() {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}

	c.mu.Lock()
	c.position = [gcode.NumAxes]float64{}
	c.homed = true
	c.mu.Unlock()
	c.resetPositionGauges()
	c.logger.Info("all axes homed")
	return nil
}

func (c *Controller) resetPositionGauges() {
	for _, axis := range gcode.Axes() {
		c.metrics.AxisPosition.Set(metrics.Labels{"axis": axis.String()}, 0)
	}
}

// move translates and dispatches a motion command to every
// participating axis at the same instant, then waits for the
// conjunction of their completions.
func (c *Controller) move(cmd gcode.Command) error {
	c.mu.Lock()
	if cmd.HasFeedrate {
		c.feedrate = cmd.Feedrate
	}
	rate := c.feedrate
	if cmd.Code == gcode.CodeRapidMove && !cmd.HasFeedrate {
		rate = c.cfg.RapidFeedrate
	}
	current := c.position
	c.mu.Unlock()

	specs, err := c.translator.Command(cmd, current, rate)
	if err != nil {
		return err
	}

	errs := make(chan error, len(specs))
	for axis, spec := range specs {
		go func(axis gcode.Axis, spec motion.PulseSpec) {
			errs <- c.pulse[axis].Run(spec)
		}(axis, spec)
	}

	var firstErr error
	for range specs {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}

	c.mu.Lock()
	for axis, spec := range specs {
		target, _ := cmd.Target(axis)
		c.position[axis] = target
		c.metrics.StepsEmitted.Add(metrics.Labels{"axis": axis.String()}, uint64(spec.Steps))
		c.metrics.AxisPosition.Set(metrics.Labels{"axis": axis.String()}, target)
	}
	c.mu.Unlock()
	return nil
}

// Position returns the tracked per-axis position.
func (c *Controller) Position() [gcode.NumAxes]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.position
}

// Homed reports whether a home-all has completed since the last
// disable.
func (c *Controller) Homed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.homed
}

// Enabled reports whether the drivers are energized.
func (c *Controller) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Feedrate returns the current sticky feedrate.
func (c *Controller) Feedrate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.feedrate
}

// AxisStatus is one axis's state snapshot.
type AxisStatus struct {
	Axis     string  `json:"axis"`
	Position float64 `json:"position"`
	Engine   string  `json:"engine_state"`
	Homing   string  `json:"homing_state"`
}

// Status is a machine state snapshot for the status server.
type Status struct {
	Homed     bool         `json:"homed"`
	Enabled   bool         `json:"enabled"`
	Feedrate  float64      `json:"feedrate"`
	Axes      []AxisStatus `json:"axes"`
	LastError string       `json:"last_error,omitempty"`
}

// GetStatus returns the current machine state snapshot.
func (c *Controller) GetStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := Status{
		Homed:     c.homed,
		Enabled:   c.enabled,
		Feedrate:  c.feedrate,
		LastError: c.lastErr,
	}
	for _, axis := range gcode.Axes() {
		status.Axes = append(status.Axes, AxisStatus{
			Axis:     axis.String(),
			Position: c.position[axis],
			Engine:   c.pulse[axis].State().String(),
			Homing:   c.homing[axis].State().String(),
		})
	}
	return status
}
