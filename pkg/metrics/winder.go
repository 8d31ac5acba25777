// Winder host metric definitions
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import "sync"

// WinderMetrics groups every metric the winder host emits. Motion
// metrics carry an "axis" label, command metrics a "code" label with
// the serialized command code (G1, M17, ...).
type WinderMetrics struct {
	// Link server
	LinesReceived *Counter
	LinesRejected *Counter
	QueueDepth    *Gauge

	// Command execution
	CommandsExecuted *Counter
	CommandErrors    *Counter
	ExecuteSeconds   *Histogram

	// Motion
	StepsEmitted *Counter
	HomingCycles *Counter
	AxisPosition *Gauge
}

// NewWinderMetrics creates the winder metrics and registers them in
// the given registry.
func NewWinderMetrics(reg *Registry) *WinderMetrics {
	wm := &WinderMetrics{
		LinesReceived: NewCounter("winder_lines_received_total",
			"Command lines received over the execution link"),
		LinesRejected: NewCounter("winder_lines_rejected_total",
			"Command lines refused with an error ack"),
		QueueDepth: NewGauge("winder_queue_depth",
			"Commands accepted but not yet executed"),
		CommandsExecuted: NewCounter("winder_commands_executed_total",
			"Commands executed, by code"),
		CommandErrors: NewCounter("winder_command_errors_total",
			"Commands that failed during execution, by code"),
		ExecuteSeconds: NewHistogram("winder_command_execute_seconds",
			"Wall time spent executing one command", DefaultBuckets()),
		StepsEmitted: NewCounter("winder_steps_emitted_total",
			"Step pulses commanded, by axis"),
		HomingCycles: NewCounter("winder_homing_cycles_total",
			"Completed homing runs, by axis"),
		AxisPosition: NewGauge("winder_axis_position_mm",
			"Tracked logical position, by axis"),
	}
	reg.MustRegister(wm.LinesReceived)
	reg.MustRegister(wm.LinesRejected)
	reg.MustRegister(wm.QueueDepth)
	reg.MustRegister(wm.CommandsExecuted)
	reg.MustRegister(wm.CommandErrors)
	reg.MustRegister(wm.ExecuteSeconds)
	reg.MustRegister(wm.StepsEmitted)
	reg.MustRegister(wm.HomingCycles)
	reg.MustRegister(wm.AxisPosition)
	return wm
}

var (
	winderOnce    sync.Once
	winderMetrics *WinderMetrics
)

// Default returns the winder metrics registered in the default
// registry, creating them on first use.
func Default() *WinderMetrics {
	winderOnce.Do(func() {
		winderMetrics = NewWinderMetrics(defaultRegistry)
	})
	return winderMetrics
}
