package config

import "strings"

// AxisNames lists the configurable axis section suffixes, in order.
var AxisNames = []string{"x", "z", "c"}

// AxisSettings holds one axis's configuration from an [axis <name>]
// section.
type AxisSettings struct {
	// MicronsPerStep is the travel per step in thousandths of the axis
	// unit (micrometers for x/z, millidegrees for c).
	MicronsPerStep float64

	StepPin    Pin
	DirPin     Pin
	EndstopPin Pin

	// HomingDir is the travel direction toward the limit switch:
	// "positive" or "negative".
	HomingDir string
}

// LinkSettings holds the execution link configuration.
type LinkSettings struct {
	// Listen is the TCP address winderd serves the command protocol on.
	Listen string

	// Device is an optional serial device for a hardware-attached
	// controller; empty selects the TCP transport.
	Device string

	// Baud is the serial baud rate.
	Baud int
}

// StatusSettings holds the status server configuration.
type StatusSettings struct {
	// Listen is the HTTP/websocket address; empty disables the server.
	Listen string
}

// WinderConfig is the fully parsed and validated winder configuration.
type WinderConfig struct {
	// RapidFeedrate is the rate for G0 moves without a feedrate word,
	// in axis units per second.
	RapidFeedrate float64

	// DefaultFeedrate seeds the sticky G1 feedrate before any F word.
	DefaultFeedrate float64

	// HomingFeedrate is the rate axes travel toward their switches.
	HomingFeedrate float64

	Axes   map[string]AxisSettings
	Link   LinkSettings
	Status StatusSettings
}

// ParseWinderConfig loads and validates a winder configuration file.
func ParseWinderConfig(path string) (*WinderConfig, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return BuildWinderConfig(c)
}

// BuildWinderConfig validates and extracts the typed winder
// configuration from a parsed Config.
func BuildWinderConfig(c *Config) (*WinderConfig, error) {
	w := &WinderConfig{Axes: make(map[string]AxisSettings, len(AxisNames))}

	sec, err := c.GetSection("winder")
	if err != nil {
		return nil, err
	}
	if w.RapidFeedrate, err = sec.GetPositiveFloat("rapid_feedrate", 25); err != nil {
		return nil, err
	}
	if w.DefaultFeedrate, err = sec.GetPositiveFloat("default_feedrate", 1); err != nil {
		return nil, err
	}
	if w.HomingFeedrate, err = sec.GetPositiveFloat("homing_feedrate", 2); err != nil {
		return nil, err
	}

	for _, name := range AxisNames {
		axisSec, err := c.GetSection("axis " + name)
		if err != nil {
			return nil, err
		}
		axis, err := parseAxis(axisSec)
		if err != nil {
			return nil, err
		}
		w.Axes[name] = axis
	}

	if link := c.GetSectionOptional("link"); link != nil {
		if w.Link.Listen, err = link.Get("listen", ":1234"); err != nil {
			return nil, err
		}
		if w.Link.Device, err = link.Get("device", ""); err != nil {
			return nil, err
		}
		if w.Link.Baud, err = link.GetInt("baud", 115200); err != nil {
			return nil, err
		}
	} else {
		w.Link = LinkSettings{Listen: ":1234", Baud: 115200}
	}

	if status := c.GetSectionOptional("status"); status != nil {
		if w.Status.Listen, err = status.Get("listen", ""); err != nil {
			return nil, err
		}
	}

	return w, nil
}

func parseAxis(sec *Section) (AxisSettings, error) {
	var axis AxisSettings
	var err error

	if axis.MicronsPerStep, err = sec.GetPositiveFloat("microns_per_step"); err != nil {
		return axis, err
	}
	if axis.StepPin, err = sec.GetPin("step_pin", PinOptions{}); err != nil {
		return axis, err
	}
	if axis.DirPin, err = sec.GetPin("dir_pin", PinOptions{CanInvert: true}); err != nil {
		return axis, err
	}
	if axis.EndstopPin, err = sec.GetPin("endstop_pin", PinOptions{CanInvert: true, CanPullup: true}); err != nil {
		return axis, err
	}
	if axis.HomingDir, err = sec.GetChoice("homing_dir", []string{"positive", "negative"}, "negative"); err != nil {
		return axis, err
	}
	return axis, nil
}

// AxisSection returns the section name for an axis.
func AxisSection(name string) string {
	return "axis " + strings.ToLower(name)
}
