// windergen produces a framed G-code winding program for a
// parameterized wire layout. It is a client of the command model: the
// emitted file is what winderctl run streams to the controller.
//
// Usage:
//
//	windergen [options] > bobbin.gcode
//
// Options:
//
//	-width float     Bobbin winding width in mm (default 40)
//	-layers int      Number of wire layers (default 4)
//	-turns float     Spindle turns per layer (default 200)
//	-feedrate float  Winding feedrate (default 10)
//	-jitter float    Random traverse jitter in mm (default 0)
//	-seed int        Jitter seed; same seed, same program (default 1)
//	-o string        Output file (default stdout)
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"winder-go/pkg/gcode"
)

func main() {
	width := flag.Float64("width", 40, "Bobbin winding width in mm")
	layers := flag.Int("layers", 4, "Number of wire layers")
	turns := flag.Float64("turns", 200, "Spindle turns per layer")
	feedrate := flag.Float64("feedrate", 10, "Winding feedrate")
	jitter := flag.Float64("jitter", 0, "Random traverse jitter in mm")
	seed := flag.Int64("seed", 1, "Jitter seed")
	output := flag.String("o", "", "Output file (default stdout)")
	flag.Parse()

	prog, err := generate(*width, *layers, *turns, *feedrate, *jitter, *seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	if _, err := out.WriteString(prog.Serialize()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// generate lays wire in alternating traverse sweeps: each layer is one
// linear move that advances the spindle by the layer's turn count
// while the traverse crosses the winding width, so the wire pitch is
// width/turns. Jitter perturbs the sweep endpoints to break up
// perfectly aligned layer boundaries.
func generate(width float64, layers int, turns, feedrate, jitter float64, seed int64) (*gcode.Program, error) {
	if width <= 0 || layers <= 0 || turns <= 0 || feedrate <= 0 {
		return nil, fmt.Errorf("width, layers, turns and feedrate must be positive")
	}
	if jitter < 0 || jitter >= width/2 {
		return nil, fmt.Errorf("jitter must be in [0, width/2)")
	}

	rng := rand.New(rand.NewSource(seed))
	prog := gcode.NewProgram()

	totalTurns := 0.0
	for layer := 0; layer < layers; layer++ {
		// Odd layers sweep back toward the start.
		end := width
		if layer%2 == 1 {
			end = 0
		}
		if jitter > 0 {
			end += (rng.Float64()*2 - 1) * jitter
			if end < 0 {
				end = 0
			}
		}

		totalTurns += turns
		move, err := gcode.LinearMove(map[gcode.Axis]float64{
			gcode.AxisZ: round3(end),
			gcode.AxisC: round3(totalTurns),
		})
		if err != nil {
			return nil, err
		}
		if layer == 0 {
			move = move.WithFeedrate(feedrate)
		}
		prog.Add(move)
	}

	// Park the traverse at home before the drivers are disabled.
	park, err := gcode.LinearMove(map[gcode.Axis]float64{gcode.AxisZ: 0})
	if err != nil {
		return nil, err
	}
	prog.Add(park)
	return prog, nil
}

// round3 trims float noise from jittered targets to 1 µm.
func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}
