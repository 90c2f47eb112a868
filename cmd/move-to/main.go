// move-to homes the stage and drives it to an absolute (x, y) position.
//
// Usage: move-to [flags] <x> <y>
package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/banshee-data/stagescan/internal/config"
	"github.com/banshee-data/stagescan/internal/geometry"
	"github.com/banshee-data/stagescan/internal/rig"
	"github.com/banshee-data/stagescan/internal/stage"
)

var (
	configPath = flag.String("config", "", "Path to a JSON scan config (defaults are used when empty)")
	devMode    = flag.Bool("dev", false, "Use the simulated stage")
	stagePort  = flag.String("stage-port", "/dev/ttyUSB0", "Stage controller serial port (ignored in dev mode)")
)

func main() {
	flag.Parse()
	if flag.NArg() != 2 {
		log.Fatalf("usage: move-to [flags] <x> <y>")
	}
	target, err := parseTarget(flag.Arg(0), flag.Arg(1))
	if err != nil {
		log.Fatal(err)
	}

	cfg := config.EmptyScanConfig()
	if *configPath != "" {
		if cfg, err = config.LoadScanConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	r, err := rig.OpenStage(cfg, rig.Options{Dev: *devMode, StagePort: *stagePort})
	if err != nil {
		log.Fatalf("Failed to open stage: %v", err)
	}
	defer r.Close()

	log.Printf("Moving to (%g, %g)", target[stage.X], target[stage.Y])
	if err := moveTo(r.Model, cfg.GetEnvelope(), cfg.GetHomingDirection(), target); err != nil {
		log.Fatal(err)
	}
	log.Printf("Done")
}

func parseTarget(xs, ys string) (geometry.Vector, error) {
	var v geometry.Vector
	for axis, s := range []string{xs, ys} {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return v, fmt.Errorf("invalid %s coordinate %q: %w", stage.Axis(axis), s, err)
		}
		v[axis] = f
	}
	return v, nil
}

// moveTo homes both axes and moves to target, refusing targets outside env.
func moveTo(m *stage.Model, env geometry.Envelope, direction int, target geometry.Vector) error {
	for _, axis := range []stage.Axis{stage.X, stage.Y} {
		if !env[axis].Contains(target[axis]) {
			return fmt.Errorf("%s target %g outside travel %s", axis, target[axis], env[axis])
		}
	}
	for _, axis := range []stage.Axis{stage.X, stage.Y} {
		if err := m.Home(axis, direction); err != nil {
			return err
		}
	}
	for _, axis := range []stage.Axis{stage.X, stage.Y} {
		if err := m.MoveAbsolute(axis, target[axis]); err != nil {
			return err
		}
	}
	return nil
}
