// sample-timer measures how long the sampler takes per reading.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/stagescan/internal/config"
	"github.com/banshee-data/stagescan/internal/rig"
	"github.com/banshee-data/stagescan/internal/sampler"
	"github.com/banshee-data/stagescan/internal/timeutil"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON scan config (defaults are used when empty)")
	devMode     = flag.Bool("dev", false, "Use the simulated sampler")
	samplerPort = flag.String("sampler-port", "/dev/ttyUSB1", "Sampler serial port (ignored in dev mode)")
	reads       = flag.Int("n", 1000, "Number of readings to time")
)

func main() {
	flag.Parse()

	cfg := config.EmptyScanConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadScanConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	r, err := rig.OpenSampler(cfg, rig.Options{Dev: *devMode, SamplerPort: *samplerPort})
	if err != nil {
		log.Fatalf("Failed to open sampler: %v", err)
	}
	defer r.Close()

	if err := timeReads(os.Stdout, r.Sampler, *reads, timeutil.RealClock{}); err != nil {
		log.Fatal(err)
	}
}

// timeReads takes n readings and reports the total and per-read wall time.
func timeReads(w io.Writer, s sampler.Sampler, n int, clock timeutil.Clock) error {
	if n <= 0 {
		return fmt.Errorf("reading count must be positive, got %d", n)
	}
	start := clock.Now()
	for i := 0; i < n; i++ {
		if _, err := s.ReadOne(); err != nil {
			return fmt.Errorf("read %d: %w", i+1, err)
		}
	}
	total := clock.Since(start)
	fmt.Fprintf(w, "%d reads: Total %s, Per read %s\n", n, total, total/time.Duration(n))
	return nil
}
