package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/stagescan/internal/api"
	"github.com/banshee-data/stagescan/internal/config"
	"github.com/banshee-data/stagescan/internal/db"
	"github.com/banshee-data/stagescan/internal/export"
	"github.com/banshee-data/stagescan/internal/monitoring"
	"github.com/banshee-data/stagescan/internal/rig"
	"github.com/banshee-data/stagescan/internal/scan"
	"github.com/banshee-data/stagescan/internal/version"
)

var (
	configPath      = flag.String("config", "", "Path to a JSON scan config (defaults are used when empty)")
	listen          = flag.String("listen", ":8080", "Listen address")
	dbPath          = flag.String("db", "stagescan.db", "SQLite database for completed scans (empty disables storage)")
	devMode         = flag.Bool("dev", false, "Use the simulated stage and sampler")
	stagePort       = flag.String("stage-port", "/dev/ttyUSB0", "Stage controller serial port (ignored in dev mode)")
	samplerPort     = flag.String("sampler-port", "/dev/ttyACM0", "ADC bridge serial port (ignored in dev mode)")
	exportDir       = flag.String("export-dir", "", "Also write every completed scan as CSV into this directory")
	skipHome        = flag.Bool("skip-home", false, "Do not home the stage at startup")
	checkMigrations = flag.Bool("check-migrations", false, "Refuse to start on an out of date database instead of migrating it")
	simSeed         = flag.Int64("seed", 1, "Noise seed for the simulated sampler")
	showVersion     = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n       %s [-db path] migrate <command>\n\n", os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	instruments, err := rig.Open(cfg, rig.Options{
		Dev:         *devMode,
		StagePort:   *stagePort,
		SamplerPort: *samplerPort,
		Seed:        *simSeed,
	})
	if err != nil {
		log.Fatalf("Failed to open instruments: %v", err)
	}
	defer instruments.Close()

	var database *db.DB
	if *dbPath != "" {
		database, err = db.NewDBWithMigrationCheck(*dbPath, *checkMigrations)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
	}

	metrics := monitoring.NewMetrics()
	sink := &api.ResultSink{DB: database, Metrics: metrics}
	if *exportDir != "" {
		sink.Archiver = &export.Archiver{Dir: *exportDir}
	}

	engine := scan.NewEngine(instruments.Model, instruments.Sampler, engineConfig(cfg, sink, metrics))
	defer engine.Close()

	if !*skipHome {
		if err := engine.HomeAllAxes(); err != nil {
			log.Printf("initial homing failed, POST /api/home to retry: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(engine, database, api.Options{
		Defaults:    scan.Params{SampleCount: cfg.GetSampleCount(), Statistic: cfg.GetStatistic()},
		Metrics:     metrics,
		BaseContext: ctx,
	})
	server := &http.Server{
		Addr:              *listen,
		Handler:           api.LoggingMiddleware(srv.ServeMux()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("%s listening on %s", version.String(), *listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Stops any running scan at its next poll point.
	if err := engine.Close(); err != nil {
		log.Printf("engine close error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// loadConfig reads path, or returns the built-in defaults when path is empty.
func loadConfig(path string) (*config.ScanConfig, error) {
	if path == "" {
		return config.EmptyScanConfig(), nil
	}
	return config.LoadScanConfig(path)
}

func engineConfig(cfg *config.ScanConfig, sink *api.ResultSink, metrics *monitoring.Metrics) scan.Config {
	return scan.Config{
		Envelope:        cfg.GetEnvelope(),
		HomingDirection: cfg.GetHomingDirection(),
		SettleTime:      cfg.GetSettleTime(),
		OnResult:        sink.Save,
		Metrics:         metrics,
	}
}
