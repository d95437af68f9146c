package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/dipscan/internal/testflux"
	"github.com/okian/dipscan/pkg/logger"
)

const defaultTimeout = 5 * time.Minute

func main() {
	def := testflux.DefaultConfig()
	var (
		outputDir = flag.String("out", def.OutputDir, "Directory for light curves, tics.txt and tic_metadata.csv")
		targets   = flag.Int("targets", def.Targets, "Number of targets to generate")
		samples   = flag.Int("samples", def.Samples, "Samples per light curve")
		cadence   = flag.Float64("cadence", def.Cadence, "Days between samples")
		noise     = flag.Float64("noise", def.Noise, "Gaussian flux noise sigma")
		dips      = flag.Int("dips", def.DipsPerTarget, "Injected dips per target")
		periodic  = flag.Float64("periodic", def.PeriodicFraction, "Share of targets with a periodic signal")
		seed      = flag.Int64("seed", def.Seed, "Random seed")
		firstID   = flag.Int("first-id", def.FirstID, "Numeric id of the first target")
		logLevel  = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	if err := logger.Init(logger.WithLevel(*logLevel)); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	cfg := testflux.Config{
		OutputDir:        *outputDir,
		Targets:          *targets,
		Samples:          *samples,
		Cadence:          *cadence,
		Noise:            *noise,
		DipsPerTarget:    *dips,
		PeriodicFraction: *periodic,
		Seed:             *seed,
		FirstID:          *firstID,
	}
	if err := run(cfg); err != nil {
		os.Stderr.WriteString("Generation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(cfg testflux.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	_, err := testflux.Run(ctx, cfg)
	return err
}
