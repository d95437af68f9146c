package testflux

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	repository "github.com/okian/dipscan/internal/adapters/repository"
	"github.com/okian/dipscan/pkg/logger"
)

// Catalog column names as the upstream TIC export spells them.
const (
	catalogKeyColumn    = "tic_id"
	catalogMagColumn    = "Tmag"
	catalogRadiusColumn = "rad"
	catalogTeffColumn   = "Teff"
)

// Run generates curves and writes them with the target list and catalog.
func Run(ctx context.Context, cfg Config) (Summary, error) {
	start := time.Now()
	log := logger.Get().Named("synth-flux")
	log.Info(ctx, "generating synthetic light curves",
		logger.Int("targets", cfg.Targets),
		logger.Int("samples", cfg.Samples),
		logger.Int64("seed", cfg.Seed),
	)

	curves := Generate(cfg)
	summary, err := Write(ctx, cfg, curves)
	if err != nil {
		return Summary{}, err
	}
	summary.Duration = time.Since(start)

	log.Info(ctx, "synthetic data written",
		logger.String("run_id", summary.RunID),
		logger.Int("dips", summary.Dips),
		logger.Int("periodic", summary.Periodic),
		logger.String("output_dir", cfg.OutputDir),
		logger.Duration("elapsed", summary.Duration),
	)
	return summary, nil
}

// Write persists curves as one CSV per target plus tics.txt and tic_metadata.csv.
func Write(ctx context.Context, cfg Config, curves []Curve) (Summary, error) {
	s := Summary{RunID: uuid.NewString(), Targets: len(curves)}

	for i := range curves {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		c := &curves[i]
		path := filepath.Join(cfg.SeriesDir(), repository.FileStem(c.Series.TargetID)+".csv")
		if err := repository.SaveTable(path, seriesTable(c)); err != nil {
			return Summary{}, fmt.Errorf("write %s: %w", path, err)
		}
		s.Files = append(s.Files, path)
		s.Dips += len(c.Dips)
		if c.Period > 0 {
			s.Periodic++
		}
	}

	targets := cfg.TargetsFile()
	if err := repository.WriteFileAtomic(targets, func(w io.Writer) error {
		return writeTargets(w, s.RunID, curves)
	}); err != nil {
		return Summary{}, fmt.Errorf("write %s: %w", targets, err)
	}
	meta := cfg.MetadataFile()
	if err := repository.SaveTable(meta, metadataTable(curves)); err != nil {
		return Summary{}, fmt.Errorf("write %s: %w", meta, err)
	}
	s.Files = append(s.Files, targets, meta)
	return s, nil
}

func seriesTable(c *Curve) *repository.Table {
	t := repository.NewTable(repository.ColTime, repository.ColFlux)
	for _, p := range c.Series.Samples {
		t.Append(map[string]string{
			repository.ColTime: repository.FormatFloat(p.Time),
			repository.ColFlux: repository.FormatFloat(p.Flux),
		})
	}
	return t
}

func writeTargets(w io.Writer, runID string, curves []Curve) error {
	var b strings.Builder
	b.WriteString("# synthetic targets, run " + runID + "\n")
	for i := range curves {
		b.WriteString(curves[i].Series.TargetID + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func metadataTable(curves []Curve) *repository.Table {
	t := repository.NewTable(catalogKeyColumn, repository.ColRA, repository.ColDec,
		catalogMagColumn, catalogRadiusColumn, catalogTeffColumn)
	for i := range curves {
		md := curves[i].Metadata
		t.Append(map[string]string{
			catalogKeyColumn:    md.TargetID,
			repository.ColRA:    repository.FormatOptFloat(md.RA),
			repository.ColDec:   repository.FormatOptFloat(md.Dec),
			catalogMagColumn:    repository.FormatOptFloat(md.ApparentMagnitude),
			catalogRadiusColumn: repository.FormatOptFloat(md.StellarRadiusSolar),
			catalogTeffColumn:   repository.FormatOptFloat(md.EffectiveTemperature),
		})
	}
	return t
}
