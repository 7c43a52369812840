package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/calibration"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/clock"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/config"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/display"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/repository"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/session"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/stimuli"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/tracker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type simulateOptions struct {
	initials    string
	category    string
	trials      int
	scale       float64
	outDir      string
	checkAssets bool
}

var simOpts simulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a whole session headless with a simulated tracker",
	Long: `simulate runs calibration and every trial without a browser. Calibration
targets are acknowledged automatically, gaze comes from a simulated tracker
and phase durations are multiplied by --scale.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		rec, err := simulate(cmd.Context(), log, simOpts)
		if rec != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d trials, %d gaze samples\n", rec.FileName(), len(rec.Trials), len(rec.GazeSamples))
		}
		return err
	},
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simOpts.initials, "initials", "SIM", "participant initials")
	f.StringVar(&simOpts.category, "category", "Colors", "stimulus category (Abstract, Shapes, Colors, Pictures)")
	f.IntVar(&simOpts.trials, "trials", 10, "number of trials")
	f.Float64Var(&simOpts.scale, "scale", 0.01, "multiplier applied to every phase duration")
	f.StringVar(&simOpts.outDir, "out", "", "export directory (default is storage.export_dir)")
	f.BoolVar(&simOpts.checkAssets, "check-assets", false, "require the stimulus images to exist")
}

type noAssetCheck struct{}

func (noAssetCheck) Resolve(models.Category) error { return nil }

func scaled(d time.Duration, scale float64) time.Duration {
	return time.Duration(float64(d) * scale)
}

func simulate(ctx context.Context, log *zap.Logger, o simulateOptions) (*models.SessionRecord, error) {
	category, err := models.ParseCategory(o.category)
	if err != nil {
		return nil, err
	}
	if o.scale <= 0 {
		return nil, errors.New("--scale must be positive")
	}

	cfg := experimentConfig()
	cfg.SampleDuration = scaled(cfg.SampleDuration, o.scale)
	cfg.MaskDuration = scaled(cfg.MaskDuration, o.scale)
	cfg.TestDuration = scaled(cfg.TestDuration, o.scale)
	cfg.InterTrialDuration = scaled(cfg.InterTrialDuration, o.scale)

	outDir := o.outDir
	if outDir == "" {
		outDir = inRoot(config.Get().Storage.ExportDir)
	}

	catalog := stimuli.NewCatalog(cfg.AssetRoot, "/assets")
	var assets session.AssetResolver = noAssetCheck{}
	if o.checkAssets {
		assets = catalog
	}

	sim := tracker.NewSimulated(16*time.Millisecond, cfg.ViewportWidth, cfg.ViewportHeight, time.Now().UnixNano())
	s := session.New(cfg, session.Deps{
		Assets:    assets,
		Tracker:   sim,
		Screen:    display.NewBoard(catalog),
		Persister: repository.NewChain(log.Named("persist"), repository.Target{Name: "export", Store: repository.NewFileExporter(outDir), Required: true}),
		Clock:     clock.Real{},
		Log:       log.Named("simulate"),
	})

	intake := models.Intake{Initials: o.initials, Category: category, TrialCount: o.trials}
	stop := func() {
		if err := sim.Stop(); err != nil {
			log.Warn("Simulated tracker did not stop cleanly", zap.Error(err))
		}
	}
	if err := s.Setup(ctx, intake); err != nil {
		stop()
		return nil, err
	}
	if err := s.Begin(ctx); err != nil {
		stop()
		return nil, err
	}

	for s.Calibration().State() == calibration.StateInProgress {
		time.Sleep(scaled(time.Second, o.scale))
		if err := s.Calibration().Acknowledge(); err != nil {
			stop()
			return nil, err
		}
	}
	if observed := len(sim.Observations()); observed != cfg.CalibrationPoints {
		log.Warn("Tracker saw fewer calibration points than were shown",
			zap.Int("observed", observed), zap.Int("shown", cfg.CalibrationPoints))
	} else {
		log.Info("Calibration observed", zap.Int("points", observed))
	}

	select {
	case <-s.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.Record(), s.Err()
}
