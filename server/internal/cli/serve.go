package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/clock"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/config"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/database"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/display"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/repository"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/router"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/session"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/stimuli"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/tracker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the experiment station's HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()
		return serve(cmd.Context(), log)
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides server.port)")
}

func serve(ctx context.Context, log *zap.Logger) error {
	conf := config.Get()

	st, err := buildStores(ctx, conf, log)
	if err != nil {
		return err
	}
	defer st.close()

	catalog := stimuli.NewCatalog(inRoot(conf.Experiment.AssetRoot), "/assets")
	board := display.NewBoard(catalog)

	manager := session.NewManager(func() *session.Controller {
		// Each session snapshots the configuration current at intake.
		cfg := experimentConfig()
		return session.New(cfg, session.Deps{
			Assets:    catalog,
			Tracker:   tracker.NewRemote(cfg.GazeQueue, log.Named("tracker")),
			Screen:    board,
			Persister: st.chain,
			Clock:     clock.Real{},
			Log:       log.Named("session"),
		})
	}, log.Named("station"))

	opts := router.Options{
		Sessions:        manager,
		Board:           board,
		AssetRoot:       catalog.Root(),
		IntakeRateLimit: conf.Server.IntakeRateLimit,
		ViewportWidth:   conf.Experiment.ViewportWidth,
		ViewportHeight:  conf.Experiment.ViewportHeight,
		Records:         st.local,
	}
	if st.archive != nil {
		opts.Archive = st.archive
	}
	r := router.Setup(log, opts)

	port := conf.Server.Port
	if servePort != "" {
		port = servePort
	}
	srv := &http.Server{Addr: ":" + port, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("Server listening on http://localhost:" + port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if s, ok := manager.Current(); ok && !s.Finished() {
		log.Warn("Session still running at shutdown", zap.String("session", s.ID()))
	}
	return nil
}

type stores struct {
	chain   *repository.Chain
	local   *repository.LocalStore
	archive *repository.Archive
	closers []func()
}

func (st *stores) close() {
	for _, c := range st.closers {
		c()
	}
}

// buildStores assembles the record stores. The local database and the
// export file are required; S3 and the archive are best effort.
func buildStores(ctx context.Context, conf *config.Config, log *zap.Logger) (*stores, error) {
	local, err := repository.NewLocalStore(inRoot(conf.Storage.LocalPath))
	if err != nil {
		return nil, err
	}
	st := &stores{local: local}
	st.closers = append(st.closers, func() {
		if err := local.Close(); err != nil {
			log.Warn("Local store did not close cleanly", zap.Error(err))
		}
	})

	targets := []repository.Target{
		{Name: "local", Store: local, Required: true},
		{Name: "export", Store: repository.NewFileExporter(inRoot(conf.Storage.ExportDir)), Required: true},
	}

	if conf.Storage.S3.Bucket != "" {
		s3, err := repository.NewS3Exporter(ctx, conf.Storage.S3)
		if err != nil {
			log.Error("S3 export disabled", zap.Error(err))
		} else {
			targets = append(targets, repository.Target{Name: "s3", Store: s3})
		}
	}

	if conf.Database.Enabled {
		db, err := database.Open(conf.Database, log)
		if err != nil {
			log.Error("Archive disabled", zap.Error(err))
		} else {
			st.archive = repository.NewArchive(db)
			targets = append(targets, repository.Target{Name: "archive", Store: st.archive})
			st.closers = append(st.closers, func() {
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			})
		}
	}

	st.chain = repository.NewChain(log.Named("persist"), targets...)
	return st, nil
}
