package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/dipscan/internal/adapters/http/api"
	"github.com/okian/dipscan/internal/adapters/http/swagger"
	app "github.com/okian/dipscan/internal/app"
	"github.com/okian/dipscan/internal/config"
	"github.com/okian/dipscan/pkg/logger"
	"github.com/okian/dipscan/pkg/metrics"
	"github.com/spf13/cobra"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Minute
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// runtimeEnv carries the loaded configuration and service between the
// root pre-run hook and the subcommands.
type runtimeEnv struct {
	configFile string
	logLevel   string
	cfg        *config.Config
	svc        *app.Service
}

// stageCommand describes a CLI command that runs a fixed list of stages.
type stageCommand struct {
	use    string
	short  string
	stages []app.Stage
}

var stageCommands = []stageCommand{ //nolint:gochecknoglobals // fixed command table
	{"detect", "Detect dips in every target light curve", []app.Stage{app.StageDetect}},
	{"label", "Assign rule-based labels to detected dips", []app.Stage{app.StageLabel}},
	{"train", "Train the dip classifier on the rule labels", []app.Stage{app.StageTrain}},
	{"predict", "Label dips with the trained classifier", []app.Stage{app.StagePredict}},
	{"crosscheck", "Resolve the catalog status of every target", []app.Stage{app.StageCrosscheck}},
	{"merge", "Join stellar metadata onto the dips", []app.Stage{app.StageMerge}},
	{"periodicity", "Flag targets with periodic light curves", []app.Stage{app.StagePeriodicity}},
	{"radius", "Estimate the radius of each dipping object", []app.Stage{app.StageRadius}},
	{"score", "Score and rank discovery candidates", []app.Stage{app.StageScore}},
	{"full-run", "Run detect, label, train and predict", app.FullRunStages},
	{"discover", "Run the discovery stages after predict", app.DiscoverStages},
	{"run", "Run every stage in order", app.AllStages},
}

func newRootCommand() *cobra.Command {
	env := &runtimeEnv{}

	root := &cobra.Command{
		Use:           "dipscan",
		Short:         "Stellar dip detection and discovery scoring",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return env.initialize(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&env.configFile, "config", "c", "", "YAML config file (overrides "+config.EnvConfigFile+")")
	root.PersistentFlags().StringVar(&env.logLevel, "log-level", "", "Log level override: debug, info, warn, error")

	root.AddCommand(serveCommand(env))
	for _, sc := range stageCommands {
		root.AddCommand(sc.command(env))
	}
	return root
}

// initialize loads configuration, sets up logging and builds the service.
func (e *runtimeEnv) initialize(cmd *cobra.Command) error {
	if e.configFile != "" {
		if err := os.Setenv(config.EnvConfigFile, e.configFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	if e.logLevel != "" {
		cfg.LogLevel = e.logLevel
	}
	if err := logger.Init(
		logger.WithWriter(cmd.ErrOrStderr()),
		logger.WithLevel(cfg.LogLevel),
		logger.WithFormat(cfg.LogFormat),
	); err != nil {
		return err
	}

	svc := app.New(app.NewSettings(cfg), app.WithLogger(logger.Get()))
	if err := svc.Start(cmd.Context()); err != nil {
		return err
	}
	e.cfg = cfg
	e.svc = svc
	return nil
}

func (sc stageCommand) command(env *runtimeEnv) *cobra.Command {
	return &cobra.Command{
		Use:   sc.use,
		Short: sc.short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := env.svc.Run(cmd.Context(), sc.stages...)
			if len(results) > 0 {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(results); encErr != nil {
					return errors.Join(err, encErr)
				}
			}
			return err
		},
	}
}

func serveCommand(env *runtimeEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, env.cfg, env.svc)
		},
	}
}

// serve runs the HTTP server until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, svc *app.Service) error {
	log := logger.Named("server")

	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	apiServer := api.NewServer(svc, svc, cfg.MaxCandidateLimit)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}

	log.Info(ctx, "server stopped")
	return nil
}

// startServiceMetricsUpdater refreshes service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateServiceMetrics copies service stats into gauges.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if concurrency, ok := stats["concurrency"].(int); ok {
		metrics.UpdateWorkerCount(concurrency)
	}
}
