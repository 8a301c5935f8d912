// Package cli provides the command-line interface for portrisk.
// This file implements the serve command running the API server, the job
// pool and the scan scheduler until interrupted.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/anstrom/portrisk/internal/api"
	"github.com/anstrom/portrisk/internal/config"
	"github.com/anstrom/portrisk/internal/logging"
	"github.com/anstrom/portrisk/internal/metrics"
	"github.com/anstrom/portrisk/internal/scanning"
	"github.com/anstrom/portrisk/internal/scheduler"
	"github.com/anstrom/portrisk/internal/workers"
)

const (
	schedulerStopTimeout = 10 * time.Second
	accessLogPerm        = 0o600
)

// Serve command flags.
var (
	serveNoSchedules   bool
	serveDisableMetric bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server, job pool and scan scheduler",
	Long: `Start the HTTP API in the foreground. Scans submitted over the API and
scans fired by the configured schedules share one bounded job pool. Live scan
progress is streamed on /api/v1/ws and Prometheus metrics are served on the
configured metrics path.

The server shuts down gracefully on SIGINT or SIGTERM.`,
	Example: `  portrisk serve
  portrisk serve --host 0.0.0.0 --port 9090
  portrisk serve --config /etc/portrisk/config.yaml --no-schedules`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		if serveDisableMetric {
			cfg.Metrics.Enabled = false
		}
		if serveNoSchedules {
			cfg.Schedules = nil
		}
		if !cfg.IsAPIEnabled() {
			return fmt.Errorf("API server is disabled in configuration\n" +
				"Enable it by setting 'api.enabled: true' in config")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServe(ctx, cfg, logging.Default(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "listen address (overrides api.listen_addr)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides api.port)")
	serveCmd.Flags().BoolVar(&serveNoSchedules, "no-schedules", false, "do not run the configured recurring scans")
	serveCmd.Flags().BoolVar(&serveDisableMetric, "no-metrics", false, "do not expose Prometheus metrics")

	bindFlags(viper.GetViper(), serveCmd.Flags(), map[string]string{
		"api.listen_addr": "host",
		"api.port":        "port",
	})
}

// serveEnv holds the components wired together by runServe.
type serveEnv struct {
	pool      *workers.Pool
	service   *workers.ScanService
	server    *api.Server
	scheduler *scheduler.Scheduler
	metrics   *metrics.PrometheusMetrics
	accessLog *os.File
}

// close releases files opened by buildServeEnv.
func (e *serveEnv) close() {
	if e.accessLog != nil {
		_ = e.accessLog.Close()
	}
}

// buildServeEnv constructs every component without starting any of them.
func buildServeEnv(cfg *config.Config, logger *logging.Logger) (*serveEnv, error) {
	env := &serveEnv{}

	var recorder metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Enabled {
		env.metrics = metrics.NewPrometheusMetrics()
		recorder = env.metrics
	}

	scanner := scanning.NewScanner(cfg.ScannerConfig(),
		append([]scanning.Option{scanning.WithLogger(logger), scanning.WithMetrics(recorder)}, scannerOptions...)...)

	env.pool = workers.New(workers.Config{
		Size:            cfg.Workers.PoolSize,
		QueueSize:       cfg.Workers.QueueSize,
		ShutdownTimeout: cfg.Workers.ShutdownTimeout,
	}, workers.WithLogger(logger), workers.WithMetrics(recorder))

	env.service = workers.NewScanService(env.pool, workers.NewStore(cfg.Workers.MaxJobHistory),
		scanner, logger, recorder)

	apiOpts := []api.Option{api.WithLogger(logger)}
	if env.metrics != nil {
		apiOpts = append(apiOpts, api.WithPrometheus(env.metrics))
	}
	if cfg.API.AccessLog != "" {
		f, err := os.OpenFile(cfg.API.AccessLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, accessLogPerm)
		if err != nil {
			return nil, fmt.Errorf("failed to open access log: %w", err)
		}
		env.accessLog = f
		apiOpts = append(apiOpts, api.WithAccessLog(f))
	}
	server, err := api.New(cfg, env.service, env.pool, apiOpts...)
	if err != nil {
		env.close()
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}
	env.server = server
	env.service.Subscribe(server.WebSocket())

	env.scheduler = scheduler.NewScheduler(env.service, scheduler.WithLogger(logger))
	if err := env.scheduler.AddFromConfig(cfg.Schedules, cfg.Scanning.DefaultPorts); err != nil {
		env.close()
		return nil, err
	}

	return env, nil
}

// runServe runs the server until ctx is cancelled or a component fails.
func runServe(ctx context.Context, cfg *config.Config, logger *logging.Logger, out io.Writer) error {
	env, err := buildServeEnv(cfg, logger)
	if err != nil {
		return err
	}
	defer env.close()

	logger.Info("Starting portrisk server",
		"version", version,
		"commit", commit,
		"build_time", buildTime,
		"address", cfg.GetAPIAddress(),
		"schedules", len(cfg.Schedules))

	env.pool.Start()
	defer func() {
		if err := env.pool.Shutdown(); err != nil {
			logger.Warn("Worker pool did not shut down cleanly", "error", err)
		}
	}()

	if err := env.scheduler.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return env.server.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), schedulerStopTimeout)
		defer cancel()
		env.scheduler.Stop(stopCtx)
		return nil
	})

	g.Go(func() error {
		logJobResults(gctx, env.pool.Results(), logger)
		return nil
	})

	if env.metrics != nil {
		g.Go(func() error {
			env.metrics.StartPeriodicUpdates(gctx, cfg.Metrics.UpdateInterval)
			return nil
		})
	}

	fmt.Fprintf(out, "portrisk API listening on http://%s/api/v1/\n", cfg.GetAPIAddress())

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", "error", err)
		return err
	}
	fmt.Fprintln(out, "Server stopped")
	return nil
}

// logJobResults logs every finished job until ctx is done or the pool closes
// its result channel.
func logJobResults(ctx context.Context, results <-chan workers.Result, logger *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			fields := []any{"job_id", res.JobID, "type", res.JobType, "duration", res.Duration, "canceled", res.Canceled}
			if res.Error != nil {
				logger.Warn("Job failed", append(fields, "error", res.Error)...)
				continue
			}
			logger.Debug("Job finished", fields...)
		}
	}
}
