package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/buildinfo"
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/config"
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/retry"
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/workflow"
	"github.com/go-co-op/gocron-ui/server"
	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	probeSchedule   string
	refreshSchedule string
	bindAddress     string
)

var daemonCommand = &cobra.Command{
	Use:     "daemon",
	Short:   "Run CallGuard in daemon mode",
	GroupID: "callguard",
	Long:    `Starts CallGuard as a background service that probes the connection and refreshes its credentials on a schedule. The scheduler dashboard is served on --bind-address together with the retry metrics on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildinfo.Get()
		banner := fmt.Sprintf("CallGuard - Daemon Mode \n\nVersion: %s\nBuild Date: %s", info.Version, info.Date)
		fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render(banner))

		options := connectionOptions()
		dlog := workflow.SetupLogger(logLevel, options[config.OptionProjectID]).With("component", "daemon")

		// All scheduled runs share one stack so they share one token and one refresher.
		stack, err := workflow.BuildStack(options, workflow.StackSettings{
			Logger:     dlog,
			Registerer: prometheus.DefaultRegisterer,
			TraceSafe:  traceSafe,
		})
		if err != nil {
			return fmt.Errorf("connection setup failed: %w", err)
		}
		hook := webhook()

		s, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		s.Start()
		dlog.Info("Scheduler started")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// SIGHUP re-reads the env file so tracing can be confirmed or
		// withdrawn without restarting the daemon.
		hangup := make(chan os.Signal, 1)
		signal.Notify(hangup, syscall.SIGHUP)
		defer signal.Stop(hangup)
		go func() {
			for {
				select {
				case <-hangup:
					if err := reloadTraceGate(stack.Caller.Gate, stack.Options.TraceSafe, dlog); err != nil {
						dlog.Warn("Failed to reload trace setting", "error", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		probeJob, err := scheduleJob(s, dlog, "Connection Probe", probeSchedule, func() {
			_, _ = workflow.RunProbe(ctx, stack, timeout, hook, dlog)
		})
		if err != nil {
			return errors.Join(err, s.Shutdown())
		}

		refreshJob, err := scheduleJob(s, dlog, "Credential Refresh", refreshSchedule, func() {
			_ = workflow.RunCredentialRefresh(ctx, stack, dlog)
		})
		if err != nil {
			return errors.Join(err, s.Shutdown())
		}
		dlog.Debug("Jobs registered", "probe_job_id", probeJob.ID(), "refresh_job_id", refreshJob.ID())

		port, err := bindPort(bindAddress)
		if err != nil {
			return errors.Join(err, s.Shutdown())
		}

		ui := server.NewServer(s, port, server.WithTitle("CallGuard - Dashboard"))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/", ui.Router)

		httpServer := &http.Server{Addr: bindAddress, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		serveErr := make(chan error, 1)
		go func() {
			dlog.Info("CallGuard Scheduler UI started", "address", bindAddress)
			serveErr <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-serveErr:
			dlog.Error("Failed to start UI server", "error", err)
			return errors.Join(err, s.Shutdown())
		case <-ctx.Done():
		}

		dlog.Warn("Shutting down scheduler due to system signal...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(httpServer.Shutdown(shutdownCtx), s.Shutdown())
	},
}

// scheduleJob registers a cron task in singleton mode and logs its next run
// after registration and after every execution.
func scheduleJob(s gocron.Scheduler, logger *slog.Logger, name, schedule string, run func()) (gocron.Job, error) {
	var job gocron.Job

	job, err := s.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(func() {
			run()

			if job != nil {
				if nextRun, err := job.NextRun(); err == nil {
					logger.Info("Job completed",
						"job_name", name,
						"next_run", nextRun.Format(time.RFC3339),
						"job_id", job.ID())
				}
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", name, err)
	}

	if nextRun, err := job.NextRun(); err == nil {
		logger.Info("Job Scheduled",
			"job_name", job.Name(),
			"job_id", job.ID(),
			"schedule", schedule,
			"next_run", nextRun.Format(time.RFC3339))
	}
	return job, nil
}

// reloadTraceGate re-reads the env file and applies CALLGUARD_TRACE_SAFE to
// gate. A trace-safe driver option keeps the gate open.
func reloadTraceGate(gate *retry.TraceGate, optionSafe bool, logger *slog.Logger) error {
	if envFile != "" {
		if err := godotenv.Overload(envFile); err != nil {
			return fmt.Errorf("failed to reload env file: %w", err)
		}
	} else if err := godotenv.Overload(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to reload .env: %w", err)
	}

	safe := optionSafe || viper.GetBool("trace-safe")
	gate.SetSafe(safe)
	logger.Info("Trace setting reloaded", "trace_safe", safe)
	return nil
}

func bindPort(address string) (int, error) {
	_, portText, err := net.SplitHostPort(address)
	if err != nil {
		return 0, fmt.Errorf("invalid bind address %q: %w", address, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return 0, fmt.Errorf("invalid bind port %q: %w", portText, err)
	}
	return port, nil
}

func init() {
	rootCommand.AddCommand(daemonCommand)
	daemonCommand.Flags().StringVar(&probeSchedule, "probe-schedule", "*/10 * * * *", "Cron schedule for the connection probe")
	daemonCommand.Flags().StringVar(&refreshSchedule, "refresh-schedule", "*/45 * * * *", "Cron schedule for proactive credential refresh")
	daemonCommand.Flags().StringVar(&bindAddress, "bind-address", "0.0.0.0:8080", "Address to bind the UI and metrics server")
}
