package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/ledger"
	"github.com/ajitpratap0/hdm/pkg/logger"
	"github.com/ajitpratap0/hdm/pkg/metrics"
	"github.com/ajitpratap0/hdm/pkg/observability"
	"github.com/ajitpratap0/hdm/pkg/orchestrator"
)

type runFlags struct {
	commonFlags
	metricsAddr string
	trace       bool
	timeout     time.Duration
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [manifest]",
		Short: "Run every data link of a manifest",
		Long: `Run builds the data links described by a manifest and executes them.
Pressureless links run first, one at a time; the rest run concurrently up
to the manifest's back_pressure_factor.

Example:
  hdm run manifests/fs_to_s3.yml -e prod --metrics-addr :9090`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifest(cmd, args, &f)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "Export trace spans to stderr")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Abort the run after this long (0 disables)")
	return cmd
}

func runManifest(cmd *cobra.Command, args []string, f *runFlags) error {
	if err := f.initLogger(); err != nil {
		return err
	}
	log := logger.Get().With(zap.String("component", "hdm-cli"))

	settings, profiles, m, err := loadRun(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	if f.trace {
		tcfg := observability.DefaultTracingConfig()
		tcfg.ServiceVersion = version
		tcfg.Environment = settings.Env
		tcfg.Writer = cmd.ErrOrStderr()
		shutdown, err := observability.Initialize(tcfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("trace shutdown failed", zap.Error(err))
			}
		}()
	}

	if f.metricsAddr != "" {
		srv := &http.Server{Addr: f.metricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	store, err := ledger.OpenStore(ctx, m.StateManager, profiles, settings)
	if err != nil {
		return err
	}
	defer store.Close()

	orch := orchestrator.New(orchestrator.Options{
		Settings: settings,
		Profiles: profiles,
		Store:    store,
		Logger:   log,
	})
	defer func() {
		if err := orch.Close(); err != nil {
			log.Warn("failed to close adapters", zap.Error(err))
		}
	}()

	if _, err := orch.Build(ctx, m); err != nil {
		return err
	}

	log.Info("starting run",
		zap.String("manifest", settings.Manifest),
		zap.String("env", settings.Env),
		zap.String("run_id", orch.RunID()),
		zap.Int("links", len(orch.Links())))

	start := time.Now()
	summary, err := orch.Run(ctx)
	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary, time.Since(start))
	}
	return err
}

func printSummary(w io.Writer, s *orchestrator.Summary, took time.Duration) {
	fmt.Fprintf(w, "run %s: %d/%d links succeeded in %s\n",
		s.RunID, s.Succeeded, s.Links, took.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINK\tJOB ID\tPULLED\tPUSHED\tSKIPPED\tFAILED\tRECORDS\tERROR")
	for _, r := range s.Results {
		var pulled, pushed, skipped, failed, records int
		if r.Stats != nil {
			pulled, pushed, skipped, failed, records = r.Stats.Pulled, r.Stats.Pushed, r.Stats.Skipped, r.Stats.Failed, r.Stats.Records
		}
		errText := "-"
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n", r.Name, r.JobID, pulled, pushed, skipped, failed, records, errText)
	}
	_ = tw.Flush()
}
