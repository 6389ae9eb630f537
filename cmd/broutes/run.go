package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/okian/broutes/internal/adapters/http/api"
	"github.com/okian/broutes/internal/adapters/report"
	service "github.com/okian/broutes/internal/app"
	"github.com/okian/broutes/internal/domain/model"
	"github.com/okian/broutes/pkg/logger"
	"github.com/okian/broutes/pkg/metrics"
)

const systemMetricsInterval = 10 * time.Second

var errJobsFailed = errors.New("jobs failed")

type runFlags struct {
	workers     int
	reportPath  string
	metricsAddr string
	linger      time.Duration
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run PLAN",
		Short: "Execute a plan through the worker pool",
		Long: `Execute every step of a plan from the catalog. Repeated job ids run
once. Exits non-zero when any job failed or was rejected by an expectation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			ctx := cmd.Context()
			e, err := g.load(ctx)
			if err != nil {
				return err
			}
			defer e.close(ctx)
			return f.run(ctx, cmd, e, pos[0])
		},
	}
	cmd.Flags().IntVar(&f.workers, "workers", 0, "worker count (default from config)")
	cmd.Flags().StringVar(&f.reportPath, "report", "", "write the JSON report to this path")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve /healthz, /metrics, /stats and /outcomes on this address")
	cmd.Flags().DurationVar(&f.linger, "linger", 0, "keep the ops server up this long after the run")
	return cmd
}

func (f *runFlags) run(ctx context.Context, cmd *cobra.Command, e *env, plan string) error {
	jobs, err := e.catalog.Plan(plan)
	if err != nil {
		return err
	}

	workers := e.cfg.WorkerCount
	if f.workers > 0 {
		workers = f.workers
	}
	svc := service.New(
		service.WithRoutes(e.routes),
		service.WithWorkerCount(workers),
		service.WithQueueSize(e.cfg.QueueSize),
		service.WithDedupeSize(e.cfg.DedupeSize),
		service.WithLogger(logger.Named("service")),
	)

	addr := e.cfg.MetricsAddr
	if f.metricsAddr != "" {
		addr = f.metricsAddr
	}

	opsCtx, stopOps := context.WithCancel(ctx)
	defer stopOps()
	ops, opsCtx := errgroup.WithContext(opsCtx)
	if addr != "" {
		ops.Go(func() error { return api.NewServer(svc, svc).ListenAndServe(opsCtx, addr) })
		ops.Go(func() error {
			startSystemMetricsUpdater(opsCtx)
			return nil
		})
	}

	rep, runErr := svc.Run(ctx, plan, jobs)
	if rep == nil {
		stopOps()
		_ = ops.Wait()
		return runErr
	}

	printSummary(cmd, rep)
	if f.reportPath != "" {
		if err := report.Write(ctx, f.reportPath, rep); err != nil {
			runErr = errors.Join(runErr, err)
		} else {
			e.log.Info(ctx, "report written", logger.String("path", f.reportPath))
		}
	}

	if addr != "" && f.linger > 0 && runErr == nil {
		select {
		case <-time.After(f.linger):
		case <-opsCtx.Done():
		}
	}
	stopOps()
	if err := ops.Wait(); err != nil {
		runErr = errors.Join(runErr, err)
	}

	if runErr != nil {
		return runErr
	}
	if !rep.OK() {
		return fmt.Errorf("%w: %d of %d", errJobsFailed, rep.Summary.Unsuccessful(), rep.Summary.Total)
	}
	return nil
}

func printSummary(cmd *cobra.Command, r *model.Report) {
	out := cmd.OutOrStdout()
	for _, o := range r.Outcomes {
		line := fmt.Sprintf("%-9s %-30s %-6s %3d %s", o.Status, o.JobID, o.Method, o.StatusCode, o.Duration.Round(time.Millisecond))
		if o.Error != "" {
			line += "  " + o.Error
		}
		fmt.Fprintln(out, line)
	}
	s := r.Summary
	fmt.Fprintf(out, "\nrun %s plan=%s total=%d succeeded=%d failed=%d rejected=%d skipped=%d in %s\n",
		r.RunID, r.Plan, s.Total, s.Succeeded, s.Failed, s.Rejected, s.Skipped, r.Duration.Round(time.Millisecond))
}

// startSystemMetricsUpdater refreshes process gauges until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	updateSystemMetrics()
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
