// Command audit-seed records a batch of synthetic audit events through the
// recorder so that a local stack has data to query.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"audittrail/internal/platform/config"
	"audittrail/internal/platform/database"
	"audittrail/internal/platform/logger"
	audit "audittrail/pkg/platform/audit"
	auditmetrics "audittrail/pkg/platform/audit/metrics"
	"audittrail/pkg/platform/audit/outbox"
	outboxpostgres "audittrail/pkg/platform/audit/outbox/store/postgres"
	"audittrail/pkg/platform/audit/recorder"
	"audittrail/pkg/platform/audit/store/memory"
	"audittrail/pkg/platform/audit/store/postgres"
)

type options struct {
	count int
	users int
	days  int
	seed  uint64
}

func main() {
	fs := flag.NewFlagSet("audit-seed", flag.ExitOnError)
	var opts options
	fs.IntVar(&opts.count, "count", 500, "number of events to record")
	fs.IntVar(&opts.users, "users", 12, "number of distinct users")
	fs.IntVar(&opts.days, "days", 30, "spread events over this many past days")
	fs.Uint64Var(&opts.seed, "seed", uint64(time.Now().UnixNano()), "random seed")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	if err := run(context.Background(), cfg, opts, log); err != nil {
		log.Error("audit seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options, log *slog.Logger) error {
	if opts.count <= 0 {
		return fmt.Errorf("count must be positive, got %d", opts.count)
	}

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close() //nolint:errcheck // exit path

	var sink recorder.Sink
	var mem *memory.Store
	switch {
	case pool == nil:
		log.Warn("DATABASE_URL not set, events are kept in memory and discarded on exit")
		mem = memory.New()
		sink = mem
	case cfg.Recorder.Mode == config.RecorderModeOutbox:
		if err := pool.Migrate(ctx); err != nil {
			return err
		}
		sink = outbox.NewSink(outboxpostgres.New(pool.DB()))
	default:
		if err := pool.Migrate(ctx); err != nil {
			return err
		}
		sink = postgres.New(pool.DB())
	}

	recOpts := []recorder.Option{
		recorder.WithLogger(log),
		recorder.WithMetrics(auditmetrics.Default()),
	}
	if cfg.Recorder.Async {
		recOpts = append(recOpts, recorder.WithAsyncBuffer(cfg.Recorder.BufferSize))
	}
	rec := recorder.New(sink, recOpts...)

	gen, err := newGenerator(opts.seed, opts.users, opts.days, time.Now())
	if err != nil {
		return err
	}
	highRisk := 0
	for range opts.count {
		event, err := gen.next()
		if err != nil {
			return err
		}
		if event.IsHighRisk() {
			highRisk++
		}
		rec.Record(ctx, event)
	}

	closeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := rec.Close(closeCtx); err != nil {
		return err
	}

	log.Info("audit events seeded",
		"count", opts.count,
		"high_risk", highRisk,
		"mode", cfg.Recorder.Mode,
		"seed", opts.seed,
	)
	if mem != nil {
		return printStatistics(ctx, mem)
	}
	return nil
}

func printStatistics(ctx context.Context, repo audit.Repository) error {
	stats, err := repo.GetStatistics(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("total=%d high_risk=%d (%.1f%%) today=%d week=%d month=%d\n",
		stats.TotalEvents, stats.HighRiskEvents, stats.HighRiskPercentage(),
		stats.EventsToday, stats.EventsThisWeek, stats.EventsThisMonth)
	for _, tc := range stats.EventsByType {
		fmt.Printf("  %-24s %d\n", tc.EventType, tc.Count)
	}
	return nil
}
