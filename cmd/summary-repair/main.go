// Command summary-repair recomputes stored daily summaries and, optionally,
// reprojects live item quantities from the ledger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tindahan/backend/internal/cache"
	"tindahan/backend/internal/config"
	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/logger"
	"tindahan/backend/internal/service"
	pgstore "tindahan/backend/internal/store/postgres"
)

type options struct {
	from            string
	to              string
	dirty           bool
	reproject       string
	continueOnError bool
}

func main() {
	var opts options
	flag.StringVar(&opts.from, "from", "", "Recompute summaries from this date (YYYY-MM-DD)")
	flag.StringVar(&opts.to, "to", "", "Recompute summaries up to this date (YYYY-MM-DD, defaults to -from)")
	flag.BoolVar(&opts.dirty, "dirty", false, "Recompute every summary marked dirty")
	flag.StringVar(&opts.reproject, "reproject", "", "Reproject live quantities from ledger endings as of this date (YYYY-MM-DD or 'today')")
	flag.BoolVar(&opts.continueOnError, "continue-on-error", false, "Keep going when a single date fails")
	flag.Parse()

	if opts.from == "" && !opts.dirty && opts.reproject == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -from/-to, -dirty or -reproject")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.Development()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	if cfg.DatabaseURL == "" {
		log.Fatalw("DATABASE_URL is required")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalw("invalid BUSINESS_TIMEZONE", "timezone", cfg.BusinessTimezone, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("postgres unavailable", "error", err)
	}
	defer func() { _ = repo.Close() }()

	svcOpts := service.Options{Location: loc, SummaryTTL: cfg.SummaryCacheTTL()}
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warnw("redis unavailable, cached summaries expire on their own", "error", err)
		} else {
			// Recompute overwrites the shared cache entries the API serves from.
			svcOpts.Cache = cache.NewRedisSummaryCache(client)
		}
	}

	ctx = logger.WithFields(ctx, "job", "summary-repair")
	ctx = service.WithActor(ctx, domain.Actor{Username: "summary-repair", Role: domain.RoleAdmin})
	if err := run(ctx, service.New(repo, svcOpts), opts); err != nil {
		log.Fatalw("summary repair failed", "error", err)
	}
}

func run(ctx context.Context, svc *service.Service, opts options) error {
	if opts.from != "" {
		from, to, err := parseRange(svc, opts.from, opts.to)
		if err != nil {
			return err
		}
		var errs []error
		count := 0
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			if err := ctx.Err(); err != nil {
				return err
			}
			summary, err := svc.Recompute(ctx, day)
			if err != nil {
				if !opts.continueOnError {
					return fmt.Errorf("recompute %s: %w", domain.FormatDate(day), err)
				}
				logger.Warn(ctx, "recompute failed", "date", domain.FormatDate(day), "error", err)
				errs = append(errs, err)
				continue
			}
			count++
			logger.Info(ctx, "summary recomputed",
				"date", domain.FormatDate(day),
				"orders", summary.Orders,
				"net", summary.TotalNetSales.StringFixed(2),
			)
		}
		logger.Info(ctx, "range recompute finished", "from", domain.FormatDate(from), "to", domain.FormatDate(to), "days", count)
		if err := errors.Join(errs...); err != nil {
			return err
		}
	}

	if opts.dirty {
		n, err := svc.RepairDirty(ctx)
		logger.Info(ctx, "dirty summaries repaired", "count", n)
		if err != nil {
			return fmt.Errorf("repair dirty summaries: %w", err)
		}
	}

	if opts.reproject != "" {
		raw := opts.reproject
		if strings.EqualFold(raw, "today") {
			raw = ""
		}
		date, err := svc.ResolveDate(raw)
		if err != nil {
			return fmt.Errorf("invalid -reproject date %q: %w", opts.reproject, err)
		}
		n, err := svc.ReprojectLiveQuantities(ctx, date)
		if err != nil {
			return fmt.Errorf("reproject live quantities: %w", err)
		}
		logger.Info(ctx, "live quantities reprojected", "date", domain.FormatDate(date), "items", n)
	}
	return nil
}

func parseRange(svc *service.Service, rawFrom, rawTo string) (time.Time, time.Time, error) {
	from, err := svc.ResolveDate(rawFrom)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -from %q: %w", rawFrom, err)
	}
	to := from
	if rawTo != "" {
		if to, err = svc.ResolveDate(rawTo); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to %q: %w", rawTo, err)
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("-to %s is before -from %s", domain.FormatDate(to), domain.FormatDate(from))
	}
	return from, to, nil
}
