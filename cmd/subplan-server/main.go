package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"subplan-backend/internal/components/chrono"
	"subplan-backend/internal/components/db"
	"subplan-backend/internal/components/telemetry"
	"subplan-backend/internal/plan"
	"subplan-backend/internal/scrapers/untis"
	"subplan-backend/internal/service"
	"subplan-backend/pkg/configutil"
	"subplan-backend/pkg/migrations"
	"subplan-backend/pkg/serviceutil"
	"time"
)

func main() {
	configPath := flag.String("config", "config.json5", "Path to the config file.")
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	initialUpdate := flag.Bool("update", true, "Update every plan once on startup.")
	flag.Parse()

	ctx := serviceutil.SignalContext()
	tel := InitTelemetry(ctx, *verbose)

	cfg, err := configutil.ReadConfig[Config](*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	database, err := migrations.OpenAndMigrateDB(ctx, cfg.Database, db.Schema)
	if err != nil {
		serviceutil.Fatal("open db", err)
	}
	defer database.Close()
	store := service.NewDBStore(db.New(database), db.NewMakeTx(database), tel)

	clock := chrono.NewStandardTime()
	plans, err := initPlans(ctx, cfg.Plans, store, clock, tel)
	if err != nil {
		serviceutil.Fatal("init plans", err)
	}

	cron := chrono.NewStandardCron(tel)
	defer cron.Stop()
	err = service.ScheduleUpdates(ctx, cron, cfg.UpdateCron, plans, logAffected)
	if err != nil {
		serviceutil.Fatal("schedule updates", err)
	}
	retention := time.Duration(cfg.CrawlLogRetentionDays) * 24 * time.Hour
	err = service.SchedulePruning(ctx, cron, store, retention, clock, tel)
	if err != nil {
		serviceutil.Fatal("schedule crawl log pruning", err)
	}

	if *initialUpdate {
		for _, p := range plans {
			go func() {
				updateCtx, cancel := context.WithTimeout(ctx, time.Minute)
				defer cancel()
				changed, affected, err := p.Update(updateCtx)
				if err == nil && changed {
					logAffected(p, affected)
				}
			}()
		}
	}

	handler := service.NewHandler(plans, tel)
	err = serviceutil.StartHttpServer(ctx, cfg.Port, serviceutil.RequireAccessToken(cfg.AccessToken, handler))
	if err != nil {
		serviceutil.Fatal("serve http", err)
	}
}

func initPlans(ctx context.Context, configs []PlanConfig, store service.StateStore, clock chrono.TimeAPI, tel telemetry.API) ([]*service.Plan, error) {
	var plans []*service.Plan
	for _, cfg := range configs {
		dialect, err := untis.DialectByName(cfg.Dialect)
		if err != nil {
			return nil, err
		}

		pageTimeout := time.Second
		if cfg.PageTimeoutMs > 0 {
			pageTimeout = time.Duration(cfg.PageTimeoutMs) * time.Millisecond
		}
		fetcher := untis.NewHTTPFetcher(untis.HTTPFetcherOptions{
			URLTemplate:      cfg.Url,
			Timeout:          pageTimeout,
			RateLimit:        cfg.RateLimit,
			CloudflareBypass: cfg.CloudflareBypass,
		}, tel)
		crawler := untis.NewCrawler(dialect, fetcher, clock, tel, cfg.CrawlerOptions()...)

		p := service.NewPlan(cfg.Name, crawler, store, clock, tel)
		err = p.Restore(ctx)
		if err != nil {
			return nil, fmt.Errorf("restore %s: %w", cfg.Name, err)
		}
		slog.Info("plan ready", "plan", cfg.Name, "dialect", dialect.Name, "status", p.Status().Status)
		plans = append(plans, p)
	}
	return plans, nil
}

// logAffected emits one line per affected day, notification delivery consumes these.
func logAffected(p *service.Plan, affected plan.Affected) {
	for key, day := range affected {
		slog.Info(
			"plan changed",
			"plan", p.Name(),
			"day", key,
			"day_name", day.Name,
			"groups", day.Groups,
		)
	}
}
