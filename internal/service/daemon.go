package service

import (
	"context"
	"fmt"
	"subplan-backend/internal/components/assert"
	"subplan-backend/internal/components/chrono"
	"subplan-backend/internal/components/telemetry"
	"subplan-backend/internal/plan"
	"time"
)

const updateTimeout = time.Minute

// OnChange is called after an update of `p` changed its snapshot.
type OnChange = func(p *Plan, affected plan.Affected)

// ScheduleUpdates registers one cron job per plan that calls Update. Each plan gets its own
// job so a slow plan does not delay the others.
func ScheduleUpdates(ctx context.Context, cron chrono.CronAPI, spec string, plans []*Plan, onChange OnChange) error {
	assert.NotNil(cron, "cron")
	assert.NotNil(onChange, "onChange")

	for _, p := range plans {
		err := cron.Cron(spec, func() {
			if ctx.Err() != nil {
				return
			}
			updateCtx, cancel := context.WithTimeout(ctx, updateTimeout)
			defer cancel()

			changed, affected, err := p.Update(updateCtx)
			if err != nil || !changed {
				return
			}
			onChange(p, affected)
		})
		if err != nil {
			return fmt.Errorf("schedule updates of %s: %w", p.Name(), err)
		}
	}
	return nil
}

// CrawlLogPruner is implemented by stores that keep a crawl log.
type CrawlLogPruner interface {
	PruneCrawlLog(ctx context.Context, before time.Time) error
}

const report_store_prune = "store.prune-crawl-log"

// SchedulePruning removes crawl log rows older than `retention` once a day.
func SchedulePruning(ctx context.Context, cron chrono.CronAPI, pruner CrawlLogPruner, retention time.Duration, clock chrono.TimeAPI, tel telemetry.API) error {
	assert.NotNil(pruner, "pruner")
	assert.Positive(int(retention/time.Second), "retention")

	return cron.Cron("@daily", func() {
		err := pruner.PruneCrawlLog(ctx, clock.Now().Add(-retention))
		if err != nil {
			tel.ReportBroken(report_store_prune, err)
		}
	})
}
