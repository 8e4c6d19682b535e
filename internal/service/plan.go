package service

import (
	"context"
	"strings"
	"subplan-backend/internal/components/assert"
	"subplan-backend/internal/components/chrono"
	"subplan-backend/internal/components/telemetry"
	"subplan-backend/internal/plan"
	"subplan-backend/internal/scrapers/untis"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_plan_update  = "plan.update"
	report_plan_persist = "plan.persist"
	report_plan_record  = "plan.record-crawl"
	report_plan_restore = "plan.restore"
	report_plan_pruned  = "plan.pruned"
)

var tracer = otel.Tracer("subplan/service")

// CrawlAPI produces new snapshots of a plan.
//
// note: fault injection point
type CrawlAPI interface {
	Crawl(ctx context.Context, lastStatus, lastETag string) (untis.Result, error)
}

type planState struct {
	status     string
	statusTime time.Time
	etag       string
	snapshot   *plan.Snapshot
	// generation changes whenever snapshot does
	generation uint64
}

type projectionKey struct {
	generation uint64
	selection  string
}

// Status describes the state of a plan for operators.
type Status struct {
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	StatusTime  time.Time `json:"status_time"`
	Days        int       `json:"days"`
	Generation  uint64    `json:"generation"`
	LastAttempt time.Time `json:"last_attempt"`
	LastError   string    `json:"last_error,omitempty"`
	// Updating is set while a crawl runs, Waiting counts the callers blocked on it.
	Updating    bool      `json:"updating"`
	Waiting     int       `json:"waiting"`
}

// Plan owns the current snapshot of one plan and serializes updates of it.
type Plan struct {
	name    string
	crawler CrawlAPI
	store   StateStore
	time    chrono.TimeAPI
	tel     telemetry.API

	state       atomic.Pointer[planState]
	projections *expirable.LRU[projectionKey, plan.View]

	mu          sync.Mutex
	inflight    chan struct{}
	waiters     int
	lastAttempt time.Time
	lastError   string
}

func NewPlan(name string, crawler CrawlAPI, store StateStore, clock chrono.TimeAPI, tel telemetry.API) *Plan {
	assert.NotEmptyStr(name, "name")
	assert.NotNil(crawler, "crawler")
	assert.NotNil(store, "store")
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "tel")

	p := &Plan{
		name:        name,
		crawler:     crawler,
		store:       store,
		time:        clock,
		tel:         telemetry.NewScopedAPI("plan_service", tel),
		projections: expirable.NewLRU[projectionKey, plan.View](64, nil, 10*time.Minute),
	}
	p.state.Store(&planState{})
	return p
}

func (p *Plan) Name() string {
	return p.name
}

// Restore loads the state persisted by an earlier process so its snapshot is diffed
// against instead of treating everything as new.
func (p *Plan) Restore(ctx context.Context) error {
	state, ok, err := p.store.LoadState(ctx, p.name)
	if err != nil {
		p.tel.ReportBroken(report_plan_restore, err, telemetry.KV{Key: "plan", Value: p.name})
		return err
	}
	if !ok {
		return nil
	}
	restored := &planState{
		status:     state.Status,
		etag:       state.ETag,
		snapshot:   state.Snapshot,
		generation: p.state.Load().generation + 1,
	}
	if state.Snapshot != nil {
		restored.statusTime = state.Snapshot.StatusTime
	}
	p.state.Store(restored)
	return nil
}

// Snapshot returns the current snapshot, nil before the first successful crawl. It must
// not be modified.
func (p *Plan) Snapshot() *plan.Snapshot {
	return p.state.Load().snapshot
}

func (p *Plan) Status() Status {
	st := p.state.Load()
	out := Status{
		Name:       p.name,
		Status:     st.status,
		StatusTime: st.statusTime,
		Generation: st.generation,
	}
	if st.snapshot != nil {
		out.Days = len(st.snapshot.Days())
	}
	p.mu.Lock()
	out.LastAttempt = p.lastAttempt
	out.LastError = p.lastError
	out.Updating = p.inflight != nil
	out.Waiting = p.waiters
	p.mu.Unlock()
	return out
}

// Project renders the current snapshot filtered by selection, nil selects everything.
func (p *Plan) Project(selection []string) plan.View {
	st := p.state.Load()
	if st.snapshot == nil {
		return plan.View{Status: st.status, Days: []plan.DayView{}}
	}

	key := projectionKey{generation: st.generation, selection: "*"}
	if selection != nil {
		key.selection = strings.Join(selection, ",")
	}
	if view, ok := p.projections.Get(key); ok {
		return view
	}
	view := st.snapshot.Project(selection)
	p.projections.Add(key, view)
	return view
}

// Update crawls the plan once. At most one crawl runs at a time, callers arriving while
// one is running wait for it and get (false, nil, nil). On failure the current snapshot
// stays in place.
func (p *Plan) Update(ctx context.Context) (bool, plan.Affected, error) {
	p.mu.Lock()
	if wait := p.inflight; wait != nil {
		p.waiters++
		p.mu.Unlock()
		defer func() {
			p.mu.Lock()
			p.waiters--
			p.mu.Unlock()
		}()
		select {
		case <-wait:
			return false, nil, nil
		case <-ctx.Done():
			return false, nil, ctx.Err()
		}
	}
	done := make(chan struct{})
	p.inflight = done
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inflight = nil
		p.mu.Unlock()
		close(done)
	}()

	return p.update(ctx)
}

func (p *Plan) update(ctx context.Context) (bool, plan.Affected, error) {
	ctx, span := tracer.Start(ctx, "Update", trace.WithAttributes(
		attribute.String("plan", p.name),
	))
	defer span.End()

	current := p.state.Load()
	startedAt := p.time.Now()
	// wall clock for the duration, the injected clock may be fixed
	wallStart := time.Now()

	result, err := p.crawler.Crawl(ctx, current.status, current.etag)
	record := CrawlRecord{
		StartedAt: startedAt,
		Duration:  time.Since(wallStart),
		Changed:   result.Changed,
		Pages:     result.Pages,
	}
	p.setAttempt(startedAt, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "crawl failed")
		p.tel.ReportBroken(report_plan_update, err, telemetry.KV{Key: "plan", Value: p.name})
		record.Err = err
		p.recordCrawl(ctx, record)
		return false, nil, err
	}

	if !result.Changed {
		p.keep(ctx, current, result.ETag)
		p.recordCrawl(ctx, record)
		return false, nil, nil
	}

	snapshot := result.Snapshot
	snapshot.PruneExpiredDays(p.time.Now())
	affected := plan.Diff(snapshot, current.snapshot)
	record.AffectedDays = len(affected)

	next := &planState{
		status:     result.Status.Token,
		statusTime: result.Status.Time,
		etag:       result.ETag,
		snapshot:   snapshot,
		generation: current.generation + 1,
	}
	p.persist(ctx, next)
	p.state.Store(next)
	p.recordCrawl(ctx, record)

	span.SetAttributes(attribute.Int("affected_days", len(affected)))
	return true, affected, nil
}

// keep handles an unchanged upstream: the snapshot is only replaced if expired days had
// to be pruned from it.
func (p *Plan) keep(ctx context.Context, current *planState, etag string) {
	next := *current
	replace := false
	if etag != "" && etag != current.etag {
		next.etag = etag
		replace = true
	}
	if current.snapshot != nil {
		pruned := current.snapshot.Clone()
		if pruned.PruneExpiredDays(p.time.Now()) {
			p.tel.ReportDebug(report_plan_pruned, telemetry.KV{Key: "plan", Value: p.name})
			next.snapshot = pruned
			next.generation++
			replace = true
		}
	}
	if !replace {
		return
	}
	p.persist(ctx, &next)
	p.state.Store(&next)
}

func (p *Plan) persist(ctx context.Context, st *planState) {
	err := p.store.SaveState(ctx, p.name, State{
		Status:   st.status,
		ETag:     st.etag,
		Snapshot: st.snapshot,
	})
	if err != nil {
		p.tel.ReportBroken(report_plan_persist, err, telemetry.KV{Key: "plan", Value: p.name})
	}
}

func (p *Plan) recordCrawl(ctx context.Context, record CrawlRecord) {
	err := p.store.RecordCrawl(ctx, p.name, record)
	if err != nil {
		p.tel.ReportWarning(report_plan_record, err, telemetry.KV{Key: "plan", Value: p.name})
	}
}

func (p *Plan) setAttempt(at time.Time, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastAttempt = at
	p.lastError = ""
	if err != nil {
		p.lastError = err.Error()
	}
}
