package untis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"subplan-backend/internal/components/assert"
	"subplan-backend/internal/components/chrono"
	"subplan-backend/internal/components/telemetry"
	"subplan-backend/internal/plan"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_crawler_stale_page  = "crawler.stale-page"
	report_crawler_orphan_rows = "crawler.orphan-rows"
	report_crawler_pages       = "crawler.pages"
	report_crawler_metrics     = "crawler.metrics"
)

const (
	DefaultWaveSize    = 5
	DefaultMaxPages    = 99
	DefaultPageTimeout = time.Second
	DefaultWaveTimeout = 5 * time.Second
)

var (
	tracer = otel.Tracer("subplan/untis")
	meter  = otel.Meter("subplan/untis")
)

// Result is the outcome of one crawl. Snapshot is only set when Changed is true.
type Result struct {
	Changed  bool
	Snapshot *plan.Snapshot
	Status   Status
	ETag     string
	Pages    int
}

type CrawlerOption func(c *Crawler)

// WithWaveSize sets how many pages are fetched concurrently.
func WithWaveSize(n int) CrawlerOption {
	return func(c *Crawler) {
		c.waveSize = n
	}
}

// WithMaxPages sets the number of pages after which a crawl without terminal page fails.
func WithMaxPages(n int) CrawlerOption {
	return func(c *Crawler) {
		c.maxPages = n
	}
}

func WithPageTimeout(d time.Duration) CrawlerOption {
	return func(c *Crawler) {
		c.pageTimeout = d
	}
}

func WithWaveTimeout(d time.Duration) CrawlerOption {
	return func(c *Crawler) {
		c.waveTimeout = d
	}
}

// Crawler fetches every page of one plan and merges them into a snapshot.
type Crawler struct {
	dialect Dialect
	fetcher Fetcher
	time    chrono.TimeAPI
	tel     telemetry.API

	waveSize    int
	maxPages    int
	pageTimeout time.Duration
	waveTimeout time.Duration

	pagesFetched metric.Int64Counter
}

func NewCrawler(dialect Dialect, fetcher Fetcher, clock chrono.TimeAPI, tel telemetry.API, opts ...CrawlerOption) *Crawler {
	assert.NotNil(fetcher, "fetcher")
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "tel")

	c := &Crawler{
		dialect:     dialect,
		fetcher:     fetcher,
		time:        clock,
		tel:         telemetry.NewScopedAPI("untis_crawler", tel),
		waveSize:    DefaultWaveSize,
		maxPages:    DefaultMaxPages,
		pageTimeout: DefaultPageTimeout,
		waveTimeout: DefaultWaveTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	assert.Positive(c.waveSize, "wave size")
	assert.Positive(c.maxPages, "max pages")

	counter, err := meter.Int64Counter(
		"untis.pages_fetched",
		metric.WithDescription("Number of plan pages fetched."),
	)
	if err != nil {
		c.tel.ReportWarning(report_crawler_metrics, err)
		counter = noop.Int64Counter{}
	}
	c.pagesFetched = counter

	return c
}

func (c *Crawler) Dialect() Dialect {
	return c.dialect
}

// Crawl probes the first page and, if its status differs from lastStatus, fetches the
// remaining pages in waves and merges them in page order. lastETag is sent as validator
// with the probe.
func (c *Crawler) Crawl(ctx context.Context, lastStatus, lastETag string) (Result, error) {
	ctx, span := tracer.Start(ctx, "Crawl", trace.WithAttributes(
		attribute.String("dialect", c.dialect.Name),
	))
	defer span.End()

	result, err := c.crawl(ctx, lastStatus, lastETag)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "crawl failed")
		return Result{}, err
	}
	span.SetAttributes(
		attribute.Bool("changed", result.Changed),
		attribute.Int("pages", result.Pages),
	)
	return result, nil
}

func (c *Crawler) crawl(ctx context.Context, lastStatus, lastETag string) (Result, error) {
	probeCtx, cancelProbe := context.WithTimeout(ctx, c.pageTimeout)
	defer cancelProbe()

	res, err := c.fetcher.FetchPage(probeCtx, StartPage, lastETag)
	if err != nil {
		return Result{}, fmt.Errorf("probe: %w", err)
	}
	if res.NotModified {
		return Result{Status: Status{Token: lastStatus}, ETag: lastETag}, nil
	}
	if res.Body == nil {
		return Result{}, fmt.Errorf("probe: %w: empty body", ErrUnexpectedStatus)
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return Result{}, fmt.Errorf("probe: read body: %w", err)
	}
	c.pagesFetched.Add(ctx, 1, metric.WithAttributes(attribute.String("dialect", c.dialect.Name)))

	status, err := ExtractStatus(body, c.time.Location())
	if err != nil {
		return Result{}, fmt.Errorf("probe: %w", err)
	}
	if status.Token == lastStatus {
		return Result{Status: status, ETag: res.ETag}, nil
	}

	cutoff := chrono.StartOfDay(c.time.Now())
	first, err := c.parsePage(bytes.NewReader(body), StartPage, cutoff, nil)
	if err != nil {
		return Result{}, err
	}
	builder := newSnapshotBuilder(c.dialect, status)
	err = builder.merge(first)
	if err != nil {
		return Result{}, err
	}

	if first.Next != StartPage {
		if first.Next != StartPage+1 {
			return Result{}, fmt.Errorf("%w: page %d points to %d", ErrUnexpectedContinuation, StartPage, first.Next)
		}
		page := StartPage + 1
		for {
			if page > c.maxPages {
				return Result{}, &PageLimitExceededError{Limit: c.maxPages}
			}
			to := min(page+c.waveSize-1, c.maxPages)
			terminal, err := c.runWave(ctx, builder, page, to, cutoff)
			if err != nil {
				return Result{}, err
			}
			if terminal {
				break
			}
			page = to + 1
		}
	}

	c.tel.ReportCount(report_crawler_pages, int64(builder.pages))
	return Result{
		Changed:  true,
		Snapshot: builder.snapshot,
		Status:   status,
		ETag:     res.ETag,
		Pages:    builder.pages,
	}, nil
}

type pageOutcome struct {
	page   int
	result PageResult
	err    error
}

// runWave fetches pages from..to concurrently and merges them in page order. It reports
// whether the terminal page was among them.
func (c *Crawler) runWave(ctx context.Context, builder *snapshotBuilder, from, to int, cutoff time.Time) (bool, error) {
	ctx, span := tracer.Start(ctx, "runWave", trace.WithAttributes(
		attribute.Int("from", from),
		attribute.Int("to", to),
	))
	defer span.End()

	waveCtx, cancelWave := context.WithTimeout(ctx, c.waveTimeout)
	defer cancelWave()

	count := to - from + 1
	pageCtxs := make([]context.Context, count)
	cancels := make([]context.CancelFunc, count)
	for i := range count {
		pageCtxs[i], cancels[i] = context.WithTimeout(waveCtx, c.pageTimeout)
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	var mu sync.Mutex
	terminal := 0
	cancelAfter := func(page int) {
		mu.Lock()
		defer mu.Unlock()
		if terminal != 0 && terminal <= page {
			return
		}
		terminal = page
		for p := page + 1; p <= to; p++ {
			cancels[p-from]()
		}
	}

	// buffered so pages finishing after an early return never block
	outcomes := make(chan pageOutcome, count)
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		page := from + i
		pageCtx := pageCtxs[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := c.fetchPage(pageCtx, page, cutoff, func(next int) {
				if next == StartPage {
					cancelAfter(page)
				}
			})
			outcomes <- pageOutcome{page: page, result: result, err: err}
		}()
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	pending := map[int]pageOutcome{}
	expected := from
	for {
		select {
		case outcome, ok := <-outcomes:
			if !ok {
				return false, fmt.Errorf("wave %d-%d ended before page %d", from, to, expected)
			}
			pending[outcome.page] = outcome

			for {
				ready, ok := pending[expected]
				if !ok {
					break
				}
				delete(pending, expected)

				if ready.err != nil {
					if errors.Is(waveCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
						return false, fmt.Errorf("%w: page %d: %w", ErrWaveTimeout, expected, ready.err)
					}
					return false, fmt.Errorf("page %d: %w", expected, ready.err)
				}
				err := builder.merge(ready.result)
				if err != nil {
					return false, err
				}
				if ready.result.Next == StartPage {
					return true, nil
				}
				if ready.result.Next != expected+1 {
					return false, fmt.Errorf(
						"%w: page %d points to %d",
						ErrUnexpectedContinuation, expected, ready.result.Next,
					)
				}
				expected++
				if expected > to {
					return false, nil
				}
			}
		case <-waveCtx.Done():
			if err := ctx.Err(); err != nil {
				return false, err
			}
			return false, fmt.Errorf("%w: waiting for page %d", ErrWaveTimeout, expected)
		}
	}
}

func (c *Crawler) fetchPage(ctx context.Context, page int, cutoff time.Time, onNext func(next int)) (PageResult, error) {
	res, err := c.fetcher.FetchPage(ctx, page, "")
	if err != nil {
		return PageResult{}, err
	}
	if res.NotModified || res.Body == nil {
		return PageResult{}, fmt.Errorf("%w: page %d has no body", ErrUnexpectedStatus, page)
	}
	defer res.Body.Close()
	c.pagesFetched.Add(ctx, 1, metric.WithAttributes(attribute.String("dialect", c.dialect.Name)))

	return c.parsePage(res.Body, page, cutoff, onNext)
}

func (c *Crawler) parsePage(r io.Reader, page int, cutoff time.Time, onNext func(next int)) (PageResult, error) {
	parser := NewPageParser(c.dialect, cutoff, page, c.time.Location(), onNext)
	_, err := io.Copy(parser, r)
	closeErr := parser.Close()
	if err == nil {
		err = closeErr
	}

	var stale *StaleDataError
	if errors.As(err, &stale) {
		c.tel.ReportWarning(
			report_crawler_stale_page,
			telemetry.KV{Key: "page", Value: page},
			telemetry.KV{Key: "date", Value: stale.Date.Format(plan.DayKeyLayout)},
		)
		err = nil
	}
	if err != nil {
		return PageResult{}, fmt.Errorf("parse page %d: %w", page, err)
	}

	result := parser.Result()
	if result.IgnoredRows > 0 {
		c.tel.ReportWarning(
			report_crawler_orphan_rows,
			telemetry.KV{Key: "page", Value: page},
			telemetry.KV{Key: "rows", Value: result.IgnoredRows},
		)
	}
	if !result.HasNext {
		return PageResult{}, fmt.Errorf("page %d: %w", page, ErrMissingContinuation)
	}
	return result, nil
}
