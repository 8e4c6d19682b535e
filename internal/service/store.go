package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"subplan-backend/internal/components/assert"
	"subplan-backend/internal/components/db"
	"subplan-backend/internal/components/telemetry"
	"subplan-backend/internal/plan"
	"sync"
	"time"
)

const (
	report_store_decode = "store.decode-snapshot"
)

// State is what survives a restart of a plan.
type State struct {
	Status   string
	ETag     string
	Snapshot *plan.Snapshot
}

// CrawlRecord is one row of the crawl log.
type CrawlRecord struct {
	StartedAt    time.Time
	Duration     time.Duration
	Changed      bool
	Pages        int
	AffectedDays int
	Err          error
}

// StateStore persists plan state across restarts.
//
// note: fault injection point
type StateStore interface {
	// LoadState returns ok = false if nothing usable was stored for the plan.
	LoadState(ctx context.Context, name string) (state State, ok bool, err error)
	SaveState(ctx context.Context, name string, state State) error
	RecordCrawl(ctx context.Context, name string, record CrawlRecord) error
}

// DBStore is a StateStore backed by the sqlite schema in internal/components/db.
type DBStore struct {
	qry    *db.Queries
	makeTx db.MakeTx
	time   func() time.Time
	tel    telemetry.API
}

func NewDBStore(qry *db.Queries, makeTx db.MakeTx, tel telemetry.API) DBStore {
	assert.NotNil(qry, "qry")
	assert.NotNil(makeTx, "makeTx")
	assert.NotNil(tel, "tel")
	return DBStore{
		qry:    qry,
		makeTx: makeTx,
		time:   time.Now,
		tel:    telemetry.NewScopedAPI("plan_store", tel),
	}
}

func (s DBStore) LoadState(ctx context.Context, name string) (State, bool, error) {
	row, err := s.qry.GetPlanState(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("load state of %s: %w", name, err)
	}

	state := State{Status: row.Status, ETag: row.Etag}
	if len(row.Snapshot) == 0 {
		return state, true, nil
	}
	snapshot, err := plan.Decode(row.Snapshot)
	if err != nil {
		// an unreadable snapshot is treated as no state at all, the next crawl then
		// rebuilds it from scratch
		s.tel.ReportWarning(report_store_decode, err, telemetry.KV{Key: "plan", Value: name})
		return State{}, false, nil
	}
	state.Snapshot = snapshot
	return state, true, nil
}

func (s DBStore) SaveState(ctx context.Context, name string, state State) error {
	var encoded []byte
	if state.Snapshot != nil {
		encoded = plan.Encode(state.Snapshot)
	}

	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return fmt.Errorf("save state of %s: %w", name, err)
	}
	defer discard()

	err = tx.UpsertPlanState(ctx, db.UpsertPlanStateParams{
		Name:      name,
		Status:    state.Status,
		Etag:      state.ETag,
		Snapshot:  encoded,
		UpdatedAt: s.time().Unix(),
	})
	if err != nil {
		return fmt.Errorf("save state of %s: %w", name, err)
	}
	if err := commit(); err != nil {
		return fmt.Errorf("save state of %s: commit: %w", name, err)
	}
	return nil
}

func (s DBStore) RecordCrawl(ctx context.Context, name string, record CrawlRecord) error {
	params := db.RecordCrawlParams{
		Plan:         name,
		StartedAt:    record.StartedAt.Unix(),
		DurationMs:   record.Duration.Milliseconds(),
		Changed:      record.Changed,
		Pages:        int64(record.Pages),
		AffectedDays: int64(record.AffectedDays),
	}
	if record.Err != nil {
		params.Error = sql.NullString{String: record.Err.Error(), Valid: true}
	}
	err := s.qry.RecordCrawl(ctx, params)
	if err != nil {
		return fmt.Errorf("record crawl of %s: %w", name, err)
	}
	return nil
}

// PruneCrawlLog removes crawl log rows older than `before`.
func (s DBStore) PruneCrawlLog(ctx context.Context, before time.Time) error {
	return s.qry.PruneCrawlLog(ctx, before.Unix())
}

// MemoryStore is a StateStore that keeps everything in memory, for tooling and tests.
type MemoryStore struct {
	mu      sync.Mutex
	states  map[string]State
	records map[string][]CrawlRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:  map[string]State{},
		records: map[string][]CrawlRecord{},
	}
}

func (m *MemoryStore) LoadState(_ context.Context, name string) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[name]
	return state, ok, nil
}

func (m *MemoryStore) SaveState(_ context.Context, name string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[name] = state
	return nil
}

func (m *MemoryStore) RecordCrawl(_ context.Context, name string, record CrawlRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[name] = append(m.records[name], record)
	return nil
}

// Records returns a copy of the crawl log of a plan.
func (m *MemoryStore) Records(name string) []CrawlRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records[name])
}
