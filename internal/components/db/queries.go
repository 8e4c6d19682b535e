package db

import (
	"context"
	"database/sql"
)

const getPlanState = `-- name: GetPlanState :one
select name, status, etag, snapshot, updated_at from plan_state
where name = ?
`

func (q *Queries) GetPlanState(ctx context.Context, name string) (PlanState, error) {
	row := q.db.QueryRowContext(ctx, getPlanState, name)
	var i PlanState
	err := row.Scan(
		&i.Name,
		&i.Status,
		&i.Etag,
		&i.Snapshot,
		&i.UpdatedAt,
	)
	return i, err
}

const listPlanStates = `-- name: ListPlanStates :many
select name, status, etag, snapshot, updated_at from plan_state
order by name
`

func (q *Queries) ListPlanStates(ctx context.Context) ([]PlanState, error) {
	rows, err := q.db.QueryContext(ctx, listPlanStates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PlanState
	for rows.Next() {
		var i PlanState
		if err := rows.Scan(
			&i.Name,
			&i.Status,
			&i.Etag,
			&i.Snapshot,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertPlanState = `-- name: UpsertPlanState :exec
insert into plan_state(name, status, etag, snapshot, updated_at)
values (?, ?, ?, ?, ?)
on conflict (name) do update set
    status = excluded.status,
    etag = excluded.etag,
    snapshot = excluded.snapshot,
    updated_at = excluded.updated_at
`

type UpsertPlanStateParams struct {
	Name      string
	Status    string
	Etag      string
	Snapshot  []byte
	UpdatedAt int64
}

func (q *Queries) UpsertPlanState(ctx context.Context, arg UpsertPlanStateParams) error {
	_, err := q.db.ExecContext(ctx, upsertPlanState,
		arg.Name,
		arg.Status,
		arg.Etag,
		arg.Snapshot,
		arg.UpdatedAt,
	)
	return err
}

const recordCrawl = `-- name: RecordCrawl :exec
insert into crawl_log(plan, started_at, duration_ms, changed, pages, affected_days, error)
values (?, ?, ?, ?, ?, ?, ?)
`

type RecordCrawlParams struct {
	Plan         string
	StartedAt    int64
	DurationMs   int64
	Changed      bool
	Pages        int64
	AffectedDays int64
	Error        sql.NullString
}

func (q *Queries) RecordCrawl(ctx context.Context, arg RecordCrawlParams) error {
	_, err := q.db.ExecContext(ctx, recordCrawl,
		arg.Plan,
		arg.StartedAt,
		arg.DurationMs,
		arg.Changed,
		arg.Pages,
		arg.AffectedDays,
		arg.Error,
	)
	return err
}

const listRecentCrawls = `-- name: ListRecentCrawls :many
select id, plan, started_at, duration_ms, changed, pages, affected_days, error from crawl_log
where plan = ?
order by started_at desc, id desc
limit ?
`

type ListRecentCrawlsParams struct {
	Plan  string
	Limit int64
}

func (q *Queries) ListRecentCrawls(ctx context.Context, arg ListRecentCrawlsParams) ([]CrawlLog, error) {
	rows, err := q.db.QueryContext(ctx, listRecentCrawls, arg.Plan, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CrawlLog
	for rows.Next() {
		var i CrawlLog
		if err := rows.Scan(
			&i.ID,
			&i.Plan,
			&i.StartedAt,
			&i.DurationMs,
			&i.Changed,
			&i.Pages,
			&i.AffectedDays,
			&i.Error,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const pruneCrawlLog = `-- name: PruneCrawlLog :exec
delete from crawl_log
where started_at < ?
`

func (q *Queries) PruneCrawlLog(ctx context.Context, before int64) error {
	_, err := q.db.ExecContext(ctx, pruneCrawlLog, before)
	return err
}
