package db

import (
	"database/sql"
)

type PlanState struct {
	Name      string
	Status    string
	Etag      string
	Snapshot  []byte
	UpdatedAt int64
}

type CrawlLog struct {
	ID           int64
	Plan         string
	StartedAt    int64
	DurationMs   int64
	Changed      bool
	Pages        int64
	AffectedDays int64
	Error        sql.NullString
}
