package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"subplan-backend/internal/components/chrono"
	"subplan-backend/internal/components/db"
	"subplan-backend/internal/components/telemetry"
	"subplan-backend/internal/scrapers/untis"
	"subplan-backend/pkg/migrations"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2026, 10, 19, 7, 0, 0, 0, chrono.Berlin())

func page(next int, status string, content ...string) string {
	return fmt.Sprintf(`<html><head>
<meta http-equiv="refresh" content="8; URL=%s">
</head><body>
<div class="mon_head">Stand: %s</div>
%s
</body></html>`, untis.PageName(next), status, strings.Join(content, "\n"))
}

func title(text string) string {
	return `<div class="mon_title">` + text + `</div>`
}

func table(rows ...string) string {
	return `<table class="mon_list">` + strings.Join(rows, "\n") + `</table>`
}

func header(name string) string {
	return `<tr class="list"><td class="list inline_header" colspan="7">` + name + `</td></tr>`
}

func row(cells ...string) string {
	var sb strings.Builder
	sb.WriteString(`<tr class="list">`)
	for _, c := range cells {
		sb.WriteString(`<td class="list">` + c + `</td>`)
	}
	sb.WriteString(`</tr>`)
	return sb.String()
}

// mondayPlan is a two page students plan for 19.10.2026, `room` is the room of the 10A
// substitution.
func mondayPlan(status, room string) map[int]string {
	return map[int]string{
		1: page(2, status,
			title("19.10.2026 Montag, Woche A"),
			table(
				header("5"),
				row("MUE", "SCH", "1", "Ma", "101", "", ""),
			),
		),
		2: page(1, status,
			title("19.10.2026 Montag, Woche A"),
			table(
				header("10A"),
				row("LEH", "MAI", "3", "De", room, "", ""),
			),
		),
	}
}

// pageSource is an untis.Fetcher serving a replaceable set of pages.
type pageSource struct {
	mu    sync.Mutex
	pages map[int]string
	fail  error
}

func (s *pageSource) set(pages map[int]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = pages
}

func (s *pageSource) setFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *pageSource) FetchPage(ctx context.Context, page int, etag string) (untis.PageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return untis.PageResponse{}, s.fail
	}
	body, ok := s.pages[page]
	if !ok {
		return untis.PageResponse{}, fmt.Errorf("%w: page %d", untis.ErrUnexpectedStatus, page)
	}
	return untis.PageResponse{Body: io.NopCloser(strings.NewReader(body))}, nil
}

type testEnv struct {
	source *pageSource
	store  StateStore
	time   *chrono.FixedTime
	tel    *telemetry.Recorder
}

func newTestEnv(store StateStore) testEnv {
	return testEnv{
		source: &pageSource{},
		store:  store,
		time:   chrono.NewFixedTime(testNow),
		tel:    &telemetry.Recorder{},
	}
}

func (e testEnv) plan() *Plan {
	crawler := untis.NewCrawler(untis.Students, e.source, e.time, e.tel)
	return NewPlan("students", crawler, e.store, e.time, e.tel)
}

func openTestDB(t *testing.T) *sql.DB {
	database, err := migrations.OpenAndMigrateDB(
		context.Background(),
		migrations.Database{File: filepath.Join(t.TempDir(), "state.db")},
		db.Schema,
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

func newTestDBStore(t *testing.T) DBStore {
	database := openTestDB(t)
	return NewDBStore(db.New(database), db.NewMakeTx(database), &telemetry.Recorder{})
}
