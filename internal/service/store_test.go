package service

import (
	"context"
	"database/sql"
	"errors"
	"subplan-backend/internal/components/db"
	"subplan-backend/internal/components/telemetry"
	"subplan-backend/internal/plan"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func testSnapshot(t *testing.T) *plan.Snapshot {
	snapshot := plan.NewSnapshot(statusMorning, testNow, plan.ExpireAfterDay)
	day := plan.NewDay(time.Date(2026, 10, 19, 0, 0, 0, 0, testNow.Location()), "Montag", "19.10.2026", "Woche A")
	day.AddNews("Heute kein Sportunterricht")
	group := plan.NewGroup("10A", false, true)
	group.Append(plan.NewEntry(map[plan.Field]string{
		plan.FieldTeacher: "LEH",
		plan.FieldLesson:  "3",
		plan.FieldRoom:    "204",
	}, 0))
	err := day.AddGroup(group)
	if err != nil {
		t.Fatal(err)
	}
	err = snapshot.AddDay(day)
	if err != nil {
		t.Fatal(err)
	}
	return snapshot
}

func TestDBStore(t *testing.T) {
	ctx := context.Background()
	store := newTestDBStore(t)

	_, ok, err := store.LoadState(ctx, "students")
	require.NoError(t, err)
	require.False(t, ok)

	snapshot := testSnapshot(t)
	err = store.SaveState(ctx, "students", State{Status: statusMorning, ETag: `"abc"`, Snapshot: snapshot})
	if err != nil {
		t.Fatal(err)
	}
	// saving again overwrites
	err = store.SaveState(ctx, "students", State{Status: statusAfternoon, ETag: `"def"`, Snapshot: snapshot})
	if err != nil {
		t.Fatal(err)
	}

	state, ok, err := store.LoadState(ctx, "students")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, statusAfternoon, state.Status)
	require.Equal(t, `"def"`, state.ETag)
	diff := cmp.Diff(snapshot.Project(nil), state.Snapshot.Project(nil))
	if diff != "" {
		t.Fatal(diff)
	}

	{
		err := store.SaveState(ctx, "teachers", State{Status: statusMorning})
		require.NoError(t, err)
		state, ok, err := store.LoadState(ctx, "teachers")
		require.NoError(t, err)
		require.True(t, ok)
		require.Nil(t, state.Snapshot)
	}
}

func TestDBStoreUndecodableSnapshot(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	tel := &telemetry.Recorder{}
	store := NewDBStore(db.New(database), db.NewMakeTx(database), tel)

	err := db.New(database).UpsertPlanState(ctx, db.UpsertPlanStateParams{
		Name:     "students",
		Status:   statusMorning,
		Snapshot: []byte{0xff, 0xff, 0xff},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, ok, err := store.LoadState(ctx, "students")
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, tel.Warned("store.decode-snapshot"))
}

func TestDBStoreCrawlLog(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	qry := db.New(database)
	store := NewDBStore(qry, db.NewMakeTx(database), &telemetry.Recorder{})

	err := store.RecordCrawl(ctx, "students", CrawlRecord{
		StartedAt: testNow.Add(-48 * time.Hour),
		Duration:  300 * time.Millisecond,
		Changed:   true,
		Pages:     3,
	})
	require.NoError(t, err)
	err = store.RecordCrawl(ctx, "students", CrawlRecord{
		StartedAt: testNow,
		Duration:  time.Second,
		Err:       errors.New("wave timed out"),
	})
	require.NoError(t, err)

	crawls, err := qry.ListRecentCrawls(ctx, db.ListRecentCrawlsParams{Plan: "students", Limit: 10})
	require.NoError(t, err)
	require.Len(t, crawls, 2)
	require.Equal(t, sql.NullString{String: "wave timed out", Valid: true}, crawls[0].Error)
	require.Equal(t, int64(1000), crawls[0].DurationMs)
	require.True(t, crawls[1].Changed)
	require.Equal(t, int64(3), crawls[1].Pages)

	err = store.PruneCrawlLog(ctx, testNow.Add(-24*time.Hour))
	require.NoError(t, err)
	crawls, err = qry.ListRecentCrawls(ctx, db.ListRecentCrawlsParams{Plan: "students", Limit: 10})
	require.NoError(t, err)
	require.Len(t, crawls, 1)
}

func TestDBStoreErrors(t *testing.T) {
	ctx := context.Background()
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	store := NewDBStore(db.New(database), db.NewMakeTx(database), &telemetry.Recorder{})

	broken := errors.New("disk I/O error")

	mock.ExpectQuery("select name, status, etag, snapshot, updated_at from plan_state").
		WithArgs("students").
		WillReturnError(broken)
	_, _, err = store.LoadState(ctx, "students")
	require.ErrorIs(t, err, broken)

	mock.ExpectBegin().WillReturnError(broken)
	err = store.SaveState(ctx, "students", State{Status: statusMorning})
	require.ErrorIs(t, err, broken)

	mock.ExpectBegin()
	mock.ExpectExec("insert into plan_state").WillReturnError(broken)
	mock.ExpectRollback()
	err = store.SaveState(ctx, "students", State{Status: statusMorning})
	require.ErrorIs(t, err, broken)

	mock.ExpectBegin()
	mock.ExpectExec("insert into plan_state").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(broken)
	err = store.SaveState(ctx, "students", State{Status: statusMorning})
	require.ErrorIs(t, err, broken)

	mock.ExpectExec("insert into crawl_log").WillReturnError(broken)
	err = store.RecordCrawl(ctx, "students", CrawlRecord{StartedAt: testNow})
	require.ErrorIs(t, err, broken)

	require.NoError(t, mock.ExpectationsWereMet())
}

type failingStore struct {
	*MemoryStore
	err error
}

func (s failingStore) SaveState(ctx context.Context, name string, state State) error {
	return s.err
}

func (s failingStore) RecordCrawl(ctx context.Context, name string, record CrawlRecord) error {
	return s.err
}

func TestUpdatePersistFailure(t *testing.T) {
	env := newTestEnv(failingStore{MemoryStore: NewMemoryStore(), err: errors.New("database is locked")})
	p := env.plan()

	env.source.set(mondayPlan(statusMorning, "101"))
	changed, _, err := p.Update(context.Background())
	require.NoError(t, err, "persisting is best effort")
	require.True(t, changed)
	require.NotNil(t, p.Snapshot())
	require.True(t, env.tel.Broken("plan.persist"))
	require.True(t, env.tel.Warned("plan.record-crawl"))
}
