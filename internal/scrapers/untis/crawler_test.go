package untis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"subplan-backend/internal/components/chrono"
	"subplan-backend/internal/components/telemetry"
	"subplan-backend/internal/plan"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCrawler(fetcher Fetcher, opts ...CrawlerOption) (*Crawler, *telemetry.Recorder) {
	rec := &telemetry.Recorder{}
	return NewCrawler(Students, fetcher, chrono.NewFixedTime(testNow), rec, opts...), rec
}

// chainPages builds n pages of the same day. Every page but the first starts with a row
// that continues the group of the page before it.
func chainPages(n int, terminal bool) map[int]string {
	pages := map[int]string{}
	for i := 1; i <= n; i++ {
		next := i + 1
		if i == n && terminal {
			next = StartPage
		}
		var rows []string
		if i > 1 {
			rows = append(rows, fixtureRow("MUE", "", fmt.Sprint(i), "Ma", "", "", "Fortsetzung"))
		}
		rows = append(rows,
			fixtureHeader(fmt.Sprintf("%dA", i+4)),
			fixtureRow("SCH", "LEH", "1", "De", fmt.Sprint(100+i), "", ""),
		)
		pages[i] = fixturePage(next, testStatus,
			fixtureTitle("19.10.2026 Montag, Woche A"),
			fixtureTable(rows...),
		)
	}
	return pages
}

type groupSummary struct {
	Name    string
	Struck  bool
	Lessons []string
}

func summarize(s *plan.Snapshot) map[string][]groupSummary {
	out := map[string][]groupSummary{}
	for _, day := range s.Days() {
		for _, g := range day.Groups() {
			summary := groupSummary{Name: g.Key.Name, Struck: g.Key.Struck}
			for _, e := range g.Entries {
				summary.Lessons = append(summary.Lessons, e.Get(plan.FieldLesson)+" "+e.Get(plan.FieldSubject))
			}
			out[day.Key()] = append(out[day.Key()], summary)
		}
	}
	return out
}

func TestCrawl(t *testing.T) {
	fetcher := newFakeFetcher(threePages(testStatus))
	fetcher.etag = `"v1"`
	crawler, rec := newTestCrawler(fetcher)

	result, err := crawler.Crawl(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	require.True(t, result.Changed)
	require.Equal(t, testStatus, result.Status.Token)
	require.Equal(t, `"v1"`, result.ETag)
	require.Equal(t, 3, result.Pages)

	expected := map[string][]groupSummary{
		"2026-10-19": {
			{Name: "5A", Lessons: []string{"1 Ma"}},
			{Name: "10A", Lessons: []string{"3-4 De", "5 En"}},
			{Name: "10B", Lessons: []string{"6 Ph", "7 Ch"}},
		},
		"2026-10-20": {
			{Name: "10A", Lessons: []string{"2 Ma"}},
			{Name: "11", Struck: true, Lessons: []string{"1 Ku"}},
		},
	}
	require.Equal(t, expected, summarize(result.Snapshot))

	day, ok := result.Snapshot.GetDay(testDate(2026, 10, 19))
	require.True(t, ok)
	require.Equal(t, []string{"Heute kein Sportunterricht"}, day.News)
	require.Equal(t, "Montag", day.Name)
	require.Equal(t, plan.ExpireAfterDay, result.Snapshot.Expiry)

	pages := rec.Reports("count")
	require.Len(t, pages, 1)
	require.Equal(t, "untis_crawler:crawler.pages", pages[0].ID)
	require.Equal(t, int64(3), pages[0].Count)
}

func TestCrawlUnchanged(t *testing.T) {
	fetcher := newFakeFetcher(threePages(testStatus))
	fetcher.etag = `"v1"`
	crawler, _ := newTestCrawler(fetcher)

	result, err := crawler.Crawl(context.Background(), testStatus, "")
	if err != nil {
		t.Fatal(err)
	}
	require.False(t, result.Changed)
	require.Nil(t, result.Snapshot)
	require.Equal(t, `"v1"`, result.ETag)
	require.Equal(t, []int{1}, fetcher.Requested())

	result, err = crawler.Crawl(context.Background(), "an older status", `"v1"`)
	if err != nil {
		t.Fatal(err)
	}
	require.False(t, result.Changed)
	require.Equal(t, "an older status", result.Status.Token)
	require.Equal(t, []int{1, 1}, fetcher.Requested())
}

func TestCrawlOutOfOrderMerge(t *testing.T) {
	crawlWith := func(delays map[int]time.Duration, waveSize int) []byte {
		fetcher := newFakeFetcher(chainPages(4, true))
		fetcher.delays = delays
		crawler, _ := newTestCrawler(fetcher, WithWaveSize(waveSize))
		result, err := crawler.Crawl(context.Background(), "", "")
		if err != nil {
			t.Fatal(err)
		}
		return plan.Encode(result.Snapshot)
	}

	inOrder := crawlWith(map[int]time.Duration{3: 30 * time.Millisecond, 4: 60 * time.Millisecond}, 3)
	shuffled := crawlWith(map[int]time.Duration{2: 30 * time.Millisecond, 4: 60 * time.Millisecond}, 3)
	reversed := crawlWith(map[int]time.Duration{2: 60 * time.Millisecond, 3: 30 * time.Millisecond}, 3)
	sequential := crawlWith(nil, 1)

	require.Equal(t, sequential, inOrder)
	require.Equal(t, sequential, shuffled)
	require.Equal(t, sequential, reversed)

	decoded, err := plan.Decode(sequential)
	if err != nil {
		t.Fatal(err)
	}
	groups := summarize(decoded)["2026-10-19"]
	require.Equal(t, []string{"1 De", "2 Ma"}, groups[0].Lessons)
	require.Equal(t, "5A", groups[0].Name)
	require.Equal(t, []string{"1 De"}, groups[3].Lessons)
}

func TestCrawlTermination(t *testing.T) {
	pages := threePages(testStatus)
	pages[4] = chainPages(1, true)[1]
	fetcher := newFakeFetcher(pages)
	crawler, _ := newTestCrawler(fetcher, WithWaveSize(2))

	result, err := crawler.Crawl(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 3, result.Pages)
	require.Equal(t, []int{1, 2, 3}, fetcher.Requested())
}

func TestCrawlTerminationInsideWave(t *testing.T) {
	// pages 4 to 6 share the wave of the terminal page, nothing after that wave is asked for
	pages := threePages(testStatus)
	for i := 4; i <= 8; i++ {
		pages[i] = fixturePage(i+1, testStatus,
			fixtureTitle("21.10.2026 Mittwoch, Woche A"),
			fixtureTable(
				fixtureHeader("7C"),
				fixtureRow("SCH", "LEH", "1", "De", "301", "", ""),
			),
		)
	}
	fetcher := newFakeFetcher(pages)
	crawler, _ := newTestCrawler(fetcher)

	result, err := crawler.Crawl(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 3, result.Pages)
	require.LessOrEqual(t, slices.Max(fetcher.Requested()), StartPage+DefaultWaveSize)
	require.False(t, result.Snapshot.HasDay(testDate(2026, 10, 21)))
}

func TestCrawlCancelsPagesPastTerminal(t *testing.T) {
	fetcher := newFakeFetcher(threePages(testStatus))
	fetcher.delays[2] = 100 * time.Millisecond
	fetcher.block[4] = true
	fetcher.block[5] = true
	fetcher.block[6] = true
	crawler, _ := newTestCrawler(fetcher, WithPageTimeout(10*time.Second), WithWaveTimeout(10*time.Second))

	start := time.Now()
	result, err := crawler.Crawl(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 3, result.Pages)
	require.Eventually(t, func() bool {
		return len(fetcher.Cancelled()) == 3
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []int{4, 5, 6}, fetcher.Cancelled())
}

func TestCrawlPageLimit(t *testing.T) {
	fetcher := newFakeFetcher(chainPages(10, false))
	crawler, _ := newTestCrawler(fetcher, WithWaveSize(2), WithMaxPages(4))

	_, err := crawler.Crawl(context.Background(), "", "")
	var limit *PageLimitExceededError
	require.True(t, errors.As(err, &limit))
	require.Equal(t, 4, limit.Limit)
	require.Equal(t, []int{1, 2, 3, 4}, fetcher.Requested())
}

func TestCrawlWaveTimeout(t *testing.T) {
	fetcher := newFakeFetcher(threePages(testStatus))
	fetcher.block[3] = true
	crawler, _ := newTestCrawler(
		fetcher,
		WithWaveSize(2),
		WithWaveTimeout(50*time.Millisecond),
		WithPageTimeout(5*time.Second),
	)

	_, err := crawler.Crawl(context.Background(), "", "")
	require.True(t, errors.Is(err, ErrWaveTimeout), "got %v", err)
}

func TestCrawlFailures(t *testing.T) {
	reset := errors.New("connection reset by peer")

	{
		fetcher := newFakeFetcher(threePages(testStatus))
		fetcher.fail[2] = reset
		crawler, _ := newTestCrawler(fetcher)
		_, err := crawler.Crawl(context.Background(), "", "")
		require.True(t, errors.Is(err, reset))
	}
	{
		pages := threePages(testStatus)
		pages[1] = `<html><body><div class="mon_head">Stand: 18.10.2026 14:32</div></body></html>`
		crawler, _ := newTestCrawler(newFakeFetcher(pages))
		_, err := crawler.Crawl(context.Background(), "", "")
		require.True(t, errors.Is(err, ErrMissingContinuation))
	}
	{
		pages := threePages(testStatus)
		pages[1] = fixturePage(2, "gestern")
		crawler, _ := newTestCrawler(newFakeFetcher(pages))
		_, err := crawler.Crawl(context.Background(), "", "")
		var malformed *MalformedStatusError
		require.True(t, errors.As(err, &malformed))
	}
	{
		pages := threePages(testStatus)
		pages[2] = fixturePage(5, testStatus, fixtureTitle("19.10.2026 Montag"))
		crawler, _ := newTestCrawler(newFakeFetcher(pages))
		_, err := crawler.Crawl(context.Background(), "", "")
		require.True(t, errors.Is(err, ErrUnexpectedContinuation))
	}
	{
		pages := threePages(testStatus)
		pages[3] = fixturePage(1, testStatus,
			fixtureTitle("19.10.2026 Montag"),
			fixtureTable(fixtureHeader("5A"), fixtureRow("X", "", "8", "Mu", "", "", "")),
		)
		crawler, _ := newTestCrawler(newFakeFetcher(pages))
		_, err := crawler.Crawl(context.Background(), "", "")
		require.True(t, errors.Is(err, plan.ErrDuplicateGroup))
	}
}

func TestCrawlKeepsStalePageContent(t *testing.T) {
	pages := threePages(testStatus)
	pages[2] = fixturePage(3, testStatus,
		fixtureTitle("19.10.2026 Montag"),
		fixtureTable(fixtureRow("SCH", "MAI", "5", "En", "103", "", "")),
		fixtureTitle("12.10.2026 Montag"),
		fixtureTable(fixtureHeader("10C"), fixtureRow("SCH", "", "1", "Bio", "", "", "")),
	)
	crawler, rec := newTestCrawler(newFakeFetcher(pages))

	result, err := crawler.Crawl(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	require.True(t, rec.Warned("crawler.stale-page"))
	require.False(t, result.Snapshot.HasDay(testDate(2026, 10, 12)))
	groups := summarize(result.Snapshot)["2026-10-19"]
	require.Equal(t, []string{"3-4 De", "5 En"}, groups[1].Lessons)
}
