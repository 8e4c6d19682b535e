package untis

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"subplan-backend/internal/components/chrono"
	"sync"
	"time"
)

const testStatus = "18.10.2026 14:32"

var testNow = time.Date(2026, 10, 19, 7, 0, 0, 0, chrono.Berlin())

func testDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, chrono.Berlin())
}

func fixturePage(next int, status string, content ...string) string {
	return fmt.Sprintf(`<html>
<head>
<meta http-equiv="Content-Type" content="text/html; charset=utf-8">
<meta http-equiv="refresh" content="8; URL=%s">
<title>Untis Vertretungsplan</title>
</head>
<body>
<div class="mon_head"><table><tr><td><h2>Gymnasium</h2> Stand: %s</td></tr></table></div>
%s
</body>
</html>`, PageName(next), status, strings.Join(content, "\n"))
}

func fixtureTitle(title string) string {
	return `<div class="mon_title">` + title + `</div>`
}

func fixtureInfo(rows ...string) string {
	return `<table class="info"><tr class="info"><th class="info" colspan="2">Nachrichten zum Tag</th></tr>` +
		strings.Join(rows, "") + `</table>`
}

func fixtureNews(text string) string {
	return `<tr class="info"><td class="info" colspan="2">` + text + `</td></tr>`
}

func fixtureInfoPair(label, text string) string {
	return `<tr class="info"><td class="info">` + label + `</td><td class="info">` + text + `</td></tr>`
}

func fixtureTable(rows ...string) string {
	return `<table class="mon_list">
<tr class="list"><th class="list">Vertreter</th><th class="list">Stunde</th><th class="list">Fach</th></tr>
` + strings.Join(rows, "\n") + `
</table>`
}

func fixtureHeader(name string) string {
	return `<tr class="list"><td class="list inline_header" colspan="7">` + name + `</td></tr>`
}

func fixtureStruckHeader(name string) string {
	return `<tr class="list"><td class="list inline_header" colspan="7"><s>` + name + `</s></td></tr>`
}

func fixtureRow(cells ...string) string {
	var sb strings.Builder
	sb.WriteString(`<tr class="list odd">`)
	for _, c := range cells {
		sb.WriteString(`<td class="list" align="center">`)
		sb.WriteString(c)
		sb.WriteString(`</td>`)
	}
	sb.WriteString(`</tr>`)
	return sb.String()
}

// fakeFetcher serves fixture pages and records which pages were requested.
type fakeFetcher struct {
	mu        sync.Mutex
	pages     map[int]string
	etag      string
	delays    map[int]time.Duration
	block     map[int]bool
	fail      map[int]error
	requested []int
	cancelled []int
}

func newFakeFetcher(pages map[int]string) *fakeFetcher {
	return &fakeFetcher{
		pages:  pages,
		delays: map[int]time.Duration{},
		block:  map[int]bool{},
		fail:   map[int]error{},
	}
}

func (f *fakeFetcher) FetchPage(ctx context.Context, page int, etag string) (PageResponse, error) {
	f.mu.Lock()
	f.requested = append(f.requested, page)
	delay := f.delays[page]
	block := f.block[page]
	failure := f.fail[page]
	body, ok := f.pages[page]
	currentETag := f.etag
	f.mu.Unlock()

	if etag != "" && etag == currentETag {
		return PageResponse{NotModified: true, ETag: etag}, nil
	}
	if block {
		<-ctx.Done()
		f.markCancelled(page)
		return PageResponse{}, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			f.markCancelled(page)
			return PageResponse{}, ctx.Err()
		}
	}
	if failure != nil {
		return PageResponse{}, failure
	}
	if !ok {
		return PageResponse{}, fmt.Errorf("%w: page %d: 404 Not Found", ErrUnexpectedStatus, page)
	}
	return PageResponse{
		Body: io.NopCloser(strings.NewReader(body)),
		ETag: currentETag,
	}, nil
}

func (f *fakeFetcher) markCancelled(page int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, page)
}

func (f *fakeFetcher) Requested() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.requested)
	slices.Sort(out)
	return out
}

func (f *fakeFetcher) Cancelled() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.cancelled)
	slices.Sort(out)
	return out
}

// threePages is a students plan spread over three pages. Class 10A starts on page 1 and
// continues on page 2 without header, 10B is repeated at the top of page 3.
func threePages(status string) map[int]string {
	return map[int]string{
		1: fixturePage(2, status,
			fixtureTitle("19.10.2026 Montag, Woche A"),
			fixtureInfo(
				fixtureNews("Heute kein Sportunterricht"),
				fixtureInfoPair("Abwesende Lehrer", "MUE, SCH"),
			),
			fixtureTable(
				fixtureHeader("5A"),
				fixtureRow("MUE", "SCH", "1", "Ma", "101", "", ""),
				fixtureHeader("10A"),
				fixtureRow("MUE", "LEH", "3-4", "De", "102", "", "Aufgaben"),
			),
		),
		2: fixturePage(3, status,
			fixtureTitle("19.10.2026 Montag, Woche A"),
			fixtureInfo(fixtureNews("Heute kein Sportunterricht")),
			fixtureTable(
				fixtureRow("SCH", "MAI", "5", "En", "103", "", ""),
				fixtureHeader("10B"),
				fixtureRow("SCH", "", "6", "Ph", "", "", "entfällt"),
			),
		),
		3: fixturePage(1, status,
			fixtureTitle("19.10.2026 Montag, Woche A"),
			fixtureTable(
				fixtureHeader("10B"),
				fixtureRow("LEH", "MUE", "7", "Ch", "104", "", ""),
			),
			fixtureTitle("20.10.2026 Dienstag, Woche A"),
			fixtureTable(
				fixtureHeader("10A"),
				fixtureRow("MUE", "SCH", "2", "Ma", "201", "", ""),
				fixtureStruckHeader("11"),
				fixtureRow("LEH", "", "1", "Ku", "", "", ""),
			),
		),
	}
}
