package telemetry

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := &Recorder{}
	tel := NewScopedAPI("untis_crawler", rec)

	tel.ReportBroken("crawler.fetch-page", errors.New("timeout"), KV{Key: "page", Value: 3})
	tel.ReportWarning("crawler.stale-page")
	tel.ReportDebug("wave done")
	tel.ReportCount("crawler.pages", 4)

	require.True(t, rec.Broken("crawler.fetch-page"))
	require.True(t, rec.Warned("crawler.stale-page"))
	require.Equal(t, "untis_crawler:crawler.fetch-page", rec.Reports("broken")[0].ID)
	require.Equal(t, "untis_crawler: wave done", rec.Reports("debug")[0].ID)
	require.Equal(t, Report{Kind: "count", ID: "untis_crawler:crawler.pages", Count: 4}, rec.Reports("count")[0])
	require.Len(t, rec.Reports(""), 4)
}

func TestSlogAPI(t *testing.T) {
	var buf bytes.Buffer
	tel := SlogAPI{Logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	tel.ReportBroken("plan.update", errors.New("wave timed out"), KV{Key: "plan", Value: "students"}, 7)
	line := buf.String()
	require.True(t, strings.Contains(line, "level=ERROR"), line)
	require.True(t, strings.Contains(line, "id=plan.update"), line)
	require.True(t, strings.Contains(line, `err="wave timed out"`), line)
	require.True(t, strings.Contains(line, "plan=students"), line)
	require.True(t, strings.Contains(line, "params.2=7"), line)

	buf.Reset()
	tel.ReportCount("crawler.pages", 3)
	require.True(t, strings.Contains(buf.String(), "n=3"))
}
