package telemetry

import (
	"fmt"
	"log/slog"
	"os"
)

// InitSlog sets the default slog logger, verbose enables debug reports. Setting
// SUBPLAN_LOG_FORMAT=json switches to json lines for log shippers.
func InitSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if os.Getenv("SUBPLAN_LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// SlogAPI implements API on top of a slog.Logger, the zero value logs to slog.Default().
type SlogAPI struct {
	Logger *slog.Logger
}

func (s SlogAPI) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// attrs renders KV params under their own key and everything else as params.N,
// errors become "err".
func attrs(params []any) []any {
	out := make([]any, 0, len(params)*2)
	for i, p := range params {
		switch p := p.(type) {
		case KV:
			out = append(out, p.Key, p.Value)
		case error:
			out = append(out, "err", p.Error())
		default:
			out = append(out, fmt.Sprintf("params.%d", i), p)
		}
	}
	return out
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	s.logger().Error("broken component", append([]any{"id", id}, attrs(params)...)...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	s.logger().Warn("warning", append([]any{"id", id}, attrs(params)...)...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	s.logger().Debug(message, attrs(params)...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	s.logger().Info("count", "id", id, "n", count)
}
