package telemetry

import (
	"context"
	"errors"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const report_perf_stats = "perf-stats"

// InstrumentPerfStats registers process gauges (cpu, resident memory, heap, goroutines)
// that are observed whenever the meter provider collects. The callback is unregistered
// once ctx is done.
func InstrumentPerfStats(ctx context.Context, tel API) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		tel.ReportWarning(report_perf_stats, err)
		return
	}

	meter := otel.Meter("subplan/perf_stats")
	cpuGauge, cpuErr := meter.Float64ObservableGauge("process.cpu_percent")
	rssGauge, rssErr := meter.Int64ObservableGauge("process.resident_mb")
	heapGauge, heapErr := meter.Int64ObservableGauge("process.heap_alloc_mb")
	goroutineGauge, goroutineErr := meter.Int64ObservableGauge("process.goroutines")
	err = errors.Join(cpuErr, rssErr, heapErr, goroutineErr)
	if err != nil {
		tel.ReportWarning(report_perf_stats, err)
		return
	}

	registration, err := meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			o.ObserveInt64(heapGauge, int64(mem.HeapAlloc/1_000_000))
			o.ObserveInt64(goroutineGauge, int64(runtime.NumGoroutine()))

			// cpu percent is measured against the previous call, the first
			// observation is always 0
			percent, err := proc.PercentWithContext(ctx, 0)
			if err == nil {
				o.ObserveFloat64(cpuGauge, percent)
			}
			info, err := proc.MemoryInfoWithContext(ctx)
			if err == nil {
				o.ObserveInt64(rssGauge, int64(info.RSS/1_000_000))
			}
			return nil
		},
		cpuGauge, rssGauge, heapGauge, goroutineGauge,
	)
	if err != nil {
		tel.ReportWarning(report_perf_stats, err)
		return
	}

	go func() {
		<-ctx.Done()
		registration.Unregister()
	}()
}
