package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

type restyHooks struct {
	tel      API
	tracer   trace.Tracer
	duration metric.Float64Histogram
	nextID   *atomic.Uint64
}

// InstrumentResty wraps every request made by client in a span, records its duration
// and reports it to tel. Failures of requests whose context was cancelled are only
// debug reports.
func InstrumentResty(client *resty.Client, tel API) {
	duration, err := otel.Meter("subplan/resty").Float64Histogram(
		"http.client.request.duration",
		metric.WithUnit("ms"),
	)
	if err != nil {
		duration, _ = noop.NewMeterProvider().Meter("").Float64Histogram("")
	}
	h := restyHooks{
		tel:      tel,
		tracer:   otel.Tracer("subplan/resty"),
		duration: duration,
		nextID:   &atomic.Uint64{},
	}

	client.OnBeforeRequest(h.before)
	client.OnAfterResponse(h.after)
	client.OnError(h.failed)
}

type requestInfoKey struct{}

type requestInfo struct {
	id    uint64
	start time.Time
}

func infoOf(ctx context.Context) (requestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(requestInfo)
	return info, ok
}

func (h restyHooks) before(_ *resty.Client, req *resty.Request) error {
	ctx, _ := h.tracer.Start(req.Context(), fmt.Sprintf("http %s", req.Method))
	info := requestInfo{id: h.nextID.Add(1), start: time.Now()}
	req.SetContext(context.WithValue(ctx, requestInfoKey{}, info))

	h.tel.ReportDebug(
		report_resty_request,
		KV{Key: "request", Value: info.id},
		KV{Key: "method", Value: req.Method},
		KV{Key: "url", Value: req.URL},
	)
	return nil
}

func (h restyHooks) after(_ *resty.Client, res *resty.Response) error {
	ctx := res.Request.Context()
	span := trace.SpanFromContext(ctx)
	defer span.End()

	info, _ := infoOf(ctx)
	elapsed := time.Since(info.start)
	span.SetAttributes(
		attribute.String("http.url", res.Request.URL),
		attribute.Int("http.status_code", res.StatusCode()),
	)
	h.duration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(
		attribute.Int("http.status_code", res.StatusCode()),
	))

	h.tel.ReportDebug(
		report_resty_response,
		KV{Key: "request", Value: info.id},
		KV{Key: "status", Value: res.Status()},
		KV{Key: "took", Value: elapsed.String()},
	)
	return nil
}

func (h restyHooks) failed(req *resty.Request, err error) {
	ctx := req.Context()
	span := trace.SpanFromContext(ctx)
	defer span.End()
	span.RecordError(err)
	span.SetStatus(codes.Error, "request failed")

	info, _ := infoOf(ctx)
	params := []any{
		err,
		KV{Key: "request", Value: info.id},
		KV{Key: "url", Value: req.URL},
		KV{Key: "took", Value: time.Since(info.start).String()},
	}
	// cancelled requests are expected once the last page of a plan is known
	if ctx.Err() != nil {
		h.tel.ReportDebug(report_resty_response, params...)
		return
	}
	h.tel.ReportBroken(report_resty_response, params...)
}
