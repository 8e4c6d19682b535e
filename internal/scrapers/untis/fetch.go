package untis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"subplan-backend/internal/components/assert"
	"subplan-backend/internal/components/telemetry"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// PageResponse is a fetched page. Body is nil when NotModified is set, otherwise the
// caller must close it.
type PageResponse struct {
	Body        io.ReadCloser
	ETag        string
	NotModified bool
}

// Fetcher retrieves single pages of a plan.
//
// note: fault injection point
type Fetcher interface {
	// FetchPage fetches page number `page`. A non-empty etag is sent as a validator, a
	// matching upstream answers with NotModified.
	FetchPage(ctx context.Context, page int, etag string) (PageResponse, error)
}

type HTTPFetcherOptions struct {
	// URLTemplate contains a single integer verb for the page number, like
	// "https://example.org/monitor/subst_%03d.htm".
	URLTemplate string
	// Timeout bounds a single request including reading its body.
	Timeout time.Duration
	// RateLimit is the maximum number of requests per second, 0 disables limiting.
	RateLimit        float64
	CloudflareBypass bool
	UserAgent        string
}

type HTTPFetcher struct {
	http        *resty.Client
	urlTemplate string
}

func NewHTTPFetcher(opts HTTPFetcherOptions, tel telemetry.API) *HTTPFetcher {
	assert.NotNil(tel, "tel")
	assert.NotEmptyStr(opts.URLTemplate, "url template")

	client := resty.New()
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	}
	client.SetHeader("user-agent", userAgent)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	if opts.RateLimit > 0 {
		// burst >= 1 so a single request is never rejected outright
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(opts.RateLimit)))
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, tel)

	return &HTTPFetcher{
		http:        client,
		urlTemplate: opts.URLTemplate,
	}
}

func (f *HTTPFetcher) URL(page int) string {
	return fmt.Sprintf(f.urlTemplate, page)
}

func (f *HTTPFetcher) FetchPage(ctx context.Context, page int, etag string) (PageResponse, error) {
	req := f.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if etag != "" {
		req.SetHeader("If-None-Match", etag)
	}

	res, err := req.Get(f.URL(page))
	if err != nil {
		return PageResponse{}, fmt.Errorf("fetch page %d: %w", page, err)
	}

	body := res.RawBody()
	switch res.StatusCode() {
	case http.StatusOK:
		return PageResponse{
			Body: body,
			ETag: res.Header().Get("ETag"),
		}, nil
	case http.StatusNotModified:
		if body != nil {
			body.Close()
		}
		return PageResponse{NotModified: true, ETag: etag}, nil
	default:
		if body != nil {
			body.Close()
		}
		return PageResponse{}, fmt.Errorf("%w: page %d: %s", ErrUnexpectedStatus, page, res.Status())
	}
}
