package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"hbk-go/internal/hbk"
)

// Options configures an HTTPTransport.
type Options struct {
	BaseURL      string
	Timeout      time.Duration // per attempt, until response headers; zero means none
	RetryMax     int           // extra attempts for GET requests
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       hbk.Logger
}

// HTTPTransport sends backend calls over HTTP. GET requests are retried on
// connection errors and 5xx responses; every other method is sent once.
// After the last attempt the final response is returned as-is so callers
// can judge the status themselves.
type HTTPTransport struct {
	base   string
	client *retryablehttp.Client
}

type noRetryKey struct{}

// New creates an HTTPTransport for the backend at opts.BaseURL.
func New(opts Options) (*HTTPTransport, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", opts.BaseURL)
	}

	c := retryablehttp.NewClient()
	c.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		c.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		c.RetryWaitMax = opts.RetryWaitMax
	}
	// The body of a download may stream for much longer than any sensible
	// request timeout, so only the wait for headers is bounded.
	if ht, ok := c.HTTPClient.Transport.(*http.Transport); ok {
		ht.ResponseHeaderTimeout = opts.Timeout
	}
	c.CheckRetry = checkRetry
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.Logger != nil {
		// hbk.Logger has the same shape as retryablehttp.LeveledLogger.
		c.Logger = retryablehttp.LeveledLogger(opts.Logger)
	} else {
		c.Logger = nil
	}

	return &HTTPTransport{
		base:   strings.TrimRight(u.String(), "/"),
		client: c,
	}, nil
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Value(noRetryKey{}) != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Do implements hbk.Transport. path must already be escaped.
func (t *HTTPTransport) Do(ctx context.Context, method, path string, body []byte) (*hbk.Response, error) {
	if method != http.MethodGet {
		ctx = context.WithValue(ctx, noRetryKey{}, true)
	}

	var raw interface{}
	if body != nil {
		raw = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, t.base+path, raw)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	return &hbk.Response{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Body:       resp.Body,
	}, nil
}

// statusText strips the numeric code from resp.Status ("404 Not Found").
func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

var _ hbk.Transport = (*HTTPTransport)(nil)
