package connector

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/job-aggregator/internal/listing"
	"github.com/spigell/job-aggregator/internal/utils"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
	userAgent       = "spigell/job-aggregator"

	maxBodySize    = 10 << 20
	maxErrorBody   = 512
	defaultTimeout = 15 * time.Second
)

// HTTPOptions are the transport settings shared by every connector config.
type HTTPOptions struct {
	// Timeout bounds a single HTTP exchange. The aggregator deadline usually fires first.
	Timeout time.Duration `mapstructure:"timeout"`
	// Rate is the number of requests per second allowed against the provider. Zero disables throttling.
	Rate      float64 `mapstructure:"rate"`
	Burst     int     `mapstructure:"burst"`
	UserAgent string  `mapstructure:"user-agent"`
}

// HTTPClient performs provider requests: sets headers, throttles, decodes gzip and JSON,
// and turns non-2xx answers into StatusError.
type HTTPClient struct {
	source  listing.Source
	logger  *zap.Logger
	limiter *rate.Limiter
	header  http.Header

	HTTPClient *http.Client
	UserAgent  string
}

func NewHTTPClient(source listing.Source, opts HTTPOptions, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = userAgent
	}

	c := &HTTPClient{
		source: source,
		logger: logger.With(zap.String("source", string(source))),
		header: make(http.Header),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		UserAgent: ua,
	}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	return c
}

// SetHeader adds a header sent with every request, e.g. provider authorization.
func (c *HTTPClient) SetHeader(key, value string) {
	c.header.Set(key, value)
}

// GetJSON makes a GET request and decodes the JSON answer into target.
func (c *HTTPClient) GetJSON(ctx context.Context, endpoint string, q url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Accept", contentType)

	data, err := c.Do(req)
	if err != nil {
		return err
	}
	return decodeJSON(data, target)
}

// PostJSON sends body as JSON and decodes the JSON answer into target.
func (c *HTTPClient) PostJSON(ctx context.Context, endpoint string, body, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)

	data, err := c.Do(req)
	if err != nil {
		return err
	}
	return decodeJSON(data, target)
}

// Get returns the raw body of a GET request. Used for feeds.
func (c *HTTPClient) Get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do throttles, sends the request and returns the decoded body of a 2xx answer.
func (c *HTTPClient) Do(req *http.Request) ([]byte, error) {
	if err := c.wait(req.Context()); err != nil {
		return nil, err
	}

	c.setHeaders(req)

	// Provider keys may live in the path or query, so only the host is logged.
	c.logger.Debug("make request", zap.String("method", req.Method), zap.String("host", req.URL.Host))
	started := time.Now()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("got response",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: utils.TruncateForLog(string(data), maxErrorBody)}
	}

	return data, nil
}

func (c *HTTPClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The limiter refuses waits that would outlive the deadline.
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	for key, values := range c.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)
}

func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	return io.ReadAll(io.LimitReader(reader, maxBodySize))
}

func decodeJSON(data []byte, target any) error {
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
