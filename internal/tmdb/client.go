// Package tmdb is a minimal client for The Movie Database v3 API.
package tmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tmdbetl/internal/metrics"
	pjson "tmdbetl/internal/parser/json"
)

// DefaultBaseURL is the public v3 API root.
const DefaultBaseURL = "https://api.themoviedb.org/3"

// maxErrorBody caps how much of a non-2xx body is quoted in the error.
const maxErrorBody = 512

// Options configures a Client.
type Options struct {
	// BaseURL defaults to DefaultBaseURL. A trailing slash is trimmed.
	BaseURL string
	// APIKey is the v4 read access token sent as a bearer credential.
	APIKey string
	// Timeout bounds each request; ignored when HTTPClient is set.
	Timeout time.Duration
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
	// JobName labels the HTTP metrics.
	JobName string
}

// Client issues authenticated GET requests. It is safe for concurrent use.
type Client struct {
	base string
	key  string
	job  string
	http *http.Client
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("tmdb: GET %s: status %d", e.Endpoint, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// NewClient returns a Client. An empty APIKey is an error.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("tmdb: api key is required")
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: base, key: opts.APIKey, job: opts.JobName, http: hc}, nil
}

// Fetch performs GET {base}{endpoint} and decodes the JSON object body.
//
// There is no retry. A transport error, a non-2xx status (as *StatusError)
// or a body that is not a JSON object fails the call.
func (c *Client) Fetch(ctx context.Context, endpoint string) (*pjson.Object, error) {
	start := time.Now()
	status, n, obj, err := c.do(ctx, endpoint)
	metrics.RecordHTTP(c.job, status, err, time.Since(start), n)
	return obj, err
}

func (c *Client) do(ctx context.Context, endpoint string) (int, int64, *pjson.Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+endpoint, nil)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("tmdb: GET %s: %w", endpoint, err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("tmdb: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body := &countingReader{r: resp.Body}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
		_, _ = io.Copy(io.Discard, body)
		return resp.StatusCode, body.n, nil, &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	obj, err := pjson.DecodeObject(body)
	if err != nil {
		return resp.StatusCode, body.n, nil, fmt.Errorf("tmdb: GET %s: decode: %w", endpoint, err)
	}
	return resp.StatusCode, body.n, obj, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
