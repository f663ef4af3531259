package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
)

// Client is a retrying JSON HTTP client shared by the sponsor relay, the
// bundler, and the quote services. Retries cover transport failures, 429s
// and 5xx responses with exponential backoff; everything else maps straight
// to a coded error.
type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
}

func New(timeout time.Duration, retries int) *Client {
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  "gasless-cli/1.0",
	}
}

func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, clierr.Wrap(clierr.CodeUnavailable, "request cancelled", ctx.Err())
			case <-time.After(backoff(attempt)):
			}
		}

		headers, retry, err := c.attempt(ctx, req, out)
		if err == nil {
			return headers, nil
		}
		lastErr = err
		if !retry || attempt == c.retries {
			return headers, err
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, clierr.New(clierr.CodeUnavailable, "request failed")
}

// attempt performs a single request. The retry return says whether the
// failure class is worth another round.
func (c *Client) attempt(ctx context.Context, req *http.Request, out any) (http.Header, bool, error) {
	cloneReq := req.Clone(ctx)
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, false, clierr.Wrap(clierr.CodeInternal, "clone request body", err)
		}
		cloneReq.Body = body
	}

	resp, err := c.httpClient.Do(cloneReq)
	if err != nil {
		return nil, true, mapNetError(err)
	}

	buf, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp.Header, false, clierr.Wrap(clierr.CodeUnavailable, "read service response", readErr)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return resp.Header, true, clierr.New(clierr.CodeRateLimited, "service rate limited the request")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resp.Header, false, clierr.New(clierr.CodeAuth, "service rejected the credentials")
	case resp.StatusCode >= http.StatusInternalServerError:
		return resp.Header, true, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("service unavailable (status %d)", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return resp.Header, false, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("service returned unexpected status %d", resp.StatusCode))
	}

	if out == nil {
		return resp.Header, false, nil
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return resp.Header, false, clierr.New(clierr.CodeUnavailable, "service returned an empty response")
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return resp.Header, false, clierr.Wrap(clierr.CodeUnavailable, "decode service JSON", err)
	}
	return resp.Header, false, nil
}

// DoBodyJSON builds and sends a JSON request in one call. The body is kept
// re-readable so retries can replay it.
func DoBodyJSON(ctx context.Context, c *Client, method, url string, body []byte, headers map[string]string, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, out)
}

func mapNetError(err error) error {
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeUnavailable, "service timeout", err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "service request failed", err)
}

func backoff(attempt int) time.Duration {
	base := 120 * time.Millisecond
	d := base * time.Duration(1<<uint(attempt-1))
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	jitter := time.Duration(rand.Intn(75)) * time.Millisecond
	return d + jitter
}
