// Package dtrack is a thin client for the Dependency-Track REST API
// covering bill-of-materials upload, policy management, and reanalysis.
package dtrack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reposweep/internal/output"
)

// Client issues authenticated requests against a Dependency-Track server.
// Reads are retried with backoff on 429 and 5xx responses. With DryRun set,
// mutating requests are logged and answered with a synthetic success so the
// surrounding flow can be rehearsed end to end.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Log     *output.Console
	DryRun  bool

	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Sleep and Jitter are seams for tests.
	Sleep  func(time.Duration)
	Jitter func() float64
}

func NewClient(baseURL, apiKey string, log *output.Console) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("dtrack client: base URL required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("dtrack client: API key required")
	}
	return &Client{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		HTTP:        &http.Client{Timeout: 120 * time.Second},
		Log:         log,
		MaxRetries:  4,
		BackoffBase: 300 * time.Millisecond,
		BackoffCap:  5 * time.Second,
	}, nil
}

// response is the reduced view the callers need.
type response struct {
	Status int
	Body   []byte
}

// doJSON sends one request with a JSON body (nil means no body). Mutating
// methods are suppressed in dry-run mode.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any) (response, error) {
	if c.DryRun && method != http.MethodGet {
		c.Log.Infof("DRY RUN: %s %s", method, c.BaseURL+path)
		if payload != nil {
			if b, err := json.Marshal(payload); err == nil {
				c.Log.Infof("DRY RUN: payload %s", b)
			}
		}
		return response{Status: http.StatusOK, Body: []byte(`{}`)}, nil
	}

	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return response{}, err
		}
		body = b
	}

	sleep := c.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	jitter := c.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}

	attempt := 0
	for {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
		if err != nil {
			return response{}, err
		}
		req.Header.Set("X-Api-Key", c.APIKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return response{}, fmt.Errorf("%s %s: %w", method, path, err)
		}
		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return response{}, fmt.Errorf("%s %s: %w", method, path, readErr)
		}

		if !retryableStatus(resp.StatusCode) {
			return response{Status: resp.StatusCode, Body: respBody}, nil
		}
		attempt++
		if attempt > c.MaxRetries {
			return response{Status: resp.StatusCode, Body: respBody}, nil
		}
		wait := retryDelay(resp.Header.Get("Retry-After"), attempt, c.BackoffBase, c.BackoffCap, jitter())
		c.Log.Warnf("%s %s HTTP %d; retrying in %.2fs (attempt %d/%d)",
			method, path, resp.StatusCode, wait.Seconds(), attempt, c.MaxRetries)
		sleep(wait)
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}

func retryDelay(retryAfter string, attempt int, base, max time.Duration, jitter float64) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.ParseFloat(retryAfter, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	shift := uint(attempt - 1)
	if shift > 30 {
		shift = 30
	}
	d := base<<shift + time.Duration(jitter*float64(base))
	if d > max {
		d = max
	}
	return d
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
