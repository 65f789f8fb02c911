// Package azdo lists repositories from an Azure DevOps project over REST.
package azdo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"reposweep/internal/hosting"
	"reposweep/internal/output"
)

const apiVersion = "7.1-preview.1"

// Client talks to the Azure DevOps git REST API. Requests are retried with
// backoff on 429 and 5xx responses; exhausting the ceiling is fatal to the
// run, so List returns an error rather than degrading.
type Client struct {
	OrgURL  string
	Project string
	HTTP    *http.Client

	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Log         *output.Console

	// Sleep and Jitter are seams for tests.
	Sleep  func(time.Duration)
	Jitter func() float64
}

type options struct {
	pat    string
	bearer string
}

type Option func(*options)

// WithPAT authenticates with a personal access token via Basic auth.
func WithPAT(pat string) Option {
	return func(o *options) { o.pat = pat }
}

// WithBearerToken authenticates with an Azure AD access token.
func WithBearerToken(token string) Option {
	return func(o *options) { o.bearer = token }
}

// patTransport injects the Basic PAT Authorization header.
type patTransport struct {
	base   http.RoundTripper
	header string
}

func (t *patTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", t.header)
	return t.base.RoundTrip(clone)
}

func NewClient(orgURL, project string, log *output.Console, opts ...Option) (*Client, error) {
	orgURL = strings.TrimRight(strings.TrimSpace(orgURL), "/")
	if orgURL == "" {
		return nil, fmt.Errorf("azdo client: org URL required")
	}
	if strings.TrimSpace(project) == "" {
		return nil, fmt.Errorf("azdo client: project required")
	}

	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}

	transport := http.DefaultTransport
	switch {
	case o.bearer != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: o.bearer})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	case o.pat != "":
		transport = &patTransport{base: transport, header: BasicAuthHeader(o.pat)}
	}

	return &Client{
		OrgURL:      orgURL,
		Project:     project,
		HTTP:        &http.Client{Transport: transport, Timeout: 60 * time.Second},
		MaxRetries:  4,
		BackoffBase: 300 * time.Millisecond,
		BackoffCap:  5 * time.Second,
		Log:         log,
	}, nil
}

// repositoryRecord is the wire shape of one repository entry.
type repositoryRecord struct {
	Name       string `json:"name"`
	RemoteURL  string `json:"remoteUrl"`
	WebURL     string `json:"webUrl"`
	SSHURL     string `json:"sshUrl"`
	IsDisabled bool   `json:"isDisabled"`
	Status     string `json:"status"`
}

type repositoryList struct {
	Value []repositoryRecord `json:"value"`
}

// List enumerates the project's repositories. Repositories whose API record
// lacks a remote URL get one built from the org/project naming convention.
func (c *Client) List(ctx context.Context) ([]hosting.Repository, error) {
	url := fmt.Sprintf("%s/%s/_apis/git/repositories?api-version=%s", c.OrgURL, c.Project, apiVersion)

	body, err := c.getWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}

	var list repositoryList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode repository list: %w", err)
	}

	var repos []hosting.Repository
	for _, rec := range list.Value {
		if rec.Name == "" {
			continue
		}
		remote := rec.RemoteURL
		if remote == "" {
			remote = rec.WebURL
		}
		if remote == "" {
			remote = HTTPSRemoteURL(c.OrgURL, c.Project, rec.Name)
		}
		ssh := rec.SSHURL
		if ssh == "" {
			ssh = SSHRemoteURL(c.OrgURL, c.Project, rec.Name)
		}
		disabled := rec.IsDisabled || strings.EqualFold(rec.Status, "disabled")
		repos = append(repos, hosting.Repository{
			Name:      rec.Name,
			RemoteURL: remote,
			SSHURL:    ssh,
			Disabled:  disabled,
		})
	}
	return repos, nil
}

func (c *Client) getWithRetry(ctx context.Context, url string) ([]byte, error) {
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
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, fmt.Errorf("list repositories: %w", err)
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			if readErr != nil {
				return nil, fmt.Errorf("read repository list: %w", readErr)
			}
			return body, nil
		}

		if !retryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("failed to list repositories: HTTP %d: %s", resp.StatusCode, snippet(body))
		}
		attempt++
		if attempt > c.MaxRetries {
			return nil, fmt.Errorf("failed to list repositories after retries: HTTP %d: %s", resp.StatusCode, snippet(body))
		}

		wait := retryDelay(resp.Header.Get("Retry-After"), attempt, c.BackoffBase, c.BackoffCap, jitter())
		c.Log.Warnf("list repositories HTTP %d; retrying in %.2fs (attempt %d/%d)",
			resp.StatusCode, wait.Seconds(), attempt, c.MaxRetries)
		sleep(wait)
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}

// retryDelay honors a Retry-After header when present, else falls back to
// capped exponential backoff with additive jitter.
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
