// Package ghub lists repositories from a GitHub organization, the alternate
// lister provider for hosts that mirror their Azure DevOps projects.
package ghub

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"

	"reposweep/internal/hosting"
)

// BasicAuthHeader builds the Authorization header value git needs for
// token-authenticated HTTPS transfers against GitHub remotes.
func BasicAuthHeader(token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("x-access-token:"+token))
}

// Lister enumerates an organization's repositories via the GitHub API.
// Archived and disabled repositories map to the Disabled descriptor flag.
type Lister struct {
	Client *github.Client
	Org    string
}

func NewLister(ctx context.Context, token, org string) (*Lister, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github lister: ctx is nil")
	}
	if org == "" {
		return nil, fmt.Errorf("github lister: org required")
	}

	transport := http.DefaultTransport
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	tc := &http.Client{Transport: transport}

	return &Lister{
		Client: github.NewClient(tc),
		Org:    org,
	}, nil
}

func (l *Lister) List(ctx context.Context) ([]hosting.Repository, error) {
	if l == nil || l.Client == nil {
		return nil, fmt.Errorf("github lister is not initialized")
	}

	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var repos []hosting.Repository
	for {
		page, resp, err := l.Client.Repositories.ListByOrg(ctx, l.Org, opts)
		if err != nil {
			return nil, fmt.Errorf("list %s repositories: %w", l.Org, err)
		}
		for _, r := range page {
			if r.GetName() == "" {
				continue
			}
			repos = append(repos, hosting.Repository{
				Name:      r.GetName(),
				RemoteURL: r.GetCloneURL(),
				SSHURL:    r.GetSSHURL(),
				Disabled:  r.GetArchived() || r.GetDisabled(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}
