package dtrack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Project is the reduced project record the reanalysis flow needs.
type Project struct {
	UUID    string `json:"uuid"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ListProjects fetches projects, optionally filtered to names containing
// pattern.
func (c *Client) ListProjects(ctx context.Context, pattern string) ([]Project, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/api/v1/project", nil)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("list projects: HTTP %d: %s", resp.Status, snippet(resp.Body))
	}
	var projects []Project
	if err := json.Unmarshal(resp.Body, &projects); err != nil {
		return nil, fmt.Errorf("decode project list: %w", err)
	}
	if pattern == "" {
		return projects, nil
	}
	var filtered []Project
	for _, p := range projects {
		if strings.Contains(p.Name, pattern) {
			filtered = append(filtered, p)
		}
	}
	c.Log.Infof("Filtered to %d projects matching pattern %q", len(filtered), pattern)
	return filtered, nil
}

// TriggerReanalysis asks the server to re-evaluate a project's findings
// against current policy. It returns the server's progress token.
func (c *Client) TriggerReanalysis(ctx context.Context, projectUUID string) (string, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/api/v1/finding/project/"+projectUUID+"/analyze", nil)
	if err != nil {
		return "", err
	}
	if resp.Status != http.StatusOK {
		return "", fmt.Errorf("trigger analysis: HTTP %d: %s", resp.Status, snippet(resp.Body))
	}
	var accepted struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(resp.Body, &accepted)
	return accepted.Token, nil
}

// RefreshMetrics asks the server to recompute a project's metrics. The
// endpoint is a GET with side effects, so dry-run suppresses it explicitly.
func (c *Client) RefreshMetrics(ctx context.Context, projectUUID string) error {
	path := "/api/v1/metrics/project/" + projectUUID + "/refresh"
	if c.DryRun {
		c.Log.Infof("DRY RUN: GET %s%s", c.BaseURL, path)
		return nil
	}
	resp, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("refresh metrics: HTTP %d: %s", resp.Status, snippet(resp.Body))
	}
	return nil
}
