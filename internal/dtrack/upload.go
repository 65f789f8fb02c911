package dtrack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// projectNameSanitizer keeps names within the character set the server
// accepts without escaping surprises.
var projectNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_.:/+ -]`)

// DeriveProject decides the project name and version for an SBOM file.
// CycloneDX JSON documents that carry metadata.component win; otherwise the
// filename stem names the project and defaultVersion versions it.
func DeriveProject(path, defaultVersion string) (name, version string) {
	name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	version = defaultVersion

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if raw, err := os.ReadFile(path); err == nil {
			var doc struct {
				Metadata struct {
					Component struct {
						Name    string `json:"name"`
						Version string `json:"version"`
					} `json:"component"`
				} `json:"metadata"`
			}
			if json.Unmarshal(raw, &doc) == nil {
				if n := strings.TrimSpace(doc.Metadata.Component.Name); n != "" {
					name = n
				}
				if v := strings.TrimSpace(doc.Metadata.Component.Version); v != "" {
					version = v
				}
			}
		}
	}

	name = strings.TrimSpace(projectNameSanitizer.ReplaceAllString(name, "_"))
	version = strings.TrimSpace(projectNameSanitizer.ReplaceAllString(version, "_"))
	if version == "" {
		version = defaultVersion
	}
	return name, version
}

// LookupProject returns the project's UUID, or "" when it does not exist.
func (c *Client) LookupProject(ctx context.Context, name, version string) (string, error) {
	path := "/api/v1/project/lookup?" + url.Values{
		"name":    {name},
		"version": {version},
	}.Encode()
	resp, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	switch resp.Status {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", nil
	default:
		c.Log.Warnf("project lookup HTTP %d: %s", resp.Status, snippet(resp.Body))
		return "", nil
	}

	// The endpoint returns a single project; some deployments return a list.
	var one struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(resp.Body, &one); err == nil && one.UUID != "" {
		return one.UUID, nil
	}
	var many []struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(resp.Body, &many); err == nil && len(many) > 0 {
		return many[0].UUID, nil
	}
	return "", nil
}

// EnsureProject returns the project's UUID, creating the project when
// autoCreate allows it. An empty UUID with nil error means the project is
// missing and creation was not permitted.
func (c *Client) EnsureProject(ctx context.Context, name, version string, autoCreate bool) (string, error) {
	uuid, err := c.LookupProject(ctx, name, version)
	if err != nil || uuid != "" {
		return uuid, err
	}
	if !autoCreate {
		return "", nil
	}
	resp, err := c.doJSON(ctx, http.MethodPut, "/api/v1/project", map[string]string{
		"name":    name,
		"version": version,
	})
	if err != nil {
		return "", err
	}
	if resp.Status != http.StatusOK && resp.Status != http.StatusCreated {
		c.Log.Warnf("project create HTTP %d: %s", resp.Status, snippet(resp.Body))
		return "", nil
	}
	var created struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return "", fmt.Errorf("decode created project: %w", err)
	}
	return created.UUID, nil
}

// UploadBOM posts one SBOM file as multipart form data. It returns the
// server's processing token, which may be empty on older servers.
func (c *Client) UploadBOM(ctx context.Context, path, projectName, projectVersion string, autoCreate bool) (string, error) {
	if c.DryRun {
		c.Log.Infof("DRY RUN: POST %s/api/v1/bom (%s as %s@%s)", c.BaseURL, filepath.Base(path), projectName, projectVersion)
		return "", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("bom", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	_ = writer.WriteField("projectName", projectName)
	_ = writer.WriteField("projectVersion", projectVersion)
	if autoCreate {
		_ = writer.WriteField("autoCreate", "true")
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/bom", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Api-Key", c.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(body))
	}
	var accepted struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(body, &accepted)
	return accepted.Token, nil
}

// WaitForProcessing polls the upload token until the server finishes
// ingesting or the timeout passes. An empty token counts as processed. The
// endpoint historically returned either {"processing": bool} or a bare
// boolean body; both shapes are accepted.
func (c *Client) WaitForProcessing(ctx context.Context, token string, timeout time.Duration) bool {
	if token == "" {
		return true
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	deadline := time.Now().Add(timeout)
	attempt := 0
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}
		resp, err := c.doJSON(ctx, http.MethodGet, "/api/v1/bom/token/"+token, nil)
		if err == nil && resp.Status == http.StatusOK {
			if processing, ok := parseProcessing(resp.Body); ok && !processing {
				return true
			}
		}
		attempt++
		backoff := time.Second << uint(min(attempt, 6))
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
		sleep(backoff)
	}
	return false
}

func parseProcessing(body []byte) (processing, ok bool) {
	var wrapped struct {
		Processing *bool `json:"processing"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Processing != nil {
		return *wrapped.Processing, true
	}
	var bare bool
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, true
	}
	switch strings.ToLower(strings.TrimSpace(string(body))) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// DiscoverSBOMs walks root for CycloneDX documents (.json and .xml).
func DiscoverSBOMs(root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".xml":
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// UploadResult is one NDJSON line of the bulk upload report.
type UploadResult struct {
	SBOM           string `json:"sbom"`
	ProjectName    string `json:"projectName"`
	ProjectVersion string `json:"projectVersion"`
	ProjectUUID    string `json:"projectUuid,omitempty"`
	Accepted       bool   `json:"accepted"`
	Message        string `json:"message"`
	Token          string `json:"token,omitempty"`
	Processed      *bool  `json:"processed"`
}

// Uploader pushes a directory of SBOMs through a bounded worker pool.
type Uploader struct {
	Client         *Client
	Workers        int
	DefaultVersion string
	AutoCreate     bool
	Wait           bool
	WaitTimeout    time.Duration

	// Out receives one JSON line per SBOM as uploads complete.
	Out io.Writer

	mu sync.Mutex
}

// Run uploads every discovered SBOM and returns the number of failures.
func (u *Uploader) Run(ctx context.Context, paths []string) int {
	workers := u.Workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	failures := 0

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			res := u.uploadOne(ctx, path)
			u.mu.Lock()
			if !res.Accepted {
				failures++
			}
			if u.Out != nil {
				if line, err := json.Marshal(res); err == nil {
					fmt.Fprintln(u.Out, string(line))
				}
			}
			u.mu.Unlock()
		}(path)
	}
	wg.Wait()
	return failures
}

func (u *Uploader) uploadOne(ctx context.Context, path string) UploadResult {
	name, version := DeriveProject(path, u.DefaultVersion)
	res := UploadResult{SBOM: path, ProjectName: name, ProjectVersion: version}

	uuid, err := u.Client.EnsureProject(ctx, name, version, u.AutoCreate)
	if err != nil {
		res.Message = err.Error()
		return res
	}
	if uuid == "" && !u.Client.DryRun {
		res.Message = "project missing and autoCreate disabled"
		return res
	}
	res.ProjectUUID = uuid

	token, err := u.Client.UploadBOM(ctx, path, name, version, u.AutoCreate)
	if err != nil {
		res.Message = err.Error()
		return res
	}
	res.Accepted = true
	res.Message = "accepted"
	res.Token = token

	if u.Wait {
		timeout := u.WaitTimeout
		if timeout <= 0 {
			timeout = 10 * time.Minute
		}
		processed := u.Client.WaitForProcessing(ctx, token, timeout)
		res.Processed = &processed
	}
	return res
}
