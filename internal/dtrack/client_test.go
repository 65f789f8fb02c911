package dtrack

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"reposweep/internal/output"
)

func TestNewClient_Validation(t *testing.T) {
	log := output.NewConsole(&bytes.Buffer{}, &bytes.Buffer{})
	if _, err := NewClient("", "key", log); err == nil {
		t.Error("empty base URL must be rejected")
	}
	if _, err := NewClient("https://dt.internal", "", log); err == nil {
		t.Error("empty API key must be rejected")
	}
	c, err := NewClient("https://dt.internal/", "key", log)
	if err != nil {
		t.Fatal(err)
	}
	if c.BaseURL != "https://dt.internal" {
		t.Errorf("base URL = %q, trailing slash must be stripped", c.BaseURL)
	}
}

func TestClient_RetriesThrottling(t *testing.T) {
	attempts := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode([]Project{{UUID: "p-1", Name: "api"}})
	}))

	projects, err := c.ListProjects(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(projects) != 1 || projects[0].Name != "api" {
		t.Errorf("projects = %+v", projects)
	}
}

func TestClient_ExhaustedRetriesSurfaceStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	c.MaxRetries = 1

	if _, err := c.ListProjects(context.Background(), ""); err == nil {
		t.Error("exhausted retries must surface as an error")
	}
}
