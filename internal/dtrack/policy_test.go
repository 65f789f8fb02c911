package dtrack

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reposweep/internal/output"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "test-key", output.NewConsole(&bytes.Buffer{}, &bytes.Buffer{}))
	if err != nil {
		t.Fatal(err)
	}
	c.Sleep = func(time.Duration) {}
	c.Jitter = func() float64 { return 0 }
	return c
}

func TestFindPolicy(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/api/v1/policy" || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode([]Policy{
			{UUID: "u1", Name: "Other Policy"},
			{UUID: "u2", Name: "Supply Chain Blocklist"},
		})
	}))

	p, err := c.FindPolicy(context.Background(), "Supply Chain Blocklist")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.UUID != "u2" {
		t.Errorf("policy = %+v", p)
	}

	// Case-folded substring match catches naming drift.
	p, err = c.FindPolicy(context.Background(), "blocklist")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.UUID != "u2" {
		t.Errorf("similar policy = %+v", p)
	}

	p, err = c.FindPolicy(context.Background(), "absent")
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Errorf("expected nil, got %+v", p)
	}
}

func TestEnsurePolicy_CreatesWhenMissing(t *testing.T) {
	var created Policy
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode([]Policy{})
		case r.Method == http.MethodPut:
			if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			created.UUID = "new-uuid"
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(created)
		}
	}))

	p, err := c.EnsurePolicy(context.Background(), "Supply Chain Blocklist")
	if err != nil {
		t.Fatal(err)
	}
	if p.UUID != "new-uuid" {
		t.Errorf("policy = %+v", p)
	}
	if created.Operator != "ANY" || created.ViolationState != "FAIL" || !created.Global {
		t.Errorf("create payload = %+v", created)
	}
}

func TestAddAndDeleteCondition(t *testing.T) {
	var gotPath, gotMethod string
	var gotCond PolicyCondition
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		if r.Method == http.MethodPut {
			_ = json.NewDecoder(r.Body).Decode(&gotCond)
		}
		w.WriteHeader(http.StatusOK)
	}))

	cond := PolicyCondition{Subject: SubjectPackageURL, Operator: OperatorMatches, Value: `pkg:npm/chalk@5\.6\..*`}
	if err := c.AddCondition(context.Background(), "pol-1", cond); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/v1/policy/pol-1/condition" || gotMethod != http.MethodPut {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if gotCond != cond {
		t.Errorf("condition = %+v", gotCond)
	}

	if err := c.DeleteCondition(context.Background(), "pol-1", "cond-9"); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/v1/policy/pol-1/condition/cond-9" || gotMethod != http.MethodDelete {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
}

func TestCleanConditions(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	cleaned := c.CleanConditions([]PolicyCondition{
		{Subject: SubjectPackageURL, Operator: OperatorMatches, Value: "pkg:npm/left-pad%401.3.0"},
		{Subject: SubjectPackageURL, Operator: OperatorMatches, Value: "pkg:npm/left-pad@1.3.0"},
		{Subject: SubjectPackageURL, Operator: OperatorMatches, Value: `pkg:npm/chalk@5\.6\..*`},
		{Subject: SubjectPackageURL, Operator: OperatorMatches, Value: "pkg:npm/plain-value"},
	})
	if len(cleaned) != 3 {
		t.Fatalf("cleaned = %d, want 3: %+v", len(cleaned), cleaned)
	}
	// The decoded %40 value dedupes against its literal twin. Values with
	// regex metacharacters keep MATCHES; the decoded PURL contains dots, so
	// it stays MATCHES too.
	if cleaned[0].Value != "pkg:npm/left-pad@1.3.0" || cleaned[0].Operator != OperatorMatches {
		t.Errorf("cleaned[0] = %+v", cleaned[0])
	}
	if cleaned[1].Operator != OperatorMatches {
		t.Errorf("regex condition operator = %q", cleaned[1].Operator)
	}
	if cleaned[2].Operator != OperatorIs {
		t.Errorf("plain condition operator = %q, want IS", cleaned[2].Operator)
	}
}

func TestDryRunSuppressesMutations(t *testing.T) {
	mutations := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			mutations++
		}
		_ = json.NewEncoder(w).Encode([]Policy{})
	}))
	c.DryRun = true

	if _, err := c.EnsurePolicy(context.Background(), "Supply Chain Blocklist"); err != nil {
		t.Fatal(err)
	}
	if err := c.AddCondition(context.Background(), "pol-1", PolicyCondition{Value: "pkg:npm/x@1"}); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteCondition(context.Background(), "pol-1", "cond-1"); err != nil {
		t.Fatal(err)
	}
	if mutations != 0 {
		t.Errorf("server saw %d mutating requests in dry-run", mutations)
	}
}
