package dtrack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Policy is one server-side policy with its conditions.
type Policy struct {
	UUID             string            `json:"uuid"`
	Name             string            `json:"name"`
	Operator         string            `json:"operator,omitempty"`
	ViolationState   string            `json:"violationState,omitempty"`
	Global           bool              `json:"global,omitempty"`
	PolicyConditions []PolicyCondition `json:"policyConditions,omitempty"`
}

// PolicyCondition is one rule inside a policy. For blocklist use the
// subject is always a package URL.
type PolicyCondition struct {
	UUID     string `json:"uuid,omitempty"`
	Subject  string `json:"subject"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

const (
	SubjectPackageURL = "PACKAGE_URL"
	OperatorMatches   = "MATCHES"
	OperatorIs        = "IS"
)

// ListPolicies fetches every policy on the server.
func (c *Client) ListPolicies(ctx context.Context) ([]Policy, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/api/v1/policy", nil)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("list policies: HTTP %d: %s", resp.Status, snippet(resp.Body))
	}
	var policies []Policy
	if err := json.Unmarshal(resp.Body, &policies); err != nil {
		return nil, fmt.Errorf("decode policy list: %w", err)
	}
	return policies, nil
}

// FindPolicy returns the policy with the exact name, or nil. When no exact
// match exists, a policy whose name contains the wanted name (case folded)
// is accepted, so a manually created policy with minor naming drift is
// still found.
func (c *Client) FindPolicy(ctx context.Context, name string) (*Policy, error) {
	policies, err := c.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	for i := range policies {
		if policies[i].Name == name {
			return &policies[i], nil
		}
	}
	lower := strings.ToLower(name)
	for i := range policies {
		if strings.Contains(strings.ToLower(policies[i].Name), lower) {
			c.Log.Infof("Found similar policy: %s", policies[i].Name)
			return &policies[i], nil
		}
	}
	return nil, nil
}

// EnsurePolicy returns the named policy, creating it when missing. New
// policies are global, fail-on-violation, any-condition.
func (c *Client) EnsurePolicy(ctx context.Context, name string) (*Policy, error) {
	existing, err := c.FindPolicy(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		c.Log.Infof("Policy %q already exists (UUID %s)", existing.Name, existing.UUID)
		return existing, nil
	}

	c.Log.Infof("Creating policy %q", name)
	resp, err := c.doJSON(ctx, http.MethodPut, "/api/v1/policy", Policy{
		Name:           name,
		Operator:       "ANY",
		ViolationState: "FAIL",
		Global:         true,
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK && resp.Status != http.StatusCreated {
		return nil, fmt.Errorf("create policy: HTTP %d: %s", resp.Status, snippet(resp.Body))
	}
	var created Policy
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return nil, fmt.Errorf("decode created policy: %w", err)
	}
	if created.Name == "" {
		created.Name = name
	}
	return &created, nil
}

// AddCondition attaches one condition to the policy.
func (c *Client) AddCondition(ctx context.Context, policyUUID string, cond PolicyCondition) error {
	resp, err := c.doJSON(ctx, http.MethodPut, "/api/v1/policy/"+policyUUID+"/condition", cond)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK && resp.Status != http.StatusCreated {
		return fmt.Errorf("add condition %s: HTTP %d: %s", cond.Value, resp.Status, snippet(resp.Body))
	}
	return nil
}

// DeleteCondition removes one condition from the policy.
func (c *Client) DeleteCondition(ctx context.Context, policyUUID, conditionUUID string) error {
	resp, err := c.doJSON(ctx, http.MethodDelete, "/api/v1/policy/"+policyUUID+"/condition/"+conditionUUID, nil)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK && resp.Status != http.StatusNoContent {
		return fmt.Errorf("delete condition %s: HTTP %d: %s", conditionUUID, resp.Status, snippet(resp.Body))
	}
	return nil
}

// CleanConditions normalizes a policy's conditions: percent-encoded @ signs
// are decoded, duplicates by value are dropped, and MATCHES conditions whose
// value has no regex metacharacters are downgraded to exact IS matches.
func (c *Client) CleanConditions(conditions []PolicyCondition) []PolicyCondition {
	seen := make(map[string]bool, len(conditions))
	var cleaned []PolicyCondition
	for _, cond := range conditions {
		value := strings.ReplaceAll(cond.Value, "%40", "@")
		if value != cond.Value {
			c.Log.Warnf("Fixed URL encoding: %s becomes %s", cond.Value, value)
		}
		if seen[value] {
			c.Log.Warnf("Skipping duplicate: %s", value)
			continue
		}
		seen[value] = true

		op := cond.Operator
		if op == OperatorMatches && !strings.ContainsAny(value, `*.^$+?[](){}|\`) {
			c.Log.Warnf("Changed operator from MATCHES to IS for: %s", value)
			op = OperatorIs
		}
		cleaned = append(cleaned, PolicyCondition{
			Subject:  SubjectPackageURL,
			Operator: op,
			Value:    value,
		})
	}
	return cleaned
}

// ReplaceConditions deletes the policy's current conditions and installs the
// given set. It returns how many deletions and additions succeeded.
func (c *Client) ReplaceConditions(ctx context.Context, policy *Policy, cleaned []PolicyCondition) (deleted, added int) {
	for _, cond := range policy.PolicyConditions {
		if cond.UUID == "" {
			continue
		}
		if err := c.DeleteCondition(ctx, policy.UUID, cond.UUID); err != nil {
			c.Log.Errorf("%v", err)
			continue
		}
		deleted++
	}
	c.Log.Okf("Deleted %d existing conditions", deleted)

	for i, cond := range cleaned {
		if err := c.AddCondition(ctx, policy.UUID, cond); err != nil {
			c.Log.Errorf("%v", err)
			continue
		}
		added++
		if i < 10 || (i+1)%100 == 0 {
			c.Log.Okf("Added condition %d/%d: %s", i+1, len(cleaned), cond.Value)
		}
	}
	return deleted, added
}
