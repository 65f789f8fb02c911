// Package engine orchestrates a sync run: planning, the bounded worker
// pool, per-repository pipelines, the transient second pass, and the final
// summary document.
package engine

import "reposweep/internal/gitsync"

// OperationResult is one repository's row in the run summary. A result
// exists for every listed repository, including ones that never dispatched.
type OperationResult struct {
	Repo      string   `json:"repo"`
	Sync      string   `json:"sync"`
	SyncClass string   `json:"sync_class,omitempty"`
	SBOM      string   `json:"sbom,omitempty"`
	Secrets   string   `json:"secrets,omitempty"`
	Errors    []string `json:"errors"`
}

// Failed reports whether the repository ended the run with errors.
func (r OperationResult) Failed() bool {
	return len(r.Errors) > 0
}

// Transient reports whether the failure class qualifies for the second pass.
func (r OperationResult) Transient() bool {
	return r.Failed() && gitsync.AccessClass(r.SyncClass).Transient()
}

// DisabledResult records a repository excluded because the host reports it
// disabled.
func DisabledResult(name string) OperationResult {
	return OperationResult{Repo: name, Sync: "disabled", Errors: []string{}}
}

// PlanSkipResult records a repository excluded by the sync plan.
func PlanSkipResult(name string, plan gitsync.Plan) OperationResult {
	return OperationResult{Repo: name, Sync: plan.String(), Errors: []string{}}
}
