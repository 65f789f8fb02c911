package engine

import (
	"sync"

	"reposweep/internal/output"
)

// Aggregator collects per-repository results and emits the running progress
// line. It is safe for concurrent use by the scheduler's workers.
type Aggregator struct {
	mu      sync.Mutex
	total   int
	done    int
	results []OperationResult
	byRepo  map[string]int
	log     *output.Console
}

func NewAggregator(total int, log *output.Console) *Aggregator {
	return &Aggregator{
		total:  total,
		byRepo: make(map[string]int),
		log:    log,
	}
}

// Add records a synthetic result (skips and exclusions) without advancing
// the progress counter: synthetic results never dispatched to the pool.
func (a *Aggregator) Add(res OperationResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store(res)
}

// Complete records a pipeline result and logs progress.
func (a *Aggregator) Complete(res OperationResult) {
	a.mu.Lock()
	a.store(res)
	a.done++
	done, failures := a.done, a.failuresLocked()
	a.mu.Unlock()

	a.log.Infof("Progress: %d/%d done, failures %d", done, a.total, failures)
}

// Replace overwrites a repository's earlier result with its second-pass
// outcome. An unknown repository is stored as new.
func (a *Aggregator) Replace(res OperationResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store(res)
}

func (a *Aggregator) store(res OperationResult) {
	if i, ok := a.byRepo[res.Repo]; ok {
		a.results[i] = res
		return
	}
	a.byRepo[res.Repo] = len(a.results)
	a.results = append(a.results, res)
}

func (a *Aggregator) failuresLocked() int {
	n := 0
	for _, r := range a.results {
		if r.Failed() {
			n++
		}
	}
	return n
}

// Results returns the collected results in first-seen order.
func (a *Aggregator) Results() []OperationResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]OperationResult, len(a.results))
	copy(out, a.results)
	return out
}

// TransientFailures returns the results eligible for the second pass.
func (a *Aggregator) TransientFailures() []OperationResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []OperationResult
	for _, r := range a.results {
		if r.Transient() {
			out = append(out, r)
		}
	}
	return out
}
