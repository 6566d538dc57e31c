package schedule

import (
	"context"
	"sort"
	"sync"

	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/trade"
)

// JobRunner produces candidate actions and a human-readable summary for a
// job type. Implementations call market-data, news or AI adapters; the
// scheduler treats them as opaque and bounds each call with a timeout.
type JobRunner interface {
	Run(ctx context.Context, jobType JobType) (candidates []trade.Action, summary string, err error)
}

// RunnerFunc adapts a function to JobRunner
type RunnerFunc func(ctx context.Context, jobType JobType) ([]trade.Action, string, error)

// Run calls f
func (f RunnerFunc) Run(ctx context.Context, jobType JobType) ([]trade.Action, string, error) {
	return f(ctx, jobType)
}

// Registry maps job types to runners. It is filled at startup and frozen
// into the Scheduler, so dispatch never branches on job-type strings.
type Registry struct {
	mu      sync.RWMutex
	runners map[JobType]JobRunner
}

// NewRegistry creates an empty runner registry
func NewRegistry() *Registry {
	return &Registry{runners: make(map[JobType]JobRunner)}
}

// Register adds a runner for jobType. Unknown job types and duplicates are rejected.
func (r *Registry) Register(jobType JobType, runner JobRunner) error {
	if !jobType.Valid() {
		return errors.Newf("cannot register runner for unknown job type %q", jobType)
	}
	if runner == nil {
		return errors.Newf("nil runner for job type %q", jobType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runners[jobType]; exists {
		return errors.Newf("runner already registered for job type %q", jobType)
	}
	r.runners[jobType] = runner
	return nil
}

// MustRegister is Register for startup wiring; it panics on error
func (r *Registry) MustRegister(jobType JobType, runner JobRunner) {
	if err := r.Register(jobType, runner); err != nil {
		panic(err)
	}
}

// Get returns the runner for jobType
func (r *Registry) Get(jobType JobType) (JobRunner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[jobType]
	return runner, ok
}

// Has reports whether a runner is registered for jobType
func (r *Registry) Has(jobType JobType) bool {
	_, ok := r.Get(jobType)
	return ok
}

// JobTypes returns the registered job types, sorted
func (r *Registry) JobTypes() []JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]JobType, 0, len(r.runners))
	for t := range r.runners {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// snapshot copies the registry into an immutable map
func (r *Registry) snapshot() map[JobType]JobRunner {
	out := make(map[JobType]JobRunner)
	if r == nil {
		return out
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for t, runner := range r.runners {
		out[t] = runner
	}
	return out
}

// NoopRunner produces no candidates. Useful for workflows that only report.
type NoopRunner struct {
	Summary string
}

// Run returns the configured summary and no candidates
func (n NoopRunner) Run(ctx context.Context, jobType JobType) ([]trade.Action, string, error) {
	summary := n.Summary
	if summary == "" {
		summary = string(jobType) + ": nothing to do"
	}
	return nil, summary, nil
}

// StaticRunner returns a fixed candidate list on every run
type StaticRunner struct {
	Candidates []trade.Action
	Summary    string
}

// Run returns a copy of the configured candidates
func (s StaticRunner) Run(ctx context.Context, jobType JobType) ([]trade.Action, string, error) {
	out := make([]trade.Action, len(s.Candidates))
	copy(out, s.Candidates)
	return out, s.Summary, nil
}
