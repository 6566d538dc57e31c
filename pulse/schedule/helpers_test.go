package schedule

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	tptest "github.com/teranos/tradepulse/internal/testing"
	"github.com/teranos/tradepulse/trade"
)

// createTestDB creates an in-memory test database.
func createTestDB(t *testing.T) *sql.DB {
	return tptest.CreateTestDB(t)
}

// testClock is a settable clock shared between a test and the scheduler goroutines
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// newTestScheduler builds a scheduler on a fresh database with the loop disabled.
// Tests drive it through tick and wait on in-flight runs with waitJobs.
func newTestScheduler(t *testing.T, runners *Registry, sink CandidateSink, clock *testClock) *Scheduler {
	t.Helper()
	testDB := createTestDB(t)
	cfg := Config{TickInterval: 0, JobTimeout: time.Minute}
	s := NewScheduler(NewStore(testDB), NewExecutionStore(testDB), runners, sink, cfg, zap.NewNop().Sugar())
	s.now = clock.Now
	t.Cleanup(s.Stop)
	return s
}

func (s *Scheduler) waitJobs() {
	s.jobsWg.Wait()
}

// recordingSink captures every HandleCandidates call
type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
	err   error
}

type sinkCall struct {
	executionID string
	scheduleID  *string
	candidates  []trade.Action
}

func (r *recordingSink) HandleCandidates(ctx context.Context, executionID string, scheduleID *string, candidates []trade.Action) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sinkCall{executionID: executionID, scheduleID: scheduleID, candidates: candidates})
	if r.err != nil {
		return "", r.err
	}
	return "queued for approval", nil
}

func (r *recordingSink) Calls() []sinkCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sinkCall(nil), r.calls...)
}
