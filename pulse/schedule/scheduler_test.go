package schedule

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/trade"
)

// Monday 2 March 2026, 09:00:30 UTC
var fireTime = time.Date(2026, 3, 2, 9, 0, 30, 0, time.UTC)

func noopRegistry() *Registry {
	r := NewRegistry()
	for _, jt := range JobTypes {
		r.MustRegister(jt, NoopRunner{})
	}
	return r
}

// blockingRunner holds every run until release is closed
type blockingRunner struct {
	release chan struct{}
	obeyCtx bool
}

func (b *blockingRunner) Run(ctx context.Context, jobType JobType) ([]trade.Action, string, error) {
	if b.obeyCtx {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	} else {
		<-b.release
	}
	return nil, "released", nil
}

func createDaily(t *testing.T, s *Scheduler, jobType JobType) *Schedule {
	t.Helper()
	sch, err := s.CreateSchedule(context.Background(), Definition{
		Name:           "daily " + string(jobType),
		JobType:        jobType,
		CronExpression: "0 9 * * *",
		Timezone:       "UTC",
	})
	require.NoError(t, err)
	return sch
}

func executionsFor(t *testing.T, s *Scheduler, scheduleID string) []*Execution {
	t.Helper()
	execs, err := s.ListExecutions(context.Background(), &scheduleID, 0)
	require.NoError(t, err)
	return execs
}

func TestCreateSchedule_Defaults(t *testing.T) {
	clock := newTestClock(fireTime.Add(-time.Hour))
	s := newTestScheduler(t, noopRegistry(), nil, clock)

	sch := createDaily(t, s, JobMorningRoutine)

	assert.True(t, strings.HasPrefix(sch.ID, "SC"))
	assert.True(t, sch.RequiresApproval)
	assert.True(t, sch.Enabled)
	assert.Equal(t, StatusActive, sch.Status)
	require.NotNil(t, sch.NextRunAt)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), *sch.NextRunAt)
}

func TestCreateSchedule_Invalid(t *testing.T) {
	clock := newTestClock(fireTime)
	s := newTestScheduler(t, noopRegistry(), nil, clock)

	tests := []struct {
		name string
		def  Definition
	}{
		{"missing name", Definition{JobType: JobNewsReview, CronExpression: "0 9 * * *"}},
		{"unknown job type", Definition{Name: "x", JobType: "rebalance", CronExpression: "0 9 * * *"}},
		{"bad cron", Definition{Name: "x", JobType: JobNewsReview, CronExpression: "every morning"}},
		{"bad timezone", Definition{Name: "x", JobType: JobNewsReview, CronExpression: "0 9 * * *", Timezone: "Europe/Atlantis"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateSchedule(context.Background(), tt.def)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidScheduleDefinition))
		})
	}

	all, err := s.ListSchedules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpdateSchedule(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(fireTime.Add(-time.Hour))
	s := newTestScheduler(t, noopRegistry(), nil, clock)
	sch := createDaily(t, s, JobNewsReview)

	cron := "30 16 * * 1-5"
	tz := "Europe/London"
	noApproval := false
	updated, err := s.UpdateSchedule(ctx, sch.ID, Patch{CronExpression: &cron, Timezone: &tz, RequiresApproval: &noApproval})
	require.NoError(t, err)
	assert.Equal(t, cron, updated.CronExpression)
	assert.Equal(t, tz, updated.Timezone)
	assert.False(t, updated.RequiresApproval)

	bad := "99 * * * *"
	_, err = s.UpdateSchedule(ctx, sch.ID, Patch{CronExpression: &bad})
	assert.True(t, errors.Is(err, ErrInvalidScheduleDefinition))

	got, err := s.GetSchedule(ctx, sch.ID)
	require.NoError(t, err)
	assert.Equal(t, cron, got.CronExpression)

	_, err = s.UpdateSchedule(ctx, "SC_missing", Patch{CronExpression: &cron})
	assert.True(t, errors.IsNotFound(err))
}

func TestTick_FiresOncePerInstant(t *testing.T) {
	clock := newTestClock(fireTime.Add(-time.Hour))
	s := newTestScheduler(t, noopRegistry(), nil, clock)
	sch := createDaily(t, s, JobMorningRoutine)

	// Before the instant nothing fires
	require.NoError(t, s.tick(clock.Now()))
	assert.Empty(t, executionsFor(t, s, sch.ID))

	clock.Set(fireTime)
	require.NoError(t, s.tick(clock.Now()))
	s.waitJobs()
	require.NoError(t, s.tick(clock.Now()))
	s.waitJobs()

	execs := executionsFor(t, s, sch.ID)
	require.Len(t, execs, 1)
	assert.Equal(t, ExecutionStatusCompleted, execs[0].Status)

	got, err := s.GetSchedule(context.Background(), sch.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), *got.LastRunAt)
	require.NotNil(t, got.NextRunAt)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), *got.NextRunAt)
}

func TestTick_NoBackfillAfterOutage(t *testing.T) {
	clock := newTestClock(fireTime.AddDate(0, 0, -5))
	s := newTestScheduler(t, noopRegistry(), nil, clock)
	sch := createDaily(t, s, JobMorningRoutine)

	// Five days of missed instants collapse into one run for the latest
	clock.Set(fireTime.Add(3 * time.Hour))
	require.NoError(t, s.tick(clock.Now()))
	s.waitJobs()
	require.NoError(t, s.tick(clock.Now()))
	s.waitJobs()

	assert.Len(t, executionsFor(t, s, sch.ID), 1)
	got, err := s.GetSchedule(context.Background(), sch.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), *got.LastRunAt)
}

func TestTick_OverlapGuardSkipsWhileRunning(t *testing.T) {
	ctx := context.Background()
	runner := &blockingRunner{release: make(chan struct{})}
	registry := NewRegistry()
	registry.MustRegister(JobAIRecommendations, runner)

	clock := newTestClock(fireTime.Add(-time.Hour))
	s := newTestScheduler(t, registry, nil, clock)
	sch, err := s.CreateSchedule(ctx, Definition{
		Name:           "every minute",
		JobType:        JobAIRecommendations,
		CronExpression: "* * * * *",
	})
	require.NoError(t, err)

	clock.Set(fireTime)
	require.NoError(t, s.tick(clock.Now()))

	// Three more instants pass while the first run is held
	for i := 1; i <= 3; i++ {
		clock.Set(fireTime.Add(time.Duration(i) * time.Minute))
		require.NoError(t, s.tick(clock.Now()))
	}
	execs := executionsFor(t, s, sch.ID)
	require.Len(t, execs, 1)
	assert.Equal(t, ExecutionStatusRunning, execs[0].Status)

	// Skipped instants do not advance the anchor
	got, err := s.GetSchedule(ctx, sch.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), *got.LastRunAt)

	close(runner.release)
	s.waitJobs()

	// After the run finishes only the latest missed instant fires
	require.NoError(t, s.tick(clock.Now()))
	s.waitJobs()
	execs = executionsFor(t, s, sch.ID)
	require.Len(t, execs, 2)
	got, err = s.GetSchedule(ctx, sch.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 3, 0, 0, time.UTC), *got.LastRunAt)
}

func TestTick_GlobalPause(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(fireTime.Add(-time.Hour))
	s := newTestScheduler(t, noopRegistry(), nil, clock)
	sch := createDaily(t, s, JobNewsReview)

	require.NoError(t, s.PauseAll(ctx))
	paused, err := s.GlobalPaused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)

	clock.Set(fireTime)
	require.NoError(t, s.tick(clock.Now()))
	s.waitJobs()
	assert.Empty(t, executionsFor(t, s, sch.ID))

	require.NoError(t, s.ResumeAll(ctx))
	require.NoError(t, s.tick(clock.Now()))
	s.waitJobs()
	assert.Len(t, executionsFor(t, s, sch.ID), 1)
}

func TestPauseResume_SingleSchedule(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(fireTime.AddDate(0, 0, -3))
	s := newTestScheduler(t, noopRegistry(), nil, clock)
	sch := createDaily(t, s, JobMorningRoutine)
	other := createDaily(t, s, JobNewsReview)

	paused, err := s.Pause(ctx, sch.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, paused.Status)
	assert.Nil(t, paused.NextRunAt)

	clock.Set(fireTime)
	require.NoError(t, s.tick(clock.Now()))
	s.waitJobs()
	assert.Empty(t, executionsFor(t, s, sch.ID))
	assert.Len(t, executionsFor(t, s, other.ID), 1)

	resumed, err := s.Resume(ctx, sch.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, resumed.Status)

	// Resuming fires the most recent missed instant once
	require.NoError(t, s.tick(clock.Now()))
	s.waitJobs()
	require.NoError(t, s.tick(clock.Now()))
	s.waitJobs()
	assert.Len(t, executionsFor(t, s, sch.ID), 1)

	_, err = s.Pause(ctx, "SC_missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestTick_TimezoneAware(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC))
	s := newTestScheduler(t, noopRegistry(), nil, clock)
	sch, err := s.CreateSchedule(ctx, Definition{
		Name:           "ny open",
		JobType:        JobMorningRoutine,
		CronExpression: "0 9 * * *",
		Timezone:       "America/New_York",
	})
	require.NoError(t, err)

	clock.Set(time.Date(2026, 7, 1, 12, 59, 0, 0, time.UTC))
	require.NoError(t, s.tick(clock.Now()))
	assert.Empty(t, executionsFor(t, s, sch.ID))

	// 13:00 UTC is 09:00 EDT
	clock.Set(time.Date(2026, 7, 1, 13, 0, 30, 0, time.UTC))
	require.NoError(t, s.tick(clock.Now()))
	s.waitJobs()
	assert.Len(t, executionsFor(t, s, sch.ID), 1)
}

func TestRunJob_CandidatesGoToSink(t *testing.T) {
	candidate := trade.Action{
		Symbol:         "AAPL",
		Side:           trade.SideBuy,
		Quantity:       decimal.NewFromInt(10),
		InstrumentType: trade.InstrumentEquity,
	}
	registry := NewRegistry()
	registry.MustRegister(JobAIRecommendations, StaticRunner{Candidates: []trade.Action{candidate}, Summary: "1 idea"})
	sink := &recordingSink{}

	clock := newTestClock(fireTime.Add(-time.Hour))
	s := newTestScheduler(t, registry, sink, clock)
	sch := createDaily(t, s, JobAIRecommendations)

	clock.Set(fireTime)
	require.NoError(t, s.tick(clock.Now()))
	s.waitJobs()

	calls := sink.Calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].scheduleID)
	assert.Equal(t, sch.ID, *calls[0].scheduleID)
	require.Len(t, calls[0].candidates, 1)
	assert.Equal(t, "AAPL", calls[0].candidates[0].Symbol)

	execs := executionsFor(t, s, sch.ID)
	require.Len(t, execs, 1)
	assert.Equal(t, calls[0].executionID, execs[0].ID)
	assert.Equal(t, ExecutionStatusCompleted, execs[0].Status)
	assert.Equal(t, "1 idea; queued for approval", execs[0].ResultSummary)
}

func TestRunJob_SinkErrorFailsRun(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(JobAIRecommendations, StaticRunner{Candidates: []trade.Action{{
		Symbol: "MSFT", Side: trade.SideSell, Quantity: decimal.NewFromInt(1), InstrumentType: trade.InstrumentEquity,
	}}})
	sink := &recordingSink{err: errors.New("approval store unavailable")}

	clock := newTestClock(fireTime)
	s := newTestScheduler(t, registry, sink, clock)

	exec, err := s.RunNow(context.Background(), JobAIRecommendations, nil)
	require.NoError(t, err)
	s.waitJobs()

	got, err := s.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "approval store unavailable")
}

func TestRunJob_PanicRecordsFailure(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(JobCustom, RunnerFunc(func(ctx context.Context, jobType JobType) ([]trade.Action, string, error) {
		panic("nil quote feed")
	}))

	clock := newTestClock(fireTime)
	s := newTestScheduler(t, registry, nil, clock)

	exec, err := s.RunNow(context.Background(), JobCustom, nil)
	require.NoError(t, err)
	s.waitJobs()

	got, err := s.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusFailed, got.Status)
	assert.Contains(t, *got.ErrorMessage, "panicked")
	assert.Contains(t, *got.ErrorMessage, "nil quote feed")
}

func TestRunJob_TimeoutRecordsFailure(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	defer close(runner.release)
	registry := NewRegistry()
	registry.MustRegister(JobNewsReview, runner)

	testDB := createTestDB(t)
	cfg := Config{JobTimeout: 50 * time.Millisecond}
	s := NewScheduler(NewStore(testDB), NewExecutionStore(testDB), registry, nil, cfg, zap.NewNop().Sugar())

	// The runner ignores ctx; the record is still finished at the deadline
	exec, err := s.RunNow(context.Background(), JobNewsReview, nil)
	require.NoError(t, err)
	s.waitJobs()

	got, err := s.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusFailed, got.Status)
	assert.Contains(t, *got.ErrorMessage, "timeout")
}

func TestRunJob_MissingRunnerFails(t *testing.T) {
	clock := newTestClock(fireTime)
	s := newTestScheduler(t, NewRegistry(), nil, clock)

	exec, err := s.RunNow(context.Background(), JobCustom, nil)
	require.NoError(t, err)
	s.waitJobs()

	got, err := s.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusFailed, got.Status)
	assert.Contains(t, *got.ErrorMessage, "no runner registered")
}

func TestRunNow_RespectsOverlapAndKeepsAnchor(t *testing.T) {
	ctx := context.Background()
	runner := &blockingRunner{release: make(chan struct{}), obeyCtx: true}
	registry := NewRegistry()
	registry.MustRegister(JobMorningRoutine, runner)

	clock := newTestClock(fireTime)
	s := newTestScheduler(t, registry, nil, clock)
	sch := createDaily(t, s, JobMorningRoutine)

	exec, err := s.RunNow(ctx, "", &sch.ID)
	require.NoError(t, err)
	assert.Equal(t, JobMorningRoutine, exec.JobType)
	assert.Equal(t, ExecutionStatusRunning, exec.Status)

	_, err = s.RunNow(ctx, "", &sch.ID)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))

	_, err = s.RunNow(ctx, JobNewsReview, &sch.ID)
	assert.True(t, errors.IsInvalidRequest(err))

	close(runner.release)
	s.waitJobs()

	got, err := s.GetSchedule(ctx, sch.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastRunAt)

	_, err = s.RunNow(ctx, "rebalance", nil)
	assert.True(t, errors.IsInvalidRequest(err))

	missing := "SC_missing"
	_, err = s.RunNow(ctx, JobCustom, &missing)
	assert.True(t, errors.IsNotFound(err))
}

func TestStart_FailsOrphanedExecutions(t *testing.T) {
	ctx := context.Background()
	testDB := createTestDB(t)
	store := NewStore(testDB)
	execStore := NewExecutionStore(testDB)
	sch := newStoredSchedule(t, store, "SC_crash", true)

	require.NoError(t, execStore.Create(ctx, runningExecution("PX_orphan", &sch.ID, time.Now().Add(-time.Hour))))

	s := NewScheduler(store, execStore, noopRegistry(), nil, Config{}, zap.NewNop().Sugar())
	require.NoError(t, s.Start())
	defer s.Stop()

	got, err := execStore.Get(ctx, "PX_orphan")
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusFailed, got.Status)

	assert.Error(t, s.Start())
}

func TestStartStop_LoopFires(t *testing.T) {
	testDB := createTestDB(t)
	store := NewStore(testDB)
	execStore := NewExecutionStore(testDB)
	s := NewScheduler(store, execStore, noopRegistry(), nil, Config{TickInterval: 10 * time.Millisecond, JobTimeout: time.Second}, zap.NewNop().Sugar())

	sch, err := s.CreateSchedule(context.Background(), Definition{
		Name:           "every minute",
		JobType:        JobNewsReview,
		CronExpression: "* * * * *",
	})
	require.NoError(t, err)

	// Pretend the schedule was created two minutes ago so an instant is due
	past := time.Now().Add(-2 * time.Minute)
	_, err = testDB.Exec(`UPDATE schedules SET created_at = ? WHERE id = ?`, past.UTC().Format("2006-01-02T15:04:05.000000Z"), sch.ID)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		execs, err := execStore.List(context.Background(), &sch.ID, 0)
		return err == nil && len(execs) == 1 && execs[0].Finished()
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()

	stats := s.GetStats()
	assert.Greater(t, stats["ticks_since_start"].(int64), int64(0))
}
