package schedule

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/internal/metrics"
	"github.com/teranos/tradepulse/logger"
	"github.com/teranos/tradepulse/trade"
	"github.com/teranos/vanity-id"
)

// CandidateSink receives the candidates a job run produced. The approval
// gate implements it. The returned summary is appended to the run's record;
// an error fails the run.
type CandidateSink interface {
	HandleCandidates(ctx context.Context, executionID string, scheduleID *string, candidates []trade.Action) (summary string, err error)
}

// ExecutionBroadcaster publishes run lifecycle events.
// Defined here so the scheduler does not depend on the server package.
type ExecutionBroadcaster interface {
	BroadcastExecutionStarted(exec *Execution)
	BroadcastExecutionFinished(exec *Execution)
}

// Config configures the coordinating loop
type Config struct {
	TickInterval  time.Duration // 0 disables the loop; RunNow still works
	JobTimeout    time.Duration // bound on one Job Runner invocation
	RetentionDays int           // finished records older than this are purged on Start (0 = keep)
}

// DefaultConfig returns a 30s tick and a five minute job timeout
func DefaultConfig() Config {
	return Config{
		TickInterval:  30 * time.Second,
		JobTimeout:    5 * time.Minute,
		RetentionDays: 30,
	}
}

// Scheduler owns the schedule store and fires due schedules.
// One loop decides what to start; each started run executes in its own goroutine.
type Scheduler struct {
	store       *Store
	executions  *ExecutionStore
	runners     map[JobType]JobRunner
	sink        CandidateSink
	broadcaster ExecutionBroadcaster
	metrics     *metrics.Collector
	cfg         Config
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	loopWg sync.WaitGroup
	jobsWg sync.WaitGroup

	logger   *zap.SugaredLogger
	pulseLog *zap.SugaredLogger // Logger with Pulse symbol pre-attached

	// fireMu serializes the check-then-start of the loop and RunNow
	fireMu sync.Mutex

	mu              sync.Mutex
	started         bool
	lastTickAt      time.Time
	ticksSinceStart int64
}

// NewScheduler creates a scheduler. The runner registry is resolved here,
// once; later registrations are not seen.
func NewScheduler(store *Store, executions *ExecutionStore, runners *Registry, sink CandidateSink, cfg Config, log *zap.SugaredLogger) *Scheduler {
	return NewSchedulerWithContext(context.Background(), store, executions, runners, sink, cfg, log)
}

// NewSchedulerWithContext creates a scheduler with a parent context
func NewSchedulerWithContext(ctx context.Context, store *Store, executions *ExecutionStore, runners *Registry, sink CandidateSink, cfg Config, log *zap.SugaredLogger) *Scheduler {
	if log == nil {
		log = logger.ComponentLogger("pulse")
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultConfig().JobTimeout
	}
	schedCtx, cancel := context.WithCancel(ctx)

	return &Scheduler{
		store:      store,
		executions: executions,
		runners:    runners.snapshot(),
		sink:       sink,
		cfg:        cfg,
		now:        time.Now,
		ctx:        schedCtx,
		cancel:     cancel,
		logger:     log,
		pulseLog:   logger.AddPulseSymbol(log),
	}
}

// SetBroadcaster wires run lifecycle events to b
func (s *Scheduler) SetBroadcaster(b ExecutionBroadcaster) {
	s.broadcaster = b
}

// SetMetrics wires Prometheus collectors
func (s *Scheduler) SetMetrics(m *metrics.Collector) {
	s.metrics = m
}

// CreateSchedule validates and persists a new schedule
func (s *Scheduler) CreateSchedule(ctx context.Context, def Definition) (*Schedule, error) {
	now := s.now()

	if err := validateFields(def.Name, def.JobType); err != nil {
		return nil, err
	}
	tz := strings.TrimSpace(def.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	if _, err := ParseSpec(def.CronExpression, tz, now); err != nil {
		return nil, err
	}

	scheduleID, err := id.GenerateASIDWithPrefix("SC", def.Name, string(def.JobType), tz, "")
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate schedule id")
	}

	sch := &Schedule{
		ID:               scheduleID,
		Name:             strings.TrimSpace(def.Name),
		JobType:          def.JobType,
		CronExpression:   strings.TrimSpace(def.CronExpression),
		Timezone:         tz,
		RequiresApproval: boolOr(def.RequiresApproval, true),
		Enabled:          boolOr(def.Enabled, true),
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
	}
	if err := s.store.Create(ctx, sch); err != nil {
		return nil, err
	}

	s.withNextRun(sch, now)
	s.pulseLog.Infow("Schedule created",
		logger.FieldScheduleID, sch.ID,
		"name", sch.Name,
		logger.FieldJobType, sch.JobType,
		"cron", sch.CronExpression,
		"timezone", sch.Timezone,
		"requires_approval", sch.RequiresApproval)
	return sch, nil
}

// UpdateSchedule applies a partial update, re-validating cron and timezone when they change
func (s *Scheduler) UpdateSchedule(ctx context.Context, scheduleID string, patch Patch) (*Schedule, error) {
	now := s.now()

	sch, err := s.store.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		s.withNextRun(sch, now)
		return sch, nil
	}

	if patch.Name != nil {
		sch.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.JobType != nil {
		sch.JobType = *patch.JobType
	}
	if err := validateFields(sch.Name, sch.JobType); err != nil {
		return nil, err
	}

	if patch.CronExpression != nil || patch.Timezone != nil {
		if patch.CronExpression != nil {
			sch.CronExpression = strings.TrimSpace(*patch.CronExpression)
		}
		if patch.Timezone != nil {
			sch.Timezone = strings.TrimSpace(*patch.Timezone)
			if sch.Timezone == "" {
				sch.Timezone = "UTC"
			}
		}
		if _, err := ParseSpec(sch.CronExpression, sch.Timezone, now); err != nil {
			return nil, err
		}
	}
	if patch.RequiresApproval != nil {
		sch.RequiresApproval = *patch.RequiresApproval
	}
	if patch.Enabled != nil {
		sch.Enabled = *patch.Enabled
	}
	sch.UpdatedAt = now.UTC()

	if err := s.store.Update(ctx, sch); err != nil {
		return nil, err
	}

	sch.deriveStatus()
	s.withNextRun(sch, now)
	s.pulseLog.Infow("Schedule updated", logger.FieldScheduleID, sch.ID, logger.FieldStatus, sch.Status)
	return sch, nil
}

// Pause stops future fires of one schedule. A run already started continues.
func (s *Scheduler) Pause(ctx context.Context, scheduleID string) (*Schedule, error) {
	return s.setEnabled(ctx, scheduleID, false)
}

// Resume re-enables a paused schedule. Only the most recent missed instant fires.
func (s *Scheduler) Resume(ctx context.Context, scheduleID string) (*Schedule, error) {
	return s.setEnabled(ctx, scheduleID, true)
}

func (s *Scheduler) setEnabled(ctx context.Context, scheduleID string, enabled bool) (*Schedule, error) {
	now := s.now()
	if err := s.store.SetEnabled(ctx, scheduleID, enabled, now); err != nil {
		return nil, err
	}
	sch, err := s.store.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	s.withNextRun(sch, now)
	s.pulseLog.Infow("Schedule "+string(sch.Status), logger.FieldScheduleID, sch.ID)
	return sch, nil
}

// PauseAll sets the global override; no schedule fires until ResumeAll
func (s *Scheduler) PauseAll(ctx context.Context) error {
	if err := s.store.SetGlobalPause(ctx, true, s.now()); err != nil {
		return err
	}
	s.pulseLog.Warnw("Pulse paused globally")
	return nil
}

// ResumeAll clears the global override
func (s *Scheduler) ResumeAll(ctx context.Context) error {
	if err := s.store.SetGlobalPause(ctx, false, s.now()); err != nil {
		return err
	}
	s.pulseLog.Infow("Pulse resumed globally")
	return nil
}

// GlobalPaused reports the global override
func (s *Scheduler) GlobalPaused(ctx context.Context) (bool, error) {
	return s.store.GlobalPaused(ctx)
}

// GetSchedule returns one schedule with its next run time
func (s *Scheduler) GetSchedule(ctx context.Context, scheduleID string) (*Schedule, error) {
	sch, err := s.store.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	s.withNextRun(sch, s.now())
	return sch, nil
}

// ListSchedules returns every schedule with its next run time
func (s *Scheduler) ListSchedules(ctx context.Context) ([]*Schedule, error) {
	schedules, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, sch := range schedules {
		s.withNextRun(sch, now)
	}
	return schedules, nil
}

// ListExecutions returns records most recent first, optionally for one schedule
func (s *Scheduler) ListExecutions(ctx context.Context, scheduleID *string, limit int) ([]*Execution, error) {
	return s.executions.List(ctx, scheduleID, limit)
}

// GetExecution returns one execution record
func (s *Scheduler) GetExecution(ctx context.Context, executionID string) (*Execution, error) {
	return s.executions.Get(ctx, executionID)
}

// RunNow starts a run immediately and returns its running record.
// With a scheduleID the run belongs to that schedule and respects its
// overlap guard, but does not move its cron anchor.
func (s *Scheduler) RunNow(ctx context.Context, jobType JobType, scheduleID *string) (*Execution, error) {
	if scheduleID != nil {
		sch, err := s.store.Get(ctx, *scheduleID)
		if err != nil {
			return nil, err
		}
		if jobType == "" {
			jobType = sch.JobType
		}
		if jobType != sch.JobType {
			return nil, errors.NewInvalidRequest("job type %q does not match schedule %s (%q)", jobType, sch.ID, sch.JobType)
		}
	}
	if !jobType.Valid() {
		return nil, errors.NewInvalidRequest("unknown job type %q", jobType)
	}

	s.fireMu.Lock()
	defer s.fireMu.Unlock()

	if scheduleID != nil {
		running, err := s.executions.HasRunning(ctx, *scheduleID)
		if err != nil {
			return nil, err
		}
		if running {
			return nil, errors.Wrapf(ErrAlreadyRunning, "schedule %s", *scheduleID)
		}
	}

	exec, err := s.launch(jobType, scheduleID)
	if err != nil {
		return nil, err
	}
	s.pulseLog.Infow("Manual run started",
		logger.FieldExecutionID, exec.ID,
		logger.FieldJobType, jobType)
	return exec, nil
}

// withNextRun fills the computed NextRunAt; a broken stored expression leaves it nil
func (s *Scheduler) withNextRun(sch *Schedule, now time.Time) {
	if !sch.Enabled {
		sch.NextRunAt = nil
		return
	}
	next, err := NextRun(sch, now)
	if err != nil {
		s.pulseLog.Warnw("Cannot compute next run", logger.FieldScheduleID, sch.ID, logger.FieldError, err)
		return
	}
	sch.NextRunAt = next
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
