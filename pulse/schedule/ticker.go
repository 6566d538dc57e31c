package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teranos/tradepulse/db"
	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/logger"
	"github.com/teranos/tradepulse/trade"
	"github.com/teranos/vanity-id"
)

// finishTimeout bounds the write of a finished record. It runs on a fresh
// context so a stopping scheduler still records the outcome.
const finishTimeout = 10 * time.Second

// Start fails records orphaned by a previous process, purges old records,
// and begins the coordinating loop when a tick interval is configured.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.mu.Unlock()

	now := s.now()
	orphaned, err := s.executions.FailOrphaned(s.ctx, "scheduler restarted while job was running", now)
	if err != nil {
		return errors.Wrap(err, "failed to recover orphaned executions")
	}
	if orphaned > 0 {
		s.pulseLog.Warnw("Marked orphaned executions as failed", logger.FieldCount, orphaned)
	}

	if s.cfg.RetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -s.cfg.RetentionDays)
		purged, err := s.executions.CleanupOld(s.ctx, cutoff)
		if err != nil {
			s.pulseLog.Warnw("Execution cleanup failed", logger.FieldError, err)
		} else if purged > 0 {
			s.pulseLog.Infow("Purged old executions", logger.FieldCount, purged, "retention_days", s.cfg.RetentionDays)
		}
	}

	for _, jt := range JobTypes {
		if _, ok := s.runners[jt]; !ok {
			s.pulseLog.Warnw("No runner registered, runs of this type will fail", logger.FieldJobType, jt)
		}
	}

	if s.cfg.TickInterval <= 0 {
		s.pulseLog.Infow("Pulse loop disabled, manual runs only")
		return nil
	}

	s.loopWg.Add(1)
	go s.run()
	s.pulseLog.Infow("Pulse scheduler started", "interval", s.cfg.TickInterval, "job_timeout", s.cfg.JobTimeout)
	return nil
}

// Stop ends the loop, cancels in-flight runs, and waits for their records to be written
func (s *Scheduler) Stop() {
	s.cancel()
	s.loopWg.Wait()
	s.jobsWg.Wait()
	s.pulseLog.Infow("Pulse scheduler stopped")
}

// run is the coordinating loop
func (s *Scheduler) run() {
	defer s.loopWg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			s.mu.Lock()
			s.lastTickAt = now
			s.ticksSinceStart++
			ticks := s.ticksSinceStart
			s.mu.Unlock()

			if err := s.tick(now); err != nil {
				s.pulseLog.Warnw("Pulse tick error", logger.FieldError, err, "tick", ticks)
			}
		}
	}
}

// tick fires every enabled schedule with a due instant in (lastRunAt, now]
func (s *Scheduler) tick(now time.Time) error {
	paused, err := s.store.GlobalPaused(s.ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read global pause")
	}
	if paused {
		s.pulseLog.Debugw("Pulse paused globally, skipping tick")
		return nil
	}

	schedules, err := s.store.ListEnabled(s.ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list schedules")
	}

	for _, sch := range schedules {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}

		if err := s.checkSchedule(sch, now); err != nil {
			s.pulseLog.Errorw("Failed to fire schedule",
				logger.FieldScheduleID, sch.ID,
				logger.FieldJobType, sch.JobType,
				logger.FieldError, err)
			continue
		}
	}
	return nil
}

// checkSchedule fires at most one run for sch: the latest due instant.
// Earlier missed instants are dropped.
func (s *Scheduler) checkSchedule(sch *Schedule, now time.Time) error {
	spec, err := specFor(sch, now)
	if err != nil {
		return err
	}
	due, ok := spec.DueInstant(sch.anchor(), now)
	if !ok {
		return nil
	}

	s.fireMu.Lock()
	defer s.fireMu.Unlock()

	running, err := s.executions.HasRunning(s.ctx, sch.ID)
	if err != nil {
		return err
	}
	if running {
		s.overlapSkipped(sch, due)
		return nil
	}

	// Advance the anchor before starting so a failed record write drops
	// the instant rather than firing it twice.
	if err := s.store.UpdateLastRun(s.ctx, sch.ID, due); err != nil {
		return errors.Wrap(err, "failed to advance last run")
	}

	scheduleID := sch.ID
	exec, err := s.launch(sch.JobType, &scheduleID)
	if errors.Is(err, ErrAlreadyRunning) {
		s.overlapSkipped(sch, due)
		return nil
	}
	if err != nil {
		return err
	}

	s.pulseLog.Infow("Pulse fired schedule",
		logger.FieldScheduleID, sch.ID,
		logger.FieldExecutionID, exec.ID,
		logger.FieldJobType, sch.JobType,
		"due", due.Format(time.RFC3339),
		"late_by", now.Sub(due).Round(time.Second))
	return nil
}

func (s *Scheduler) overlapSkipped(sch *Schedule, due time.Time) {
	s.metrics.RecordOverlapSkip()
	s.pulseLog.Infow("Previous run still running, skipping",
		logger.FieldScheduleID, sch.ID,
		"due", due.Format(time.RFC3339))
}

// launch writes the running record and starts the run in its own goroutine.
// The returned record is a copy taken before the run begins.
func (s *Scheduler) launch(jobType JobType, scheduleID *string) (*Execution, error) {
	exec := &Execution{
		ID:         id.GenerateExecutionID(),
		ScheduleID: scheduleID,
		JobType:    jobType,
		Status:     ExecutionStatusRunning,
		StartedAt:  s.now().UTC(),
	}
	if err := s.executions.Create(s.ctx, exec); err != nil {
		return nil, err
	}

	s.metrics.RecordScheduleFire(string(jobType))
	started := *exec
	if s.broadcaster != nil {
		s.broadcaster.BroadcastExecutionStarted(&started)
	}

	s.jobsWg.Add(1)
	go s.runJob(exec)

	return &started, nil
}

// runJob invokes the runner, hands candidates to the sink, and writes the terminal record
func (s *Scheduler) runJob(exec *Execution) {
	defer s.jobsWg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.JobTimeout)
	defer cancel()
	ctx = logger.WithExecutionID(ctx, exec.ID)

	summary, err := s.invoke(ctx, exec)

	finished := s.now().UTC()
	durationMs := finished.Sub(exec.StartedAt).Milliseconds()
	exec.FinishedAt = &finished
	exec.DurationMs = &durationMs
	exec.ResultSummary = summary

	if err != nil {
		exec.Status = ExecutionStatusFailed
		msg := err.Error()
		exec.ErrorMessage = &msg
		s.pulseLog.Errorw("Pulse FAILED",
			logger.FieldExecutionID, exec.ID,
			logger.FieldJobType, exec.JobType,
			logger.FieldDurationMS, durationMs,
			logger.FieldError, err)
	} else {
		exec.Status = ExecutionStatusCompleted
		s.pulseLog.Infow("Pulse OK",
			logger.FieldExecutionID, exec.ID,
			logger.FieldJobType, exec.JobType,
			logger.FieldDurationMS, durationMs,
			"summary", summary)
	}

	finishCtx, cancelFinish := context.WithTimeout(context.Background(), finishTimeout)
	defer cancelFinish()
	if err := s.executions.Finish(finishCtx, exec); err != nil {
		if db.IsDatabaseClosed(err) {
			s.pulseLog.Debugw("Execution outcome dropped, database closed",
				logger.FieldExecutionID, exec.ID,
				logger.FieldStatus, exec.Status)
		} else {
			s.pulseLog.Errorw("Failed to record execution outcome",
				logger.FieldExecutionID, exec.ID,
				logger.FieldError, err)
		}
	}

	s.metrics.RecordJobRun(string(exec.JobType), string(exec.Status), finished.Sub(exec.StartedAt))
	if s.broadcaster != nil {
		snapshot := *exec
		s.broadcaster.BroadcastExecutionFinished(&snapshot)
	}
}

type runOutcome struct {
	candidates []trade.Action
	summary    string
	err        error
}

// invoke runs the job under ctx. The runner gets its own goroutine so a
// runner that ignores ctx still yields a timed-out record.
func (s *Scheduler) invoke(ctx context.Context, exec *Execution) (summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("candidate handling panicked: %v", r)
		}
	}()

	runner, ok := s.runners[exec.JobType]
	if !ok {
		return "", errors.Newf("no runner registered for job type %q", exec.JobType)
	}

	done := make(chan runOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runOutcome{err: errors.Newf("job runner panicked: %v", r)}
			}
		}()
		candidates, summary, err := runner.Run(ctx, exec.JobType)
		done <- runOutcome{candidates: candidates, summary: summary, err: err}
	}()

	var out runOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		return "", s.interrupted(ctx)
	}

	if out.err != nil {
		if ctx.Err() != nil {
			return out.summary, s.interrupted(ctx)
		}
		return out.summary, errors.Wrap(out.err, "job runner failed")
	}

	if len(out.candidates) == 0 {
		return out.summary, nil
	}
	if s.sink == nil {
		s.pulseLog.Warnw("Discarding candidates, no approval gate configured",
			logger.FieldExecutionID, exec.ID,
			logger.FieldCount, len(out.candidates))
		return joinSummary(out.summary, fmt.Sprintf("%d candidate(s) discarded", len(out.candidates))), nil
	}

	sinkSummary, err := s.sink.HandleCandidates(ctx, exec.ID, exec.ScheduleID, out.candidates)
	if err != nil {
		return out.summary, errors.Wrap(err, "failed to submit candidates")
	}
	return joinSummary(out.summary, sinkSummary), nil
}

func (s *Scheduler) interrupted(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Mark(errors.Newf("job exceeded timeout of %s", s.cfg.JobTimeout), errors.ErrTimeout)
	}
	return errors.Wrap(ctx.Err(), "job cancelled")
}

func joinSummary(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "; ")
}

// GetStats returns loop statistics
func (s *Scheduler) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]interface{}{
		"last_tick_at":      s.lastTickAt,
		"ticks_since_start": s.ticksSinceStart,
		"interval":          s.cfg.TickInterval.String(),
		"job_timeout":       s.cfg.JobTimeout.String(),
	}
}
