package approval

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/tradepulse/db"
	"github.com/teranos/tradepulse/logger"
)

// DefaultSweepInterval is how often the sweeper expires stale requests
const DefaultSweepInterval = time.Minute

// Sweeper runs SweepExpired periodically. Approve and Reject also detect
// expiry on their own, so the sweep only bounds how long an expired request
// shows as pending in the store.
type Sweeper struct {
	gate     *Gate
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *zap.SugaredLogger
}

// NewSweeper creates a sweeper for gate
func NewSweeper(gate *Gate, interval time.Duration, log *zap.SugaredLogger) *Sweeper {
	if log == nil {
		log = logger.ComponentLogger("approval")
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		gate:     gate,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.AddApprovalSymbol(log),
	}
}

// Start sweeps once immediately, then on every interval
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Infow("Approval sweeper started", "interval", s.interval)
}

// Stop ends the loop and waits for an in-progress sweep
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	_, err := s.gate.SweepExpired(s.ctx)
	switch {
	case err == nil, s.ctx.Err() != nil:
	case db.IsDatabaseClosed(err):
		s.logger.Debugw("Approval sweep skipped, database closed")
	default:
		s.logger.Warnw("Approval sweep failed", logger.FieldError, err)
	}
}
