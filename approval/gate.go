package approval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/execution"
	"github.com/teranos/tradepulse/internal/metrics"
	"github.com/teranos/tradepulse/logger"
	"github.com/teranos/tradepulse/trade"
	"github.com/teranos/vanity-id"
)

// ScheduleSource answers whether a schedule's candidates need sign-off
type ScheduleSource interface {
	RequiresApproval(ctx context.Context, scheduleID string) (bool, error)
}

// Dispatcher forwards actions to the execution gateway
type Dispatcher interface {
	Execute(ctx context.Context, req execution.Request) (*execution.Outcome, error)
}

// Broadcaster publishes approval events.
// Defined here so the gate does not depend on the server package.
type Broadcaster interface {
	BroadcastApprovalCreated(req *Request)
	BroadcastApprovalResolved(req *Request)
}

// Config configures the gate
type Config struct {
	Window time.Duration    // pending lifetime; default 4h
	Policy trade.RiskPolicy // risk classification at submission
	DryRun bool             // forward approved candidates as dry runs
}

// Submission is the result of SubmitCandidates: either approval ids or a gateway outcome
type Submission struct {
	ApprovalIDs []string           `json:"approval_ids,omitempty"`
	HighRisk    int                `json:"high_risk,omitempty"`
	Outcome     *execution.Outcome `json:"outcome,omitempty"`
}

// Decision is the result of Approve or Reject
type Decision struct {
	Request *Request           `json:"request"`
	Outcome *execution.Outcome `json:"outcome,omitempty"`
}

// Gate holds candidates for sign-off and forwards approved ones
type Gate struct {
	store       *Store
	schedules   ScheduleSource
	dispatcher  Dispatcher
	broadcaster Broadcaster
	metrics     *metrics.Collector
	now         func() time.Time

	mu     sync.RWMutex
	window time.Duration
	policy trade.RiskPolicy
	dryRun bool

	logger      *zap.SugaredLogger
	approvalLog *zap.SugaredLogger // Logger with Approval symbol pre-attached
}

// NewGate creates a gate
func NewGate(store *Store, schedules ScheduleSource, dispatcher Dispatcher, cfg Config, log *zap.SugaredLogger) *Gate {
	if log == nil {
		log = logger.ComponentLogger("approval")
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Gate{
		store:       store,
		schedules:   schedules,
		dispatcher:  dispatcher,
		now:         time.Now,
		window:      cfg.Window,
		policy:      policyOrDefault(cfg.Policy),
		dryRun:      cfg.DryRun,
		logger:      log,
		approvalLog: logger.AddApprovalSymbol(log),
	}
}

// SetBroadcaster wires approval events to b
func (g *Gate) SetBroadcaster(b Broadcaster) {
	g.broadcaster = b
}

// SetMetrics wires Prometheus collectors
func (g *Gate) SetMetrics(m *metrics.Collector) {
	g.metrics = m
}

// SetWindow changes the window for requests created from now on.
// Existing requests keep their expiresAt.
func (g *Gate) SetWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.window = d
}

// SetPolicy changes the risk policy for requests created from now on.
// A policy with no rules is replaced by the default, as in NewGate.
func (g *Gate) SetPolicy(p trade.RiskPolicy) {
	p = policyOrDefault(p)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policy = p
}

func policyOrDefault(p trade.RiskPolicy) trade.RiskPolicy {
	if p.IsZero() {
		return trade.DefaultRiskPolicy()
	}
	return p
}

func (g *Gate) settings() (time.Duration, trade.RiskPolicy, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.window, g.policy, g.dryRun
}

// SubmitCandidates routes one job run's candidates. When the schedule requires
// approval (or the run is manual) it creates pending requests; otherwise it
// forwards the candidates straight to the gateway, keyed by the execution id.
func (g *Gate) SubmitCandidates(ctx context.Context, executionID string, scheduleID *string, candidates []trade.Action) (*Submission, error) {
	if executionID == "" {
		return nil, errors.NewInvalidRequest("execution id is required")
	}
	if err := trade.ValidateAll(candidates); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &Submission{}, nil
	}

	requires := true
	if scheduleID != nil {
		var err error
		if requires, err = g.schedules.RequiresApproval(ctx, *scheduleID); err != nil {
			return nil, err
		}
	}

	window, policy, dryRun := g.settings()

	if !requires {
		outcome, err := g.dispatcher.Execute(ctx, execution.Request{
			RequestID: executionID,
			DryRun:    dryRun,
			Actions:   candidates,
			Actor:     "pulse:" + executionID,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to forward candidates of %s", executionID)
		}
		return &Submission{Outcome: outcome}, nil
	}

	now := g.now().UTC()
	reqs := make([]*Request, 0, len(candidates))
	highRisk := 0
	for _, c := range candidates {
		c = c.Normalize()
		tier := trade.Classify(c, policy)
		c.RiskTier = tier
		if tier == trade.RiskHigh {
			highRisk++
		}

		requestID, err := id.GenerateASIDWithPrefix("AR", c.Symbol, string(c.Side), executionID, "")
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate approval id")
		}
		reqs = append(reqs, &Request{
			ID:          requestID,
			ExecutionID: executionID,
			ScheduleID:  scheduleID,
			Candidate:   c,
			RiskTier:    tier,
			Status:      StatusPending,
			CreatedAt:   now,
			ExpiresAt:   now.Add(window),
		})
	}

	if err := g.store.CreateBatch(ctx, reqs); err != nil {
		return nil, err
	}

	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
		if g.broadcaster != nil {
			g.broadcaster.BroadcastApprovalCreated(r)
		}
	}
	g.metrics.RecordApproval(string(StatusPending), len(reqs))
	g.refreshPendingGauge(ctx)

	g.approvalLog.Infow("Candidates awaiting approval",
		logger.FieldExecutionID, executionID,
		logger.FieldCount, len(reqs),
		"high_risk", highRisk,
		"expires_at", now.Add(window).Format(time.RFC3339))

	return &Submission{ApprovalIDs: ids, HighRisk: highRisk}, nil
}

// HandleCandidates adapts SubmitCandidates to the scheduler's candidate sink
func (g *Gate) HandleCandidates(ctx context.Context, executionID string, scheduleID *string, candidates []trade.Action) (string, error) {
	sub, err := g.SubmitCandidates(ctx, executionID, scheduleID, candidates)
	if err != nil {
		return "", err
	}
	return sub.Summary(), nil
}

// Summary renders the submission for an execution record
func (s *Submission) Summary() string {
	switch {
	case len(s.ApprovalIDs) > 0:
		msg := fmt.Sprintf("%d pending approval", len(s.ApprovalIDs))
		if s.HighRisk > 0 {
			msg += fmt.Sprintf(" (%d high risk)", s.HighRisk)
		}
		return msg
	case s.Outcome != nil:
		ok, failed := s.Outcome.Counts()
		return fmt.Sprintf("dispatched %s: %d ok, %d failed", s.Outcome.Status, ok, failed)
	default:
		return ""
	}
}

// ListPending returns approvable requests, soonest-expiring first
func (g *Gate) ListPending(ctx context.Context, tier *trade.RiskTier) ([]*Request, error) {
	if tier != nil && !tier.Valid() {
		return nil, errors.NewInvalidRequest("unknown risk tier %q", *tier)
	}
	return g.store.ListPending(ctx, tier, g.now())
}

// ListByExecution returns every request created by one job run, in any status
func (g *Gate) ListByExecution(ctx context.Context, executionID string) ([]*Request, error) {
	return g.store.ListByExecution(ctx, executionID)
}

// Get returns one request in any status
func (g *Gate) Get(ctx context.Context, requestID string) (*Request, error) {
	return g.store.Get(ctx, requestID)
}

// Approve resolves the request as approved and forwards its candidate.
// The approval stands even when the gateway refuses the dispatch; the
// approval id is the gateway request id, so it can be retried there.
func (g *Gate) Approve(ctx context.Context, requestID, actor string) (*Decision, error) {
	req, err := g.resolve(ctx, requestID, StatusApproved, actor)
	if err != nil {
		return nil, err
	}

	_, _, dryRun := g.settings()
	outcome, err := g.dispatcher.Execute(ctx, execution.Request{
		RequestID: req.ID,
		DryRun:    dryRun,
		Actions:   []trade.Action{req.Candidate},
		Actor:     actor,
	})
	if err != nil {
		g.approvalLog.Warnw("Approved candidate not dispatched",
			logger.FieldApprovalID, req.ID,
			logger.FieldError, err)
		return &Decision{Request: req}, errors.Wrapf(err, "approval %s recorded but not dispatched", req.ID)
	}
	return &Decision{Request: req, Outcome: outcome}, nil
}

// Reject resolves the request as rejected. Nothing is forwarded.
func (g *Gate) Reject(ctx context.Context, requestID, actor string) (*Decision, error) {
	req, err := g.resolve(ctx, requestID, StatusRejected, actor)
	if err != nil {
		return nil, err
	}
	return &Decision{Request: req}, nil
}

// resolve runs the CAS and, when it loses, works out why
func (g *Gate) resolve(ctx context.Context, requestID string, to Status, actor string) (*Request, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, errors.NewInvalidRequest("actor is required")
	}

	now := g.now().UTC()
	won, err := g.store.Resolve(ctx, requestID, to, actor, now)
	if err != nil {
		return nil, err
	}

	if !won {
		return nil, g.lostResolve(ctx, requestID, now)
	}

	req, err := g.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	g.resolved(ctx, req)
	g.approvalLog.Infow("Approval request "+string(to),
		logger.FieldApprovalID, req.ID,
		logger.FieldActor, actor,
		logger.FieldRiskTier, req.RiskTier,
		logger.FieldSymbolTicker, req.Candidate.Symbol)
	return req, nil
}

// lostResolve maps a lost CAS to NotFound, AlreadyResolved or Expired.
// A request found pending past its window is flipped to expired here.
func (g *Gate) lostResolve(ctx context.Context, requestID string, now time.Time) error {
	req, err := g.store.Get(ctx, requestID)
	if err != nil {
		return err
	}

	switch req.Status {
	case StatusExpired:
		return errors.Wrapf(ErrExpired, "approval request %s expired at %s", req.ID, req.ExpiresAt.Format(time.RFC3339))
	case StatusPending:
		expired, err := g.store.Expire(ctx, req.ID, now)
		if err != nil {
			return err
		}
		if expired {
			if req, err = g.store.Get(ctx, requestID); err != nil {
				return err
			}
			g.resolved(ctx, req)
			return errors.Wrapf(ErrExpired, "approval request %s expired at %s", req.ID, req.ExpiresAt.Format(time.RFC3339))
		}
		// Someone else resolved it between our CAS and Expire
		if req, err = g.store.Get(ctx, requestID); err != nil {
			return err
		}
		if req.Status == StatusExpired {
			return errors.Wrapf(ErrExpired, "approval request %s", req.ID)
		}
	}

	return errors.WithDetailf(
		errors.Wrapf(ErrAlreadyResolved, "approval request %s is %s", req.ID, req.Status),
		"resolved_by=%s", derefString(req.ResolvedBy))
}

// SweepExpired expires every request past its window. Idempotent.
func (g *Gate) SweepExpired(ctx context.Context) (int, error) {
	ids, err := g.store.ExpireDue(ctx, g.now().UTC())
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	for _, requestID := range ids {
		req, err := g.store.Get(ctx, requestID)
		if err != nil {
			g.approvalLog.Warnw("Expired request vanished", logger.FieldApprovalID, requestID, logger.FieldError, err)
			continue
		}
		if g.broadcaster != nil {
			g.broadcaster.BroadcastApprovalResolved(req)
		}
	}
	g.metrics.RecordApproval(string(StatusExpired), len(ids))
	g.refreshPendingGauge(ctx)
	g.approvalLog.Infow("Expired approval requests", logger.FieldCount, len(ids))
	return len(ids), nil
}

func (g *Gate) resolved(ctx context.Context, req *Request) {
	g.metrics.RecordApproval(string(req.Status), 1)
	g.refreshPendingGauge(ctx)
	if g.broadcaster != nil {
		g.broadcaster.BroadcastApprovalResolved(req)
	}
}

func (g *Gate) refreshPendingGauge(ctx context.Context) {
	if g.metrics == nil {
		return
	}
	n, err := g.store.CountPending(ctx, g.now())
	if err != nil {
		g.approvalLog.Debugw("Pending count unavailable", logger.FieldError, err)
		return
	}
	g.metrics.SetPendingApprovals(n)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
