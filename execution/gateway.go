package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/internal/metrics"
	"github.com/teranos/tradepulse/logger"
	"github.com/teranos/tradepulse/trade"
)

// Broadcaster publishes gateway events.
// Defined here so the gateway does not depend on the server package.
type Broadcaster interface {
	BroadcastGatewayExecuted(outcome *Outcome)
	BroadcastKillSwitchChanged(state KillSwitchState)
}

// completeTimeout bounds the write of a finished outcome snapshot
const completeTimeout = 10 * time.Second

// Config configures the gateway
type Config struct {
	IdempotencyTTL     time.Duration // default 600s
	MaxOrdersPerMinute int           // live broker calls; 0 = unlimited
}

// Gateway dispatches actions exactly once per request id
type Gateway struct {
	cache       IdempotencyCache
	killSwitch  KillSwitch
	broker      Broker
	limiter     *rate.Limiter
	ttl         time.Duration
	locks       *keyedMutex
	broadcaster Broadcaster
	metrics     *metrics.Collector
	now         func() time.Time

	logger  *zap.SugaredLogger
	gwLog   *zap.SugaredLogger // Logger with Gateway symbol pre-attached
	haltLog *zap.SugaredLogger // Logger with KillSwitch symbol pre-attached
}

// NewGateway creates a gateway
func NewGateway(cache IdempotencyCache, killSwitch KillSwitch, broker Broker, cfg Config, log *zap.SugaredLogger) *Gateway {
	if log == nil {
		log = logger.ComponentLogger("gateway")
	}
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.MaxOrdersPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MaxOrdersPerMinute)), cfg.MaxOrdersPerMinute)
	}

	return &Gateway{
		cache:      cache,
		killSwitch: killSwitch,
		broker:     broker,
		limiter:    limiter,
		ttl:        ttl,
		locks:      newKeyedMutex(),
		now:        time.Now,
		logger:     log,
		gwLog:      logger.AddGatewaySymbol(log),
		haltLog:    logger.AddKillSwitchSymbol(log),
	}
}

// SetBroadcaster wires gateway events to b
func (g *Gateway) SetBroadcaster(b Broadcaster) {
	g.broadcaster = b
}

// SetMetrics wires Prometheus collectors
func (g *Gateway) SetMetrics(m *metrics.Collector) {
	g.metrics = m
}

// Execute runs the request once. A request id seen within the TTL returns
// the stored outcome with Duplicate set and never reaches the broker. A live
// call while the kill-switch is on fails with ErrTradingHalted and leaves no
// cache entry.
func (g *Gateway) Execute(ctx context.Context, req Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		g.metrics.RecordGatewayRequest("invalid")
		return nil, err
	}

	unlock := g.locks.Lock(req.RequestID)
	defer unlock()

	log := g.gwLog.With(logger.FieldRequestID, req.RequestID, logger.FieldDryRun, req.DryRun)

	cached, err := g.cache.Get(ctx, req.RequestID, g.now())
	if err != nil {
		g.metrics.RecordGatewayRequest("error")
		return nil, err
	}
	if cached != nil {
		return g.replay(cached, log)
	}

	if !req.DryRun {
		state, err := g.killSwitch.State(ctx)
		if err != nil {
			g.metrics.RecordGatewayRequest("error")
			return nil, errors.Wrap(err, "failed to read kill-switch")
		}
		if state.Enabled {
			g.metrics.RecordGatewayRequest("halted")
			g.haltLog.Warnw("Live execute refused, trading halted",
				logger.FieldRequestID, req.RequestID,
				logger.FieldActor, req.Actor,
				"halted_by", state.SetBy,
				"version", state.Version)
			return nil, errors.Wrapf(ErrTradingHalted, "request %s", req.RequestID)
		}
	}

	now := g.now()
	entry, reserved, err := g.cache.Reserve(ctx, req.RequestID, now, g.ttl)
	if err != nil {
		g.metrics.RecordGatewayRequest("error")
		return nil, err
	}
	if !reserved {
		// Another process won the reservation between Get and Reserve
		return g.replay(entry, log)
	}

	outcome := &Outcome{
		RequestID:  req.RequestID,
		DryRun:     req.DryRun,
		Results:    g.dispatch(ctx, req),
		ExecutedAt: now.UTC(),
	}
	outcome.Status = summarize(outcome.Results)

	snapshot, err := json.Marshal(outcome)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode outcome")
	}
	if err := g.complete(ctx, entry, snapshot); err != nil {
		// Orders were placed; the caller gets the outcome and the entry stays pending until it expires
		log.Errorw("Failed to cache outcome", logger.FieldError, err)
	}

	ok, failed := outcome.Counts()
	g.metrics.RecordGatewayRequest(string(outcome.Status))
	log.Infow("Execute "+string(outcome.Status),
		logger.FieldActor, req.Actor,
		"ok", ok,
		"failed", failed)
	if g.broadcaster != nil {
		g.broadcaster.BroadcastGatewayExecuted(outcome)
	}
	return outcome, nil
}

// complete stores the outcome on a context detached from the caller's, so a
// client that hangs up after orders were placed still leaves a replayable entry.
func (g *Gateway) complete(ctx context.Context, entry *Entry, snapshot []byte) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completeTimeout)
	defer cancel()
	return g.cache.Complete(ctx, entry, snapshot)
}

// replay answers from a cache entry
func (g *Gateway) replay(entry *Entry, log *zap.SugaredLogger) (*Outcome, error) {
	if entry.State != EntryCompleted {
		g.metrics.RecordGatewayRequest("in_flight")
		return nil, errors.Wrapf(ErrRequestInFlight, "request %s", entry.RequestID)
	}

	var outcome Outcome
	if err := json.Unmarshal(entry.Snapshot, &outcome); err != nil {
		g.metrics.RecordGatewayRequest("error")
		return nil, errors.Wrapf(err, "corrupt outcome snapshot for request %s", entry.RequestID)
	}
	outcome.Duplicate = true

	g.metrics.RecordGatewayRequest("duplicate")
	log.Infow("Duplicate request, returning stored outcome",
		logger.FieldStatus, outcome.Status,
		"first_seen_at", entry.FirstSeenAt.Format(time.RFC3339))
	return &outcome, nil
}

// dispatch runs every action. Failures stay per action; nothing escapes.
func (g *Gateway) dispatch(ctx context.Context, req Request) []ActionResult {
	results := make([]ActionResult, 0, len(req.Actions))
	for i, action := range req.Actions {
		action = action.Normalize()
		var result ActionResult
		if req.DryRun {
			result = simulate(i, action)
		} else {
			result = g.place(ctx, req.RequestID, i, action)
		}
		g.metrics.RecordGatewayAction(string(result.Status), req.DryRun)
		results = append(results, result)
	}
	return results
}

// simulate produces a fill without touching the broker
func simulate(index int, action trade.Action) ActionResult {
	qty := action.Quantity
	return ActionResult{
		Index:          index,
		Action:         action,
		Status:         ActionSimulated,
		OrderID:        "sim-" + uuid.NewString(),
		FilledQuantity: &qty,
		FillPrice:      action.LimitPrice,
	}
}

// place sends one live order through the rate limiter
func (g *Gateway) place(ctx context.Context, requestID string, index int, action trade.Action) (result ActionResult) {
	result = ActionResult{Index: index, Action: action}
	defer func() {
		if r := recover(); r != nil {
			result.Status = ActionFailed
			result.Error = fmt.Sprintf("broker panicked: %v", r)
		}
	}()

	if err := g.limiter.Wait(ctx); err != nil {
		result.Status = ActionFailed
		result.Error = errors.Wrap(err, "rate limit").Error()
		return result
	}

	clientOrderID := fmt.Sprintf("%s-%d", requestID, index)
	fill, err := g.broker.PlaceOrder(ctx, action, clientOrderID)
	if err != nil {
		result.Status = ActionFailed
		result.Error = err.Error()
		g.gwLog.Warnw("Order failed",
			logger.FieldRequestID, requestID,
			logger.FieldSymbolTicker, action.Symbol,
			logger.FieldSide, action.Side,
			logger.FieldQuantity, action.Quantity.String(),
			logger.FieldError, err)
		return result
	}

	result.Status = ActionFilled
	result.OrderID = fill.OrderID
	result.FilledQuantity = &fill.Quantity
	result.FillPrice = &fill.Price
	return result
}

// SetKillSwitch sets the halt flag unconditionally. In-flight calls finish.
func (g *Gateway) SetKillSwitch(ctx context.Context, enabled bool, actor string) (KillSwitchState, error) {
	if actor == "" {
		return KillSwitchState{}, errors.NewInvalidRequest("actor is required")
	}
	state, err := g.killSwitch.Set(ctx, enabled, actor, g.now())
	if err != nil {
		return KillSwitchState{}, err
	}

	g.metrics.SetKillSwitch(state.Enabled)
	if state.Enabled {
		g.haltLog.Warnw("Kill-switch ENABLED, live trading halted", logger.FieldActor, actor, "version", state.Version)
	} else {
		g.haltLog.Infow("Kill-switch disabled, live trading resumed", logger.FieldActor, actor, "version", state.Version)
	}
	if g.broadcaster != nil {
		g.broadcaster.BroadcastKillSwitchChanged(state)
	}
	return state, nil
}

// KillSwitchState reads the halt flag
func (g *Gateway) KillSwitchState(ctx context.Context) (KillSwitchState, error) {
	state, err := g.killSwitch.State(ctx)
	if err != nil {
		return KillSwitchState{}, err
	}
	g.metrics.SetKillSwitch(state.Enabled)
	return state, nil
}

// PurgeExpired drops idempotency entries past their TTL
func (g *Gateway) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := g.cache.PurgeExpired(ctx, g.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		g.gwLog.Debugw("Purged expired idempotency entries", logger.FieldCount, n)
	}
	return n, nil
}

// keyedMutex serializes callers per key and frees idle keys
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns its unlock func
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
