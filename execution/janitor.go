package execution

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/tradepulse/db"
	"github.com/teranos/tradepulse/logger"
)

// DefaultJanitorInterval is how often expired idempotency rows are purged
const DefaultJanitorInterval = time.Minute

// Janitor purges expired idempotency entries on an interval
type Janitor struct {
	gateway  *Gateway
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *zap.SugaredLogger
}

// NewJanitor creates a janitor for gateway's cache
func NewJanitor(gateway *Gateway, interval time.Duration, log *zap.SugaredLogger) *Janitor {
	if log == nil {
		log = logger.ComponentLogger("gateway")
	}
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Janitor{
		gateway:  gateway,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.AddGatewaySymbol(log),
	}
}

// Start begins purging
func (j *Janitor) Start() {
	j.wg.Add(1)
	go j.run()
}

// Stop ends the loop and waits for it
func (j *Janitor) Stop() {
	j.cancel()
	j.wg.Wait()
}

func (j *Janitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.purge()
		}
	}
}

func (j *Janitor) purge() {
	_, err := j.gateway.PurgeExpired(j.ctx)
	switch {
	case err == nil, j.ctx.Err() != nil:
	case db.IsDatabaseClosed(err):
		j.logger.Debugw("Idempotency purge skipped, database closed")
	default:
		j.logger.Warnw("Idempotency purge failed", logger.FieldError, err)
	}
}
