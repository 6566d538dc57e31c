package execution

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/trade"
)

// Fill is a broker's confirmation of one order
type Fill struct {
	OrderID  string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	FilledAt time.Time
}

// Broker places live orders. clientOrderID is stable for a request id and
// action index so a broker that deduplicates can use it.
type Broker interface {
	PlaceOrder(ctx context.Context, action trade.Action, clientOrderID string) (Fill, error)
}

// PaperOrder is an order accepted by PaperBroker
type PaperOrder struct {
	ClientOrderID string
	Action        trade.Action
	Fill          Fill
}

// PaperBroker fills orders in memory at the limit price or the last quote.
// It stands in for a live broker adapter in local runs and tests.
type PaperBroker struct {
	mu      sync.Mutex
	quotes  map[string]decimal.Decimal
	rejects map[string]error
	orders  []PaperOrder
	now     func() time.Time
}

// NewPaperBroker creates a paper broker with initial quotes keyed by symbol
func NewPaperBroker(quotes map[string]decimal.Decimal) *PaperBroker {
	b := &PaperBroker{
		quotes:  make(map[string]decimal.Decimal),
		rejects: make(map[string]error),
		now:     time.Now,
	}
	for symbol, price := range quotes {
		b.quotes[strings.ToUpper(symbol)] = price
	}
	return b
}

// SetQuote sets the market price used for orders without a limit
func (b *PaperBroker) SetQuote(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[strings.ToUpper(symbol)] = price
}

// Reject makes every order for symbol fail with err
func (b *PaperBroker) Reject(symbol string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejects[strings.ToUpper(symbol)] = err
}

// PlaceOrder fills the order immediately
func (b *PaperBroker) PlaceOrder(ctx context.Context, action trade.Action, clientOrderID string) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	symbol := strings.ToUpper(action.Symbol)
	if err, ok := b.rejects[symbol]; ok {
		return Fill{}, errors.Wrapf(err, "order %s rejected", clientOrderID)
	}

	price, ok := b.quotes[symbol]
	if action.LimitPrice != nil {
		price, ok = *action.LimitPrice, true
	}
	if !ok {
		return Fill{}, errors.Newf("no quote for %s", symbol)
	}

	fill := Fill{
		OrderID:  "paper-" + uuid.NewString(),
		Quantity: action.Quantity,
		Price:    price,
		FilledAt: b.now().UTC(),
	}
	b.orders = append(b.orders, PaperOrder{ClientOrderID: clientOrderID, Action: action, Fill: fill})
	return fill, nil
}

// Orders returns a copy of every accepted order
func (b *PaperBroker) Orders() []PaperOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]PaperOrder(nil), b.orders...)
}

// OrderCount returns the number of accepted orders
func (b *PaperBroker) OrderCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}
