// Package trade defines the candidate action that flows from job runs
// through the approval gate into the execution gateway.
package trade

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/teranos/tradepulse/errors"
)

// Side is the direction of an order
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// InstrumentType distinguishes asset classes for risk classification
type InstrumentType string

const (
	InstrumentEquity InstrumentType = "equity"
	InstrumentETF    InstrumentType = "etf"
	InstrumentOption InstrumentType = "option"
	InstrumentFuture InstrumentType = "future"
	InstrumentCrypto InstrumentType = "crypto"
)

// Action is a proposed external side effect: one order.
// Quantity and LimitPrice are decimals; floats never carry money here.
type Action struct {
	Symbol         string           `json:"symbol"`
	Side           Side             `json:"side"`
	Quantity       decimal.Decimal  `json:"quantity"`
	LimitPrice     *decimal.Decimal `json:"limit_price,omitempty"` // nil = market order
	InstrumentType InstrumentType   `json:"instrument_type,omitempty"`
	Rationale      string           `json:"rationale,omitempty"`
	RiskTier       RiskTier         `json:"risk_tier,omitempty"` // set by the job runner or by Classify
}

// Validate rejects malformed actions at the boundary
func (a Action) Validate() error {
	if strings.TrimSpace(a.Symbol) == "" {
		return errors.NewInvalidRequest("action symbol is required")
	}
	switch a.Side {
	case SideBuy, SideSell:
	default:
		return errors.NewInvalidRequest("action %s: side must be %q or %q, got %q", a.Symbol, SideBuy, SideSell, a.Side)
	}
	if !a.Quantity.IsPositive() {
		return errors.NewInvalidRequest("action %s: quantity must be positive, got %s", a.Symbol, a.Quantity)
	}
	if a.LimitPrice != nil && !a.LimitPrice.IsPositive() {
		return errors.NewInvalidRequest("action %s: limit price must be positive, got %s", a.Symbol, a.LimitPrice)
	}
	if a.RiskTier != "" && !a.RiskTier.Valid() {
		return errors.NewInvalidRequest("action %s: unknown risk tier %q", a.Symbol, a.RiskTier)
	}
	return nil
}

// Notional is quantity × limit price. Market orders have no known price and
// report zero with ok=false.
func (a Action) Notional() (decimal.Decimal, bool) {
	if a.LimitPrice == nil {
		return decimal.Zero, false
	}
	return a.Quantity.Mul(*a.LimitPrice), true
}

// Normalize upper-cases the ticker and lower-cases enum fields
func (a Action) Normalize() Action {
	a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
	a.Side = Side(strings.ToLower(string(a.Side)))
	a.InstrumentType = InstrumentType(strings.ToLower(string(a.InstrumentType)))
	a.RiskTier = RiskTier(strings.ToLower(string(a.RiskTier)))
	return a
}

// ValidateAll validates every action, reporting the first failure with its index
func ValidateAll(actions []Action) error {
	for i, a := range actions {
		if err := a.Validate(); err != nil {
			return errors.Wrapf(err, "actions[%d]", i)
		}
	}
	return nil
}
