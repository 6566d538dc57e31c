package trade

import (
	"github.com/shopspring/decimal"
)

// RiskTier is attached to a candidate at submission and never recomputed
type RiskTier string

const (
	RiskLow  RiskTier = "low"
	RiskHigh RiskTier = "high"
)

// Valid reports whether t is a known tier
func (t RiskTier) Valid() bool {
	return t == RiskLow || t == RiskHigh
}

// RiskPolicy holds the thresholds used by Classify
type RiskPolicy struct {
	HighNotional     decimal.Decimal  // notional at or above this is high risk; zero disables the check
	HighInstruments  []InstrumentType // asset classes that are always high risk
	MarketOrdersHigh bool             // treat orders without a limit price as high risk
}

// DefaultRiskPolicy is $10k notional plus derivatives and crypto
func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{
		HighNotional:    decimal.NewFromInt(10000),
		HighInstruments: []InstrumentType{InstrumentOption, InstrumentFuture, InstrumentCrypto},
	}
}

// IsZero reports whether p has no rule at all
func (p RiskPolicy) IsZero() bool {
	return p.HighNotional.IsZero() && len(p.HighInstruments) == 0 && !p.MarketOrdersHigh
}

// NewRiskPolicy builds a policy from configuration values
func NewRiskPolicy(highNotional decimal.Decimal, instruments []string) RiskPolicy {
	p := RiskPolicy{HighNotional: highNotional}
	for _, s := range instruments {
		p.HighInstruments = append(p.HighInstruments, InstrumentType(s))
	}
	return p
}

// Classify is a pure function of the action and the policy.
// A tier supplied by the job runner can be escalated but never downgraded.
func Classify(a Action, p RiskPolicy) RiskTier {
	if a.RiskTier == RiskHigh {
		return RiskHigh
	}
	for _, inst := range p.HighInstruments {
		if a.InstrumentType == inst {
			return RiskHigh
		}
	}
	notional, priced := a.Notional()
	if !priced {
		if p.MarketOrdersHigh {
			return RiskHigh
		}
		return RiskLow
	}
	if p.HighNotional.IsPositive() && notional.GreaterThanOrEqual(p.HighNotional) {
		return RiskHigh
	}
	return RiskLow
}
