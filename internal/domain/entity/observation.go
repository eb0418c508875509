// Package entity contains the domain types shared by the ingestion and conversion services.
package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxSymbolLength matches the width of the symbol column.
const MaxSymbolLength = 10

// MaxSourceLength matches the width of the source column.
const MaxSourceLength = 50

// PriceScale is the number of decimal places stored for a price (NUMERIC(26,8)).
const PriceScale = 8

// maxPriceUSD is the first value with more integer digits than the price column holds.
var maxPriceUSD = decimal.New(1, 26-PriceScale)

// Observation is a single USD price reported by a provider for one symbol.
// Observations are append-only: once stored they are never updated.
type Observation struct {
	// ID is the storage-assigned insertion order. Zero until persisted.
	ID int64

	// Symbol is the uppercase ticker, e.g. "BTC".
	Symbol string

	// PriceUSD is the positive USD price.
	PriceUSD decimal.Decimal

	// Timestamp is when the provider last updated the price, not when it was fetched.
	Timestamp time.Time

	// Source is the name of the provider that reported the price.
	Source string

	// IngestedAt is set by the store on write.
	IngestedAt time.Time
}

// NewObservation builds a validated observation. The symbol is normalized to uppercase,
// the price rounded to PriceScale places and the timestamp converted to UTC.
func NewObservation(symbol string, priceUSD decimal.Decimal, timestamp time.Time, source string) (*Observation, error) {
	o := &Observation{
		Symbol:    NormalizeSymbol(symbol),
		PriceUSD:  priceUSD.Round(PriceScale),
		Timestamp: timestamp.UTC(),
		Source:    source,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks that the observation can be persisted. The price is checked as it
// will be stored, after rounding to PriceScale places.
func (o *Observation) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if len(o.Symbol) > MaxSymbolLength {
		return fmt.Errorf("symbol %q exceeds %d characters", o.Symbol, MaxSymbolLength)
	}
	stored := o.PriceUSD.Round(PriceScale)
	if !stored.IsPositive() {
		return fmt.Errorf("price for %s must be positive at %d decimal places, got %s", o.Symbol, PriceScale, o.PriceUSD)
	}
	if stored.GreaterThanOrEqual(maxPriceUSD) {
		return fmt.Errorf("price for %s exceeds %d integer digits, got %s", o.Symbol, 26-PriceScale, o.PriceUSD)
	}
	if o.Timestamp.IsZero() {
		return fmt.Errorf("timestamp for %s is required", o.Symbol)
	}
	if o.Source == "" {
		return fmt.Errorf("source for %s is required", o.Symbol)
	}
	if len(o.Source) > MaxSourceLength {
		return fmt.Errorf("source %q exceeds %d characters", o.Source, MaxSourceLength)
	}
	return nil
}

// NormalizeSymbol trims and uppercases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
