package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Conversion is the answer to "what was the rate between From and To at QueryTimestamp".
type Conversion struct {
	From string
	To   string

	// Rate is the price of From expressed in units of To.
	Rate decimal.Decimal

	// QueryTimestamp is the target time the lookups were resolved against.
	QueryTimestamp time.Time

	// DataTimestamps holds the timestamp of the observation used for each symbol,
	// so callers can judge staleness.
	DataTimestamps map[string]time.Time
}
