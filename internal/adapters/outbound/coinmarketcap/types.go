package coinmarketcap

import (
	"time"

	"github.com/shopspring/decimal"
)

// quotesLatestResponse represents the response from /v1/cryptocurrency/quotes/latest.
// Example response:
//
//	{
//	  "status": {"error_code": 0, "error_message": null},
//	  "data": {
//	    "BTC": {
//	      "id": 1,
//	      "symbol": "BTC",
//	      "quote": {"USD": {"price": 43250.12, "last_updated": "2024-01-01T00:00:00.000Z"}}
//	    }
//	  }
//	}
type quotesLatestResponse struct {
	Status status               `json:"status"`
	Data   map[string]coinQuote `json:"data"`
}

type status struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type coinQuote struct {
	ID     int64            `json:"id"`
	Symbol string           `json:"symbol"`
	Quote  map[string]quote `json:"quote"`
}

type quote struct {
	Price       decimal.NullDecimal `json:"price"`
	LastUpdated time.Time           `json:"last_updated"`
}

// errorEnvelope is the subset of any CoinMarketCap response used to detect API errors.
type errorEnvelope struct {
	Status *status `json:"status"`
}
