package coingecko

import "github.com/shopspring/decimal"

// simplePriceResponse represents the response from /simple/price.
// Example response:
//
//	{
//	  "ethereum": {
//	    "usd": 3456.78,
//	    "last_updated_at": 1704067200
//	  }
//	}
type simplePriceResponse map[string]simplePriceData

type simplePriceData struct {
	USD         decimal.NullDecimal `json:"usd"`
	LastUpdated int64               `json:"last_updated_at"`
}

// coinGeckoError represents an error response from the CoinGecko API.
type coinGeckoError struct {
	Error  string `json:"error"`
	Status *struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}
