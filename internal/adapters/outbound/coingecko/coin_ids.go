package coingecko

import (
	"fmt"
	"sort"
	"strings"

	"github.com/archon-research/spotrate/internal/domain/entity"
)

// DefaultCoinIDs maps the default allow-list to CoinGecko coin IDs.
var DefaultCoinIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"USDT": "tether",
	"BNB":  "binancecoin",
	"SOL":  "solana",
	"XRP":  "ripple",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
}

// ParseCoinIDs parses "SYM:coin-id" pairs separated by commas, e.g. "BTC:bitcoin,ETH:ethereum".
// Entries override DefaultCoinIDs. Each coin id may back only one symbol.
func ParseCoinIDs(raw string) (map[string]string, error) {
	ids := make(map[string]string, len(DefaultCoinIDs))
	for sym, id := range DefaultCoinIDs {
		ids[sym] = id
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		sym, id, ok := strings.Cut(pair, ":")
		sym, id = entity.NormalizeSymbol(sym), strings.TrimSpace(id)
		if !ok || sym == "" || id == "" {
			return nil, fmt.Errorf("invalid coin id mapping %q (want SYMBOL:coin-id)", pair)
		}
		ids[sym] = id
	}
	if err := checkUniqueCoinIDs(ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// checkUniqueCoinIDs rejects two symbols sharing a coin id, since a price in the
// response can only be attributed to one of them.
func checkUniqueCoinIDs(ids map[string]string) error {
	symbols := make([]string, 0, len(ids))
	for sym := range ids {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	owner := make(map[string]string, len(ids))
	for _, sym := range symbols {
		id := ids[sym]
		if prev, ok := owner[id]; ok {
			return fmt.Errorf("coin id %q is mapped to both %s and %s", id, prev, sym)
		}
		owner[id] = sym
	}
	return nil
}
