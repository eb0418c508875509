package entity

import "strings"

// DefaultSymbols is the allow-list used when none is configured.
const DefaultSymbols = "BTC,ETH,USDT,BNB,SOL,XRP,ADA,DOGE"

// SymbolSet is the configured allow-list of tickers. Order is preserved so that
// providers are always asked for symbols in the same order.
type SymbolSet struct {
	ordered []string
	members map[string]struct{}
}

// NewSymbolSet builds an allow-list from the given tickers. Entries are trimmed and
// uppercased; blanks and duplicates are dropped.
func NewSymbolSet(symbols ...string) SymbolSet {
	s := SymbolSet{members: make(map[string]struct{}, len(symbols))}
	for _, sym := range symbols {
		sym = NormalizeSymbol(sym)
		if sym == "" {
			continue
		}
		if _, ok := s.members[sym]; ok {
			continue
		}
		s.members[sym] = struct{}{}
		s.ordered = append(s.ordered, sym)
	}
	return s
}

// ParseSymbolSet parses a comma-separated ticker list such as "btc, ETH,sol".
func ParseSymbolSet(csv string) SymbolSet {
	return NewSymbolSet(strings.Split(csv, ",")...)
}

// Contains reports whether symbol is allow-listed, ignoring case.
func (s SymbolSet) Contains(symbol string) bool {
	_, ok := s.members[NormalizeSymbol(symbol)]
	return ok
}

// Symbols returns a copy of the allow-list in configuration order.
func (s SymbolSet) Symbols() []string {
	out := make([]string, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len returns the number of allow-listed symbols.
func (s SymbolSet) Len() int {
	return len(s.ordered)
}

func (s SymbolSet) String() string {
	return strings.Join(s.ordered, ",")
}
