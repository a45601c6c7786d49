package domain

import (
	"fmt"
	"strings"
)

// Market identifies the index a ticker's exchange is benchmarked against.
type Market string

const (
	MarketNASDAQ Market = "^IXIC"
	MarketNYSE   Market = "^NYA"
	MarketAMEX   Market = "^XAX"
)

// marketAliases maps exchange names reported by the price sources onto the
// market vocabulary.
var marketAliases = map[string]Market{
	"NASDAQ":       MarketNASDAQ,
	"INDEXNASDAQ":  MarketNASDAQ,
	"OTC":          MarketNASDAQ,
	"INDEXNYSEGIS": MarketNYSE,
	"NYSE":         MarketNYSE,
	"NYSEAMERICAN": MarketNYSE,
	"ARCA":         MarketNYSE,
	"NYSEARCA":     MarketNYSE,
	"BATS":         MarketNYSE,
	"NYSEAMEX":     MarketAMEX,
	"AMEX":         MarketAMEX,
	"^XAX":         MarketAMEX,
	"^IXIC":        MarketNASDAQ,
	"^NYA":         MarketNYSE,
}

// NormalizeMarket maps an exchange string onto the market vocabulary.
func NormalizeMarket(exchange string) (Market, error) {
	m, ok := marketAliases[strings.ToUpper(strings.TrimSpace(exchange))]
	if !ok {
		return "", fmt.Errorf("unknown exchange %q", exchange)
	}
	return m, nil
}

// Valid reports whether m belongs to the market vocabulary.
func (m Market) Valid() bool {
	switch m {
	case MarketNASDAQ, MarketNYSE, MarketAMEX:
		return true
	}
	return false
}
