package venue

import (
	"fmt"

	"candlecore/internal/httpclient"
)

// SupportedVenues lists every venue type name accepted in a
// [STOCK_EXCHANGE_N] config section's Type field.
func SupportedVenues() []string {
	return []string{"BINANCE", "BYBIT", "OKX", "MOEX"}
}

// New builds the Adapter for a venue type name, the same switch-on-type
// factory role the source's makeStockEchange() plays for its IKLine tree.
func New(venueType string, http *httpclient.Client, symbols []string) (Adapter, error) {
	switch venueType {
	case "BINANCE":
		return NewBinance(http, symbols), nil
	case "BYBIT":
		return NewBybit(http, symbols), nil
	case "OKX":
		return NewOKX(http, symbols), nil
	case "MOEX":
		return NewMoex(http, symbols), nil
	default:
		return nil, fmt.Errorf("venue: unsupported type %q (supported: %v)", venueType, SupportedVenues())
	}
}
