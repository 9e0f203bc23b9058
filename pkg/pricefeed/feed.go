// Package pricefeed resolves token symbols to current USD prices.
package pricefeed

import "context"

// Feed returns USD prices for a batch of token symbols. Symbols without a
// known positive price are absent from the result.
type Feed interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}
