package pricefeed

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var defaultCoinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"MATIC": "matic-network",
	"DOT":   "polkadot",
	"AVAX":  "avalanche-2",
}

// CoinIDs maps token symbols to CoinGecko coin ids.
type CoinIDs struct {
	mu  sync.RWMutex
	ids map[string]string
}

// NewCoinIDs creates a registry seeded with the built-in table.
func NewCoinIDs() *CoinIDs {
	ids := make(map[string]string, len(defaultCoinIDs))
	for sym, id := range defaultCoinIDs {
		ids[sym] = id
	}
	return &CoinIDs{ids: ids}
}

// Resolve returns the coin id for symbol. Unknown symbols fall back to the
// lower-cased symbol.
func (c *CoinIDs) Resolve(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	c.mu.RLock()
	defer c.mu.RUnlock()

	if id, ok := c.ids[symbol]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

// Merge adds or replaces mappings.
func (c *CoinIDs) Merge(overrides map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for sym, id := range overrides {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		id = strings.TrimSpace(id)
		if sym == "" || id == "" {
			continue
		}
		c.ids[sym] = id
	}
}

// Symbols returns all explicitly mapped symbols, sorted.
func (c *CoinIDs) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.ids))
	for sym := range c.ids {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

type coinIDFile struct {
	Coins map[string]string `yaml:"coins"`
}

// LoadCoinIDs reads symbol overrides from a YAML file of the form
//
//	coins:
//	  PEPE: pepe
func LoadCoinIDs(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read coin id file %s: %w", path, err)
	}

	var f coinIDFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse coin id file %s: %w", path, err)
	}
	if len(f.Coins) == 0 {
		return nil, fmt.Errorf("coin id file %s: no coins defined", path)
	}
	return f.Coins, nil
}
