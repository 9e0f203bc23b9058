package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const defaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// CoinGeckoConfig configures the CoinGecko client.
type CoinGeckoConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// CoinGecko fetches prices from the CoinGecko simple price endpoint.
type CoinGecko struct {
	baseURL string
	apiKey  string
	ids     *CoinIDs
	client  *http.Client
}

// NewCoinGecko creates a CoinGecko feed. A nil ids uses the built-in table.
func NewCoinGecko(cfg CoinGeckoConfig, ids *CoinIDs) *CoinGecko {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCoinGeckoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if ids == nil {
		ids = NewCoinIDs()
	}
	return &CoinGecko{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		ids:     ids,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// GetPrices issues one batched request for all symbols.
func (g *CoinGecko) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))

	bySymbol := make(map[string]string, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		bySymbol[s] = g.ids.Resolve(s)
	}
	if len(bySymbol) == 0 {
		return prices, nil
	}

	idSet := make(map[string]struct{}, len(bySymbol))
	for _, id := range bySymbol {
		idSet[id] = struct{}{}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coingecko returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode prices: %w", err)
	}

	for sym, id := range bySymbol {
		price, ok := out[id]["usd"]
		if !ok || price <= 0 || math.IsInf(price, 0) || math.IsNaN(price) {
			continue
		}
		prices[sym] = price
	}
	return prices, nil
}
