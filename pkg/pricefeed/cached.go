package pricefeed

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// DefaultCacheTTL keeps prices fresh enough for a one-minute cycle.
	DefaultCacheTTL = 30 * time.Second
	cacheKeyPrefix  = "orbit:price:"
)

// CachedFeed serves prices from redis and falls through to an inner feed
// for misses. Redis failures degrade to the inner feed.
type CachedFeed struct {
	inner  Feed
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedFeed wraps inner with a redis cache.
func NewCachedFeed(inner Feed, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedFeed {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedFeed{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (c *CachedFeed) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = cacheKeyPrefix + strings.ToUpper(s)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("price cache unavailable, using upstream feed", "error", err)
		return c.inner.GetPrices(ctx, symbols)
	}

	prices := make(map[string]float64, len(symbols))
	var misses []string
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			misses = append(misses, symbols[i])
			continue
		}
		price, err := strconv.ParseFloat(str, 64)
		if err != nil || price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
			misses = append(misses, symbols[i])
			continue
		}
		prices[strings.ToUpper(symbols[i])] = price
	}
	if len(misses) == 0 {
		return prices, nil
	}

	fetched, err := c.inner.GetPrices(ctx, misses)
	if err != nil {
		return nil, err
	}

	if len(fetched) == 0 {
		return prices, nil
	}

	pipe := c.client.Pipeline()
	for sym, price := range fetched {
		prices[sym] = price
		pipe.Set(ctx, cacheKeyPrefix+sym, strconv.FormatFloat(price, 'f', -1, 64), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("write price cache", "error", err)
	}
	return prices, nil
}

// Ping checks the redis connection.
func (c *CachedFeed) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
