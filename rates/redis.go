package rates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/vitwit/qrpay/logger"
)

const defaultKeyPrefix = "qrpay:rates:"

// RedisTable reads rates from one hash per currency, keyed by token symbol:
//
//	HSET qrpay:rates:IDR BOME 5739
type RedisTable struct {
	client *redis.Client
	prefix string
	log    logger.Logger
}

var _ Table = (*RedisTable)(nil)

func NewRedisTable(client *redis.Client, log logger.Logger) *RedisTable {
	return &RedisTable{
		client: client,
		prefix: defaultKeyPrefix,
		log:    logger.OrNoop(log),
	}
}

// NewRedisTableFromURL connects using a redis:// URL.
func NewRedisTableFromURL(rawURL string, log logger.Logger) (*RedisTable, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisTable(redis.NewClient(opts), log), nil
}

func (r *RedisTable) key(currency string) string {
	return r.prefix + strings.ToUpper(currency)
}

// Rate implements Table. Lookup failures of any kind are RATE_UNAVAILABLE.
func (r *RedisTable) Rate(ctx context.Context, currency, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(symbol)

	raw, err := r.client.HGet(ctx, r.key(currency), symbol).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Decimal{}, rateUnavailable(currency, symbol, "no rate stored")
	}
	if err != nil {
		r.log.Warn("rate lookup failed", map[string]any{
			"currency": currency,
			"token":    symbol,
			"error":    err,
		})
		return decimal.Decimal{}, rateUnavailable(currency, symbol, err.Error())
	}

	rate, err := decimal.NewFromString(raw)
	if err != nil || !rate.IsPositive() {
		return decimal.Decimal{}, rateUnavailable(currency, symbol, fmt.Sprintf("bad stored rate %q", raw))
	}
	return rate, nil
}

// Publish writes rates for currency. Existing symbols not in rates are kept.
func (r *RedisTable) Publish(ctx context.Context, currency string, rates map[string]decimal.Decimal) error {
	if len(rates) == 0 {
		return nil
	}
	values := make(map[string]any, len(rates))
	for symbol, rate := range rates {
		values[strings.ToUpper(symbol)] = rate.String()
	}
	return r.client.HSet(ctx, r.key(currency), values).Err()
}

func (r *RedisTable) Close() error {
	return r.client.Close()
}
