package rates

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vitwit/qrpay/types"
)

// Table provides the price of one whole token unit in a reference currency.
type Table interface {
	Rate(ctx context.Context, currency, symbol string) (decimal.Decimal, error)
}

// DefaultRates are the IDR prices shipped with the wallet.
func DefaultRates() map[string]map[string]decimal.Decimal {
	idr := map[string]int64{
		"BOME":  5739,
		"ETH":   52_000_000,
		"USDT":  15_500,
		"SOL":   3_200_000,
		"MATIC": 7_500,
		"BNB":   9_500_000,
		"USDC":  15_500,
		"DAI":   15_500,
		"BUSD":  15_500,
		"CAKE":  75_000,
		"RAY":   25_000,
		"SRM":   8_500,
	}

	out := map[string]map[string]decimal.Decimal{types.CurrencyIDR: {}}
	for symbol, v := range idr {
		out[types.CurrencyIDR][symbol] = decimal.NewFromInt(v)
	}
	return out
}

// StaticTable is an in-memory rate table. It can be updated at runtime.
type StaticTable struct {
	mu    sync.RWMutex
	rates map[string]map[string]decimal.Decimal
}

var _ Table = (*StaticTable)(nil)

func NewStaticTable(rates map[string]map[string]decimal.Decimal) *StaticTable {
	t := &StaticTable{rates: make(map[string]map[string]decimal.Decimal)}
	for currency, bySymbol := range rates {
		for symbol, rate := range bySymbol {
			t.set(currency, symbol, rate)
		}
	}
	return t
}

// StaticTableFromConfig builds a table from the config "rates" section,
// layered over DefaultRates.
func StaticTableFromConfig(cfg map[string]map[string]string) (*StaticTable, error) {
	t := NewStaticTable(DefaultRates())
	for currency, bySymbol := range cfg {
		for symbol, raw := range bySymbol {
			rate, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, &types.PaymentError{
					Code:    types.CodeConfigError,
					Message: fmt.Sprintf("rate %s/%s: %v", currency, symbol, err),
				}
			}
			t.Set(currency, symbol, rate)
		}
	}
	return t, nil
}

// Set replaces a single rate.
func (t *StaticTable) Set(currency, symbol string, rate decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set(currency, symbol, rate)
}

func (t *StaticTable) set(currency, symbol string, rate decimal.Decimal) {
	currency, symbol = strings.ToUpper(currency), strings.ToUpper(symbol)
	if t.rates[currency] == nil {
		t.rates[currency] = make(map[string]decimal.Decimal)
	}
	t.rates[currency][symbol] = rate
}

// Rate implements Table. A missing or non-positive entry is RATE_UNAVAILABLE.
func (t *StaticTable) Rate(_ context.Context, currency, symbol string) (decimal.Decimal, error) {
	t.mu.RLock()
	rate, ok := t.rates[strings.ToUpper(currency)][strings.ToUpper(symbol)]
	t.mu.RUnlock()

	if !ok || !rate.IsPositive() {
		return decimal.Decimal{}, rateUnavailable(currency, symbol, "no rate configured")
	}
	return rate, nil
}

func rateUnavailable(currency, symbol, reason string) error {
	return &types.PaymentError{
		Code:    types.CodeRateUnavailable,
		Message: fmt.Sprintf("no usable %s rate for %s: %s", currency, symbol, reason),
		Data:    map[string]string{"currency": currency, "token": symbol},
	}
}
