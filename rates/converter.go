package rates

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vitwit/qrpay/logger"
	"github.com/vitwit/qrpay/types"
)

var two = decimal.NewFromInt(2)

// Converter turns a fiat total into a token amount.
type Converter struct {
	table Table
	log   logger.Logger
}

func NewConverter(table Table, log logger.Logger) *Converter {
	return &Converter{table: table, log: logger.OrNoop(log)}
}

// Quote converts total (in currency) into token units: total / rate, rounded
// half-to-even at the token's precision. The rate is never defaulted.
func (c *Converter) Quote(ctx context.Context, total decimal.Decimal, currency string, token types.Token) (*types.Quote, error) {
	if total.IsNegative() {
		return nil, &types.PaymentError{
			Code:    types.CodeInvalidAmount,
			Message: fmt.Sprintf("total must not be negative, got %s", total),
		}
	}
	if !types.IsSupportedCurrency(currency) {
		return nil, &types.PaymentError{
			Code:    types.CodeUnsupportedCurrency,
			Message: fmt.Sprintf("unsupported currency %q", currency),
			Data:    currency,
		}
	}

	rate, err := c.table.Rate(ctx, currency, token.Symbol)
	if err != nil {
		return nil, err
	}
	if !rate.IsPositive() {
		return nil, rateUnavailable(currency, token.Symbol, "rate must be positive")
	}

	amount := DivRoundHalfEven(total, rate, int32(token.Decimals))

	c.log.Debug("quote computed", map[string]any{
		"currency": currency,
		"total":    total.String(),
		"token":    token.Symbol,
		"rate":     rate.String(),
		"amount":   amount.String(),
	})

	return &types.Quote{
		Currency:    currency,
		Total:       total,
		Token:       token,
		Rate:        rate,
		TokenAmount: amount,
		RateDisplay: fmt.Sprintf("1 %s = %s %s", token.Symbol, rate.String(), currency),
	}, nil
}

// DivRoundHalfEven returns n/d rounded to places decimal places, with ties
// going to the even neighbour. The division is exact before rounding.
func DivRoundHalfEven(n, d decimal.Decimal, places int32) decimal.Decimal {
	q, r := n.Shift(places).QuoRem(d, 0)

	twiceRem := r.Abs().Mul(two)
	switch twiceRem.Cmp(d.Abs()) {
	case 1:
		q = q.Add(awayFromZero(n, d))
	case 0:
		if !q.Mod(two).IsZero() {
			q = q.Add(awayFromZero(n, d))
		}
	}
	return q.Shift(-places)
}

func awayFromZero(n, d decimal.Decimal) decimal.Decimal {
	if n.Sign()*d.Sign() < 0 {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}
