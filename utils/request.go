package utils

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vitwit/qrpay/types"
)

// AdminFeeRate is the merchant admin fee applied to dynamic QR codes.
var AdminFeeRate = decimal.RequireFromString("0.1")

type amountBounds struct {
	min, max decimal.Decimal
}

var dynamicBounds = map[string]amountBounds{
	types.CurrencyIDR: {decimal.NewFromInt(10_000), decimal.NewFromInt(1_000_000)},
	types.CurrencyUSD: {decimal.NewFromInt(1), decimal.NewFromInt(100)},
}

// NewDynamicPaymentRequest builds the request a merchant encodes into a
// dynamic QR code: the fee is rounded to whole currency units and added to
// the amount to form the total.
func NewDynamicPaymentRequest(merchant, currency, amount string) (*types.PaymentRequest, error) {
	if merchant == "" {
		return nil, missingField(fieldMerchant)
	}

	bounds, ok := dynamicBounds[currency]
	if !ok {
		return nil, &types.PaymentError{
			Code:    types.CodeUnsupportedCurrency,
			Message: fmt.Sprintf("unsupported currency %q", currency),
			Data:    currency,
		}
	}

	value, err := ValidateAmount(amount)
	if err != nil {
		return nil, &types.PaymentError{
			Code:    types.CodeInvalidAmount,
			Message: err.Error(),
			Data:    fieldAmount,
		}
	}

	if value.LessThan(bounds.min) || value.GreaterThan(bounds.max) {
		return nil, &types.PaymentError{
			Code:    types.CodeAmountOutOfRange,
			Message: fmt.Sprintf("amount must be between %s %s and %s %s", currency, bounds.min, currency, bounds.max),
			Data:    bounds,
		}
	}

	fee := value.Mul(AdminFeeRate).Round(0)
	total := value.Add(fee)

	return &types.PaymentRequest{
		Kind:       types.KindDynamic,
		MerchantID: merchant,
		Currency:   currency,
		Amount:     value.String(),
		AdminFee:   fee.String(),
		Total:      total.String(),
	}, nil
}

// NewStaticPaymentRequest builds the request behind a merchant's static QR code.
func NewStaticPaymentRequest(merchant, currency string) (*types.PaymentRequest, error) {
	if merchant == "" {
		return nil, missingField(fieldMerchant)
	}
	if !types.IsSupportedCurrency(currency) {
		return nil, &types.PaymentError{
			Code:    types.CodeUnsupportedCurrency,
			Message: fmt.Sprintf("unsupported currency %q", currency),
			Data:    currency,
		}
	}
	return &types.PaymentRequest{
		Kind:       types.KindStatic,
		MerchantID: merchant,
		Currency:   currency,
	}, nil
}

// EncodePaymentRequest renders the QR payload that ParsePaymentRequest accepts.
func EncodePaymentRequest(req *types.PaymentRequest) (string, error) {
	out := *req
	if out.Kind == types.KindStatic {
		out.Amount, out.AdminFee, out.Total = "", "", ""
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
