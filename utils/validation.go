package utils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vitwit/qrpay/types"
)

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	txHashPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// ValidateAmount checks if an amount string is a valid non-negative decimal
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	return &dec, nil
}

// ValidateAddress checks the strict 0x-prefixed 40 hex character form.
// Checksums are not enforced; wallets hand out both cases.
func ValidateAddress(address string) error {
	if !addressPattern.MatchString(address) {
		return &types.PaymentError{
			Code:    types.CodeInvalidAddress,
			Message: fmt.Sprintf("invalid address %q", address),
			Data:    address,
		}
	}
	return nil
}

// ValidateTransactionHash validates an EVM transaction hash (0x + 64 hex).
func ValidateTransactionHash(hash string) error {
	if !txHashPattern.MatchString(hash) {
		return &types.PaymentError{
			Code:    types.CodeInvalidTransaction,
			Message: fmt.Sprintf("invalid transaction hash %q", hash),
			Data:    hash,
		}
	}
	return nil
}

// SameAddress compares two hex addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ParseAmountWithDecimals converts a human-unit decimal to base units.
// Amounts with more fractional digits than the token supports are rejected
// rather than silently truncated.
func ParseAmountWithDecimals(amount decimal.Decimal, decimals int) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	scaled := amount.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s exceeds %d decimal places", amount, decimals)
	}

	return scaled.BigInt(), nil
}

// FormatAmountFromBigInt converts base units back to a human-unit decimal
func FormatAmountFromBigInt(amount *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -int32(decimals))
}
