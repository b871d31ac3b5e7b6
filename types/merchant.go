package types

import (
	"context"
	"fmt"
)

// MerchantDirectory resolves the merchant id carried by a QR code to the
// address that receives the transfer.
type MerchantDirectory interface {
	Resolve(ctx context.Context, merchantID string) (string, error)
}

// StaticMerchants is a MerchantDirectory backed by the config "merchants" map.
type StaticMerchants map[string]string

func (m StaticMerchants) Resolve(_ context.Context, merchantID string) (string, error) {
	addr, ok := m[merchantID]
	if !ok || addr == "" {
		return "", &PaymentError{
			Code:    CodeUnknownMerchant,
			Message: fmt.Sprintf("no payout address for merchant %q", merchantID),
			Data:    merchantID,
		}
	}
	return addr, nil
}
