package clients

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/vitwit/qrpay/logger"
	"github.com/vitwit/qrpay/types"
	"github.com/vitwit/qrpay/utils"
)

// BalanceReader queries token balances. It never mutates anything and is
// safe to retry.
type BalanceReader struct {
	rpc RPC
	log logger.Logger
}

func NewBalanceReader(rpc RPC, log logger.Logger) *BalanceReader {
	return &BalanceReader{rpc: rpc, log: logger.OrNoop(log)}
}

// Read returns the balance of address in human units of token.
func (b *BalanceReader) Read(ctx context.Context, token types.Token, address string) (decimal.Decimal, error) {
	raw, err := b.ReadRaw(ctx, token, address)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return utils.FormatAmountFromBigInt(raw, token.Decimals), nil
}

// ReadRaw returns the balance in base units.
func (b *BalanceReader) ReadRaw(ctx context.Context, token types.Token, address string) (*big.Int, error) {
	if err := utils.ValidateAddress(address); err != nil {
		return nil, err
	}
	if err := utils.ValidateAddress(token.Address); err != nil {
		return nil, err
	}

	bal, err := b.rpc.TokenBalance(ctx, common.HexToAddress(token.Address), common.HexToAddress(address))
	if err != nil {
		b.log.Warn("balance query failed", map[string]any{
			"token":   token.Symbol,
			"address": address,
			"error":   err,
		})
		return nil, &types.PaymentError{
			Code:    types.CodeRPCUnavailable,
			Message: fmt.Sprintf("failed to fetch %s balance: %v", token.Symbol, err),
		}
	}
	return bal, nil
}
