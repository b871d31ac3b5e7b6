package clients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// RPC is the read-only blockchain access the payment engine needs.
//
// TransactionReceipt returns ethereum.NotFound while a transaction is still
// pending, matching ethclient.
type RPC interface {
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}
