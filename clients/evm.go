package clients

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vitwit/qrpay/types"
)

var _ RPC = (*EVMClient)(nil)

// EVMClient provides the JSON-RPC reads used for balances and receipts.
type EVMClient struct {
	rpcURL  string
	network types.Network
	client  *ethclient.Client
}

func NewEVMClient(network types.Network, rpcURL string) (*EVMClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	return &EVMClient{
		network: network,
		rpcURL:  rpcURL,
		client:  client,
	}, nil
}

// TokenBalance implements RPC.
func (e *EVMClient) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := PackBalanceOf(owner)
	if err != nil {
		return nil, err
	}

	out, err := e.client.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: data,
	}, nil)
	if err != nil {
		return nil, err
	}

	return UnpackBalanceOf(out)
}

// TransactionReceipt implements RPC.
func (e *EVMClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return e.client.TransactionReceipt(ctx, hash)
}

// ChainID returns the chain id reported by the node.
func (e *EVMClient) ChainID(ctx context.Context) (*big.Int, error) {
	return e.client.ChainID(ctx)
}

// Backend exposes the underlying ethclient for transaction signing providers.
func (e *EVMClient) Backend() *ethclient.Client {
	return e.client
}

func (e *EVMClient) GetNetwork() types.Network {
	return e.network
}

func (e *EVMClient) Close() {
	e.client.Close()
}
