package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vitwit/qrpay/utils"
)

// TxBackend is the subset of ethclient.Client a KeyProvider needs.
type TxBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// KeyProvider is a Provider that signs with a local private key. It is used
// by the CLI and in integration environments where no external wallet is
// available.
type KeyProvider struct {
	backend TxBackend
	key     *ecdsa.PrivateKey
	address common.Address

	mu        sync.Mutex
	chainID   *big.Int
	connected bool
	events    chan Event
}

var _ Provider = (*KeyProvider)(nil)

func NewKeyProvider(backend TxBackend, privateKeyHex string) (*KeyProvider, error) {
	key, err := utils.PrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}
	return &KeyProvider{
		backend: backend,
		key:     key,
		address: utils.AddressFromPrivateKey(key),
		events:  make(chan Event, 4),
	}, nil
}

func (k *KeyProvider) Address() common.Address {
	return k.address
}

func (k *KeyProvider) Connect(ctx context.Context) (Account, error) {
	chainID, err := k.backend.ChainID(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("chain id: %w", err)
	}

	k.mu.Lock()
	k.chainID = chainID
	k.connected = true
	k.mu.Unlock()

	return Account{
		Address:    k.address.Hex(),
		ChainID:    chainID.Int64(),
		WalletName: "local key",
	}, nil
}

func (k *KeyProvider) Disconnect(context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.connected = false
	return nil
}

// Events never carries anything: a local key cannot be revoked remotely.
func (k *KeyProvider) Events() <-chan Event {
	return k.events
}

// SubmitTransfer signs ins as a legacy transaction and broadcasts it.
func (k *KeyProvider) SubmitTransfer(ctx context.Context, ins Instruction) (string, error) {
	k.mu.Lock()
	chainID, connected := k.chainID, k.connected
	k.mu.Unlock()
	if !connected {
		return "", fmt.Errorf("key provider not connected")
	}
	if ins.From != k.address {
		return "", fmt.Errorf("instruction sender %s does not match key %s", ins.From.Hex(), k.address.Hex())
	}

	value := ins.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit, err := k.backend.EstimateGas(ctx, ethereum.CallMsg{From: k.address, To: &ins.To, Value: value, Data: ins.Data})
	if err != nil {
		return "", fmt.Errorf("estimate gas failed: %w", err)
	}

	gasPrice, err := k.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price failed: %w", err)
	}

	nonce, err := k.backend.PendingNonceAt(ctx, k.address)
	if err != nil {
		return "", fmt.Errorf("pending nonce failed: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &ins.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     ins.Data,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), k.key)
	if err != nil {
		return "", fmt.Errorf("sign tx failed: %w", err)
	}

	if err := k.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx failed: %w", err)
	}

	return signed.Hash().Hex(), nil
}
