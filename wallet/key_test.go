package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	chainID *big.Int
	sent    []*ethtypes.Transaction
	sendErr error
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) { return b.chainID, nil }

func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 65_000, nil
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func newTestKeyProvider(t *testing.T, backend *fakeBackend) *KeyProvider {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	p, err := NewKeyProvider(backend, common.Bytes2Hex(crypto.FromECDSA(key)))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), p.Address())
	return p
}

func TestKeyProvider_SubmitTransfer(t *testing.T) {
	backend := &fakeBackend{chainID: big.NewInt(11155111)}
	p := newTestKeyProvider(t, backend)
	token := common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")

	_, err := p.SubmitTransfer(context.Background(), Instruction{From: p.Address(), To: token})
	assert.Error(t, err, "not connected")

	acct, err := p.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p.Address().Hex(), acct.Address)
	assert.Equal(t, int64(11155111), acct.ChainID)

	hash, err := p.SubmitTransfer(context.Background(), Instruction{
		From: p.Address(),
		To:   token,
		Data: []byte{0xa9, 0x05, 0x9c, 0xbb},
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, tx.Hash().Hex(), hash)
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(65_000), tx.Gas())
	assert.Equal(t, token, *tx.To())

	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(backend.chainID), tx)
	require.NoError(t, err)
	assert.Equal(t, p.Address(), sender)
}

func TestKeyProvider_Rejects(t *testing.T) {
	backend := &fakeBackend{chainID: big.NewInt(1)}
	p := newTestKeyProvider(t, backend)
	_, err := p.Connect(context.Background())
	require.NoError(t, err)

	_, err = p.SubmitTransfer(context.Background(), Instruction{From: common.HexToAddress("0x01")})
	assert.Error(t, err)

	backend.sendErr = errors.New("insufficient funds for gas * price + value")
	_, err = p.SubmitTransfer(context.Background(), Instruction{From: p.Address()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")

	require.NoError(t, p.Disconnect(context.Background()))
	_, err = p.SubmitTransfer(context.Background(), Instruction{From: p.Address()})
	assert.Error(t, err)

	_, err = NewKeyProvider(backend, "not-a-key")
	assert.Error(t, err)
}
