package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Account is what a wallet reports once a session is established.
type Account struct {
	Address    string
	ChainID    int64
	WalletName string
}

// Instruction is a contract call the wallet is asked to sign and broadcast.
type Instruction struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}

type EventKind int

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventChainChanged
	EventSessionDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventChainChanged:
		return "chainChanged"
	case EventSessionDeleted:
		return "sessionDeleted"
	default:
		return "unknown"
	}
}

// Event is emitted by a Provider. Account is set for EventConnect and
// ChainID for EventChainChanged.
type Event struct {
	Kind    EventKind
	Account *Account
	ChainID int64
}

// Provider is an external wallet (WalletConnect, browser extension, local key).
//
// SubmitTransfer returns the transaction hash once the wallet has broadcast
// the instruction. Events may return nil if the wallet never pushes events.
type Provider interface {
	Connect(ctx context.Context) (Account, error)
	Disconnect(ctx context.Context) error
	SubmitTransfer(ctx context.Context, ins Instruction) (string, error)
	Events() <-chan Event
}
