package settlement

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitwit/qrpay/types"
)

var forward = map[types.TransferState][]types.TransferState{
	types.TransferBuilding:   {types.TransferSubmitted, types.TransferFailed},
	types.TransferSubmitted:  {types.TransferConfirming, types.TransferFailed},
	types.TransferConfirming: {types.TransferConfirmed, types.TransferFailed, types.TransferTimedOut},
}

// Attempt is one transfer for one pay action. It is never resubmitted:
// retrying a payment means creating a new Attempt.
type Attempt struct {
	ID        string
	Token     types.Token
	From      string
	To        string
	Amount    decimal.Decimal
	CreatedAt time.Time

	mu      sync.Mutex
	state   types.TransferState
	txID    string
	claimed bool
}

func NewAttempt(token types.Token, from, to string, amount decimal.Decimal, createdAt time.Time) *Attempt {
	return &Attempt{
		ID:        uuid.NewString(),
		Token:     token,
		From:      from,
		To:        to,
		Amount:    amount,
		CreatedAt: createdAt,
		state:     types.TransferBuilding,
	}
}

func (a *Attempt) State() types.TransferState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// TransactionID is empty until the attempt is Submitted.
func (a *Attempt) TransactionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.txID
}

// Advance moves the attempt forward. Backward or skipping moves fail with
// INVALID_TRANSITION, and so does any move while the wallet holds the
// attempt: only the executor settles a claimed attempt.
func (a *Attempt) Advance(to types.TransferState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.claimed && a.state == types.TransferBuilding {
		return &types.PaymentError{
			Code:    types.CodeInvalidTransition,
			Message: fmt.Sprintf("attempt %s is being submitted", a.ID),
		}
	}
	return a.advanceLocked(to)
}

func (a *Attempt) advanceLocked(to types.TransferState) error {
	for _, next := range forward[a.state] {
		if next == to {
			a.state = to
			return nil
		}
	}
	return &types.PaymentError{
		Code:    types.CodeInvalidTransition,
		Message: fmt.Sprintf("attempt %s cannot move from %s to %s", a.ID, a.state, to),
	}
}

// claim reserves the single submission slot of the attempt.
func (a *Attempt) claim() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.claimed || a.state != types.TransferBuilding {
		return &types.PaymentError{
			Code:    types.CodeAlreadySubmitted,
			Message: fmt.Sprintf("attempt %s was already submitted", a.ID),
			Data:    a.txID,
		}
	}
	a.claimed = true
	return nil
}

// markSubmitted records txID even when the transition fails; the transfer
// is already on its way.
func (a *Attempt) markSubmitted(txID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.txID = txID
	return a.advanceLocked(types.TransferSubmitted)
}

func (a *Attempt) markFailed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.advanceLocked(types.TransferFailed)
}
