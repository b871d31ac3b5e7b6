package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/vitwit/qrpay/clients"
	"github.com/vitwit/qrpay/logger"
	"github.com/vitwit/qrpay/metrics"
	"github.com/vitwit/qrpay/types"
	"github.com/vitwit/qrpay/utils"
	"github.com/vitwit/qrpay/wallet"
)

// SessionView is the read side of a wallet session.
type SessionView interface {
	Snapshot() wallet.Snapshot
}

// Executor builds ERC-20 transfers and hands them to the wallet.
type Executor struct {
	session  SessionView
	provider wallet.Provider
	balances *clients.BalanceReader
	clock    utils.Clock
	log      logger.Logger
	metrics  metrics.Recorder
}

func NewExecutor(session SessionView, provider wallet.Provider, balances *clients.BalanceReader, clock utils.Clock, log logger.Logger, rec metrics.Recorder) *Executor {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Executor{
		session:  session,
		provider: provider,
		balances: balances,
		clock:    clock,
		log:      logger.OrNoop(log),
		metrics:  metrics.OrNoop(rec),
	}
}

// NewAttempt creates an attempt stamped with the executor's clock.
func (e *Executor) NewAttempt(token types.Token, from, to string, amount decimal.Decimal) *Attempt {
	return NewAttempt(token, from, to, amount, e.clock.Now())
}

// Submit sends the attempt to the wallet and returns the transaction id.
// Once the wallet has returned an id it is always returned, even together
// with an error.
//
// The provider is called at most once per attempt. The balance pre-check is
// best effort; the wallet's answer is authoritative.
func (e *Executor) Submit(ctx context.Context, a *Attempt) (string, error) {
	snap := e.session.Snapshot()
	if !snap.IsConnected() {
		return "", &types.PaymentError{
			Code:    types.CodeNotConnected,
			Message: fmt.Sprintf("wallet is %s", snap.Status),
		}
	}

	if err := a.claim(); err != nil {
		return "", err
	}

	start := e.clock.Now()
	labels := map[string]string{"token": a.Token.Symbol, "network": a.Token.Network.String()}

	fail := func(err error) (string, error) {
		a.markFailed()
		e.metrics.IncCounter("transfer_failed", labels)
		e.log.Warn("transfer not submitted", map[string]any{
			"attempt": a.ID,
			"code":    types.CodeOf(err),
			"error":   err,
		})
		return "", err
	}

	for _, addr := range []string{a.From, a.To, a.Token.Address} {
		if err := utils.ValidateAddress(addr); err != nil {
			return fail(err)
		}
	}
	if !utils.SameAddress(a.From, snap.Address) {
		return fail(&types.PaymentError{
			Code:    types.CodeInvalidAddress,
			Message: fmt.Sprintf("sender %s is not the connected account", a.From),
			Data:    a.From,
		})
	}
	if !a.Amount.IsPositive() {
		return fail(&types.PaymentError{
			Code:    types.CodeInvalidAmount,
			Message: fmt.Sprintf("transfer amount must be positive, got %s", a.Amount),
		})
	}

	value, err := utils.ParseAmountWithDecimals(a.Amount, a.Token.Decimals)
	if err != nil {
		return fail(&types.PaymentError{
			Code:    types.CodeInvalidAmount,
			Message: err.Error(),
		})
	}

	available, err := e.balances.Read(ctx, a.Token, a.From)
	if err != nil {
		return fail(err)
	}
	if available.LessThan(a.Amount) {
		return fail(&types.PaymentError{
			Code:    types.CodeInsufficientFunds,
			Message: fmt.Sprintf("insufficient %s balance: have %s, need %s", a.Token.Symbol, available, a.Amount),
			Data:    types.Shortfall{Available: available, Required: a.Amount},
		})
	}

	data, err := clients.PackTransfer(common.HexToAddress(a.To), value)
	if err != nil {
		return fail(fmt.Errorf("pack transfer: %w", err))
	}

	e.log.Info("submitting transfer", map[string]any{
		"attempt": a.ID,
		"token":   a.Token.Symbol,
		"from":    a.From,
		"to":      a.To,
		"amount":  a.Amount.String(),
	})

	txID, err := e.provider.SubmitTransfer(ctx, wallet.Instruction{
		From: common.HexToAddress(a.From),
		To:   common.HexToAddress(a.Token.Address),
		Data: data,
	})
	if err != nil {
		return fail(ClassifySubmitError(err))
	}

	if err := a.markSubmitted(txID); err != nil {
		e.log.Error("transfer sent but attempt not marked submitted", map[string]any{
			"attempt": a.ID,
			"tx":      txID,
			"error":   err,
		})
		return txID, err
	}

	e.metrics.IncCounter("transfer_submitted", labels)
	e.metrics.ObserveLatency("submit", e.clock.Now().Sub(start), labels)
	e.log.Info("transfer submitted", map[string]any{"attempt": a.ID, "tx": txID})

	return txID, nil
}

// ClassifySubmitError maps a wallet error onto the submission error codes.
func ClassifySubmitError(err error) error {
	var pe *types.PaymentError
	if errors.As(err, &pe) {
		return pe
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user rejected"),
		strings.Contains(msg, "rejected by user"),
		strings.Contains(msg, "user denied"):
		return &types.PaymentError{Code: types.CodeUserRejected, Message: err.Error()}
	case strings.Contains(msg, "insufficient funds"):
		return &types.PaymentError{Code: types.CodeInsufficientGas, Message: err.Error()}
	default:
		return &types.PaymentError{Code: types.CodeSubmissionFailed, Message: err.Error()}
	}
}
