package verification

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vitwit/qrpay/clients"
	"github.com/vitwit/qrpay/logger"
	"github.com/vitwit/qrpay/types"
	"github.com/vitwit/qrpay/utils"
)

const DefaultPollInterval = 2 * time.Second

// Poller waits for transaction receipts.
type Poller struct {
	rpc      clients.RPC
	clock    utils.Clock
	interval time.Duration
	log      logger.Logger
}

func NewPoller(rpc clients.RPC, clock utils.Clock, interval time.Duration, log logger.Logger) *Poller {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		rpc:      rpc,
		clock:    clock,
		interval: interval,
		log:      logger.OrNoop(log),
	}
}

// AwaitConfirmation polls until a receipt is found or deadline passes.
//
// Lookup failures, including "not found", are treated as not yet mined. A
// TimedOut result is never returned before the deadline and means the
// transfer may still confirm later. Cancelling ctx ends the wait early with
// an Abandoned result; the transfer itself is not affected. The only error
// is a malformed transaction id.
func (p *Poller) AwaitConfirmation(ctx context.Context, txID string, deadline time.Time) (*types.Confirmation, error) {
	if err := utils.ValidateTransactionHash(txID); err != nil {
		return nil, err
	}
	hash := common.HexToHash(txID)
	result := &types.Confirmation{TransactionID: txID}

	for {
		result.Polls++
		receipt, err := p.rpc.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			result.BlockNumber = receiptBlock(receipt)
			result.GasUsed = receipt.GasUsed
			if receipt.Status == ethtypes.ReceiptStatusSuccessful {
				result.Status = types.ConfirmationConfirmed
			} else {
				result.Status = types.ConfirmationReverted
			}
			p.log.Info("transaction receipt found", map[string]any{
				"tx":     txID,
				"status": string(result.Status),
				"block":  result.BlockNumber,
				"polls":  result.Polls,
			})
			return result, nil
		case err != nil:
			p.log.Debug("receipt not available yet", map[string]any{"tx": txID, "error": err})
		}

		remaining := deadline.Sub(p.clock.Now())
		if remaining <= 0 {
			break
		}
		wait := p.interval
		if remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			p.log.Warn("confirmation wait abandoned", map[string]any{"tx": txID, "error": ctx.Err()})
			result.Status = types.ConfirmationAbandoned
			return result, nil
		case <-p.clock.After(wait):
		}
	}

	p.log.Warn("confirmation deadline passed", map[string]any{"tx": txID, "polls": result.Polls})
	result.Status = types.ConfirmationTimedOut
	return result, nil
}

func receiptBlock(r *ethtypes.Receipt) uint64 {
	if r.BlockNumber == nil {
		return 0
	}
	return r.BlockNumber.Uint64()
}
