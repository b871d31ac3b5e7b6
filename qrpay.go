// Package qrpay pays merchant QR codes with ERC-20 transfers from a
// connected wallet: it validates the scanned payload, converts the fiat
// total into a token amount, submits the transfer through the wallet,
// waits for the receipt and re-reads the payer's balance.
package qrpay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vitwit/qrpay/clients"
	"github.com/vitwit/qrpay/logger"
	"github.com/vitwit/qrpay/metrics"
	"github.com/vitwit/qrpay/rates"
	"github.com/vitwit/qrpay/settlement"
	"github.com/vitwit/qrpay/types"
	"github.com/vitwit/qrpay/utils"
	"github.com/vitwit/qrpay/verification"
	"github.com/vitwit/qrpay/wallet"
)

const (
	DefaultConfirmTimeout = 2 * time.Minute
	tracerName            = "qrpay"
)

// QRPay is the payment orchestrator. One instance serves one wallet session
// and runs at most one payment at a time.
type QRPay struct {
	config  *types.Config
	session *wallet.Session

	balances  *clients.BalanceReader
	converter *rates.Converter
	executor  *settlement.Executor
	poller    *verification.Poller
	merchants types.MerchantDirectory
	rateTable rates.Table

	logger         logger.Logger
	metrics        metrics.Recorder
	clock          utils.Clock
	tracer         trace.Tracer
	tracerProvider trace.TracerProvider
	confirmTimeout time.Duration

	closers  []io.Closer
	inFlight atomic.Bool
}

// New wires the engine around an existing wallet session and RPC client.
// Options override what the config selects.
func New(config *types.Config, session *wallet.Session, rpc clients.RPC, opts ...Option) (*QRPay, error) {
	if config == nil {
		config = &types.Config{Network: types.NetworkEthereum}
	}
	if session == nil || rpc == nil {
		return nil, &types.PaymentError{Code: types.CodeConfigError, Message: "wallet session and rpc client are required"}
	}

	q := &QRPay{
		config:         config,
		session:        session,
		clock:          utils.SystemClock{},
		confirmTimeout: DefaultConfirmTimeout,
	}
	if config.ConfirmTimeout > 0 {
		q.confirmTimeout = config.ConfirmTimeout
	}

	for _, opt := range opts {
		opt(q)
	}

	if err := q.initAmbient(); err != nil {
		return nil, err
	}
	if err := q.initRates(); err != nil {
		return nil, err
	}
	if q.merchants == nil {
		q.merchants = types.StaticMerchants(config.Merchants)
	}

	q.balances = clients.NewBalanceReader(rpc, q.logger)
	q.converter = rates.NewConverter(q.rateTable, q.logger)
	q.executor = settlement.NewExecutor(session, session.Provider(), q.balances, q.clock, q.logger, q.metrics)
	q.poller = verification.NewPoller(rpc, q.clock, config.PollInterval, q.logger)

	return q, nil
}

func (q *QRPay) initAmbient() error {
	if q.logger == nil {
		if q.config.LogLevel != "" {
			zl, err := logger.NewZapLogger(q.config.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			q.logger = zl
		} else {
			q.logger = logger.NoopLogger{}
		}
	}

	if q.metrics == nil {
		if q.config.EnableMetrics {
			rec, err := metrics.NewPrometheusRecorder(nil)
			if err != nil {
				return fmt.Errorf("failed to register metrics: %w", err)
			}
			q.metrics = rec
		} else {
			q.metrics = metrics.NoopRecorder{}
		}
	}

	if q.tracerProvider == nil {
		q.tracerProvider = otel.GetTracerProvider()
	}
	q.tracer = q.tracerProvider.Tracer(tracerName)
	return nil
}

func (q *QRPay) initRates() error {
	if q.rateTable != nil {
		return nil
	}

	if q.config.RateSource == "redis" {
		table, err := rates.NewRedisTableFromURL(q.config.RedisURL, q.logger)
		if err != nil {
			return &types.PaymentError{Code: types.CodeConfigError, Message: err.Error()}
		}
		q.rateTable = table
		q.closers = append(q.closers, table)
		return nil
	}

	table, err := rates.StaticTableFromConfig(q.config.Rates)
	if err != nil {
		return err
	}
	q.rateTable = table
	return nil
}

// Session returns the wallet session gating this engine.
func (q *QRPay) Session() *wallet.Session {
	return q.session
}

// Pay settles a dynamic QR code with token.
//
// Errors are returned only when nothing was submitted, or when the wallet
// session changed while the transfer was being submitted (STALE_SESSION,
// carrying the transaction id). Once a transfer is submitted the result is a
// PaymentOutcome whose Status is confirmed, reverted or pending.
func (q *QRPay) Pay(ctx context.Context, rawQR string, token types.Token) (*types.PaymentOutcome, error) {
	return q.pay(ctx, rawQR, token, nil)
}

// PayAmount settles a static QR code for an amount entered by the payer,
// in the currency of the code.
func (q *QRPay) PayAmount(ctx context.Context, rawQR string, token types.Token, amount decimal.Decimal) (*types.PaymentOutcome, error) {
	return q.pay(ctx, rawQR, token, &amount)
}

func (q *QRPay) pay(ctx context.Context, rawQR string, token types.Token, amount *decimal.Decimal) (*types.PaymentOutcome, error) {
	if !q.inFlight.CompareAndSwap(false, true) {
		return nil, &types.PaymentError{
			Code:    types.CodePaymentInProgress,
			Message: "another payment is still running",
		}
	}
	defer q.inFlight.Store(false)

	ctx, span := q.tracer.Start(ctx, "qrpay.Pay", trace.WithAttributes(
		attribute.String("token", token.Symbol),
		attribute.String("network", token.Network.String()),
	))
	defer span.End()

	start := q.clock.Now()
	labels := map[string]string{"token": token.Symbol, "network": token.Network.String()}

	outcome, err := q.execute(ctx, rawQR, token, amount)

	q.metrics.ObserveLatency("pay", q.clock.Now().Sub(start), labels)
	if err != nil {
		q.metrics.IncCounter("pay_error_"+types.CodeOf(err), labels)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		q.logger.Warn("payment failed", map[string]any{
			"token":    token.Symbol,
			"code":     types.CodeOf(err),
			"category": string(types.CategoryOf(err)),
			"error":    err,
		})
		return nil, err
	}

	q.metrics.IncCounter("pay_"+string(outcome.Status), labels)
	span.SetAttributes(
		attribute.String("attempt.id", outcome.AttemptID),
		attribute.String("tx.id", outcome.TransactionID),
		attribute.String("status", string(outcome.Status)),
	)
	q.logger.Info("payment finished", map[string]any{
		"attempt": outcome.AttemptID,
		"tx":      outcome.TransactionID,
		"status":  string(outcome.Status),
		"amount":  outcome.Quote.TokenAmount.String(),
		"token":   token.Symbol,
	})
	return outcome, nil
}

func (q *QRPay) execute(ctx context.Context, rawQR string, token types.Token, amount *decimal.Decimal) (*types.PaymentOutcome, error) {
	req, total, err := q.validate(ctx, rawQR, token, amount)
	if err != nil {
		return nil, err
	}

	snap := q.session.Snapshot()
	if !snap.IsConnected() {
		return nil, &types.PaymentError{
			Code:    types.CodeNotConnected,
			Message: fmt.Sprintf("wallet is %s", snap.Status),
		}
	}
	if snap.ChainID != token.Network.ChainID() {
		return nil, &types.PaymentError{
			Code:    types.CodeWrongNetwork,
			Message: fmt.Sprintf("wallet is on chain %d, %s lives on %s", snap.ChainID, token.Symbol, token.Network),
			Data:    token.Network.ChainID(),
		}
	}

	payTo, err := q.merchants.Resolve(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}

	quote, err := q.quote(ctx, total, req.Currency, token)
	if err != nil {
		return nil, err
	}

	attempt := q.executor.NewAttempt(token, snap.Address, payTo, quote.TokenAmount)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("attempt.id", attempt.ID))

	// a transfer the wallet already sent is followed through even if
	// recording it failed
	txID, err := q.submit(ctx, attempt)
	if err != nil && txID == "" {
		return nil, err
	}
	submittedAt := q.clock.Now()

	if after := q.session.Snapshot(); !after.IsConnected() || !snap.SameSession(after) {
		q.logger.Warn("wallet session changed during submission, result dropped", map[string]any{
			"attempt": attempt.ID,
			"tx":      txID,
			"before":  snap.Epoch,
			"after":   after.Epoch,
			"status":  after.Status.String(),
		})
		return nil, &types.PaymentError{
			Code:    types.CodeStaleSession,
			Message: fmt.Sprintf("wallet session changed while submitting; transaction %s may still settle", txID),
			Data:    txID,
		}
	}

	conf, err := q.confirm(ctx, attempt, txID)
	if err != nil {
		return nil, err
	}

	outcome := &types.PaymentOutcome{
		AttemptID:     attempt.ID,
		TransactionID: txID,
		Status:        paymentStatus(conf.Status),
		Request:       *req,
		Quote:         *quote,
		SubmittedAt:   submittedAt,
	}

	if bal, err := q.balance(ctx, token, snap.Address); err != nil {
		outcome.BalanceError = err.Error()
	} else {
		outcome.FinalBalance = &bal
	}
	outcome.FinishedAt = q.clock.Now()

	return outcome, nil
}

func (q *QRPay) validate(ctx context.Context, rawQR string, token types.Token, amount *decimal.Decimal) (req *types.PaymentRequest, total decimal.Decimal, err error) {
	_, span := q.tracer.Start(ctx, "qrpay.validate")
	defer func() { endSpan(span, err) }()

	req, err = utils.ParsePaymentRequest(rawQR)
	if err != nil {
		return nil, total, err
	}
	if err = utils.ValidateToken(token); err != nil {
		return nil, total, err
	}

	switch {
	case req.IsDynamic() && amount != nil:
		return nil, total, &types.PaymentError{
			Code:    types.CodeUnexpectedField,
			Message: "a dynamic QR code carries its own amount",
		}
	case req.IsDynamic():
		total, err = req.TotalDecimal()
		if err != nil {
			return nil, total, &types.PaymentError{Code: types.CodeInvalidAmount, Message: err.Error()}
		}
	case amount == nil:
		return nil, total, &types.PaymentError{
			Code:    types.CodeAmountRequired,
			Message: "a static QR code needs an amount entered by the payer",
		}
	case !amount.IsPositive():
		return nil, total, &types.PaymentError{
			Code:    types.CodeInvalidAmount,
			Message: fmt.Sprintf("amount must be positive, got %s", amount),
		}
	default:
		total = *amount
	}

	span.SetAttributes(
		attribute.String("merchant", req.MerchantID),
		attribute.String("kind", string(req.Kind)),
	)
	return req, total, nil
}

func (q *QRPay) quote(ctx context.Context, total decimal.Decimal, currency string, token types.Token) (quote *types.Quote, err error) {
	ctx, span := q.tracer.Start(ctx, "qrpay.quote")
	defer func() { endSpan(span, err) }()

	quote, err = q.converter.Quote(ctx, total, currency, token)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("amount", quote.TokenAmount.String()))
	return quote, nil
}

func (q *QRPay) submit(ctx context.Context, attempt *settlement.Attempt) (txID string, err error) {
	ctx, span := q.tracer.Start(ctx, "qrpay.submit", trace.WithAttributes(attribute.String("attempt.id", attempt.ID)))
	defer func() { endSpan(span, err) }()

	txID, err = q.executor.Submit(ctx, attempt)
	if txID != "" {
		span.SetAttributes(attribute.String("tx.id", txID))
	}
	return txID, err
}

func (q *QRPay) confirm(ctx context.Context, attempt *settlement.Attempt, txID string) (conf *types.Confirmation, err error) {
	ctx, span := q.tracer.Start(ctx, "qrpay.confirm", trace.WithAttributes(attribute.String("tx.id", txID)))
	defer func() { endSpan(span, err) }()

	_ = attempt.Advance(types.TransferConfirming)

	conf, err = q.poller.AwaitConfirmation(ctx, txID, q.clock.Now().Add(q.confirmTimeout))
	if err != nil {
		_ = attempt.Advance(types.TransferFailed)
		return nil, err
	}

	switch conf.Status {
	case types.ConfirmationConfirmed:
		_ = attempt.Advance(types.TransferConfirmed)
	case types.ConfirmationReverted:
		_ = attempt.Advance(types.TransferFailed)
	default:
		_ = attempt.Advance(types.TransferTimedOut)
	}

	span.SetAttributes(
		attribute.String("status", string(conf.Status)),
		attribute.Int("polls", conf.Polls),
	)
	return conf, nil
}

// Balance returns the connected account's balance of token.
func (q *QRPay) Balance(ctx context.Context, token types.Token) (decimal.Decimal, error) {
	snap := q.session.Snapshot()
	if !snap.IsConnected() {
		return decimal.Decimal{}, &types.PaymentError{
			Code:    types.CodeNotConnected,
			Message: fmt.Sprintf("wallet is %s", snap.Status),
		}
	}
	return q.balance(ctx, token, snap.Address)
}

func (q *QRPay) balance(ctx context.Context, token types.Token, address string) (bal decimal.Decimal, err error) {
	ctx, span := q.tracer.Start(ctx, "qrpay.balance", trace.WithAttributes(attribute.String("token", token.Symbol)))
	defer func() { endSpan(span, err) }()

	return q.balances.Read(ctx, token, address)
}

// Close releases resources the engine created itself. The wallet session
// and RPC client belong to the caller.
func (q *QRPay) Close() error {
	var errs []error
	for _, c := range q.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func paymentStatus(s types.ConfirmationStatus) types.PaymentStatus {
	switch s {
	case types.ConfirmationConfirmed:
		return types.PaymentConfirmed
	case types.ConfirmationReverted:
		return types.PaymentReverted
	default:
		return types.PaymentPending
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
