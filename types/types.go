package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentKind distinguishes merchant QR codes with and without a fixed amount.
type PaymentKind string

const (
	KindStatic  PaymentKind = "static"
	KindDynamic PaymentKind = "dynamic"
)

// Supported fiat/reference currencies a merchant may bill in.
const (
	CurrencyIDR = "IDR"
	CurrencyUSD = "USD"
)

var supportedCurrencies = map[string]struct{}{
	CurrencyIDR: {},
	CurrencyUSD: {},
}

// IsSupportedCurrency reports whether a merchant may bill in currency.
func IsSupportedCurrency(currency string) bool {
	_, ok := supportedCurrencies[currency]
	return ok
}

// PaymentRequest is the validated form of a scanned merchant QR code.
//
// A static request never carries amounts; a dynamic request always carries
// Amount, AdminFee and Total as non-negative decimal strings, preserved
// exactly as they appeared in the payload.
type PaymentRequest struct {
	Kind       PaymentKind `json:"type"`
	MerchantID string      `json:"merchant"`
	Currency   string      `json:"currency"`
	Amount     string      `json:"amount,omitempty"`
	AdminFee   string      `json:"adminFee,omitempty"`
	Total      string      `json:"total,omitempty"`
}

func (r *PaymentRequest) IsDynamic() bool {
	return r.Kind == KindDynamic
}

// TotalDecimal returns the total owed. Only meaningful for dynamic requests.
func (r *PaymentRequest) TotalDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(r.Total)
}

// Token describes an ERC-20 settlement token.
type Token struct {
	Symbol   string  `json:"symbol" yaml:"symbol" validate:"required"`
	Address  string  `json:"address" yaml:"address" validate:"required,eth_addr"`
	Decimals int     `json:"decimals" yaml:"decimals" validate:"gte=0,lte=36"`
	Network  Network `json:"network" yaml:"network" validate:"required"`
	Name     string  `json:"name,omitempty" yaml:"name,omitempty"`
}

// Quote is the settlement amount for a request in a given token.
type Quote struct {
	Currency    string          `json:"currency"`
	Total       decimal.Decimal `json:"total"`
	Token       Token           `json:"token"`
	Rate        decimal.Decimal `json:"rate"`
	TokenAmount decimal.Decimal `json:"tokenAmount"`
	RateDisplay string          `json:"rateDisplay"`
}

// Shortfall is attached to INSUFFICIENT_FUNDS errors.
type Shortfall struct {
	Available decimal.Decimal `json:"available"`
	Required  decimal.Decimal `json:"required"`
}

// TransferState is the lifecycle of a single transfer attempt.
type TransferState int

const (
	TransferBuilding TransferState = iota
	TransferSubmitted
	TransferConfirming
	TransferConfirmed
	TransferFailed
	TransferTimedOut
)

func (s TransferState) IsTerminal() bool {
	return s == TransferConfirmed || s == TransferFailed || s == TransferTimedOut
}

func (s TransferState) String() string {
	switch s {
	case TransferBuilding:
		return "building"
	case TransferSubmitted:
		return "submitted"
	case TransferConfirming:
		return "confirming"
	case TransferConfirmed:
		return "confirmed"
	case TransferFailed:
		return "failed"
	case TransferTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// ConfirmationStatus is the result of waiting for a submitted transfer.
type ConfirmationStatus string

const (
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	ConfirmationReverted  ConfirmationStatus = "reverted"
	// ConfirmationTimedOut means no receipt was seen before the deadline.
	// The transfer may still confirm later.
	ConfirmationTimedOut ConfirmationStatus = "timed_out"
	// ConfirmationAbandoned means the caller stopped waiting before the
	// deadline. Like TimedOut, the transfer may still confirm later.
	ConfirmationAbandoned ConfirmationStatus = "abandoned"
)

// Confirmation contains the result of polling for a transaction receipt.
type Confirmation struct {
	TransactionID string             `json:"transactionId"`
	Status        ConfirmationStatus `json:"status"`
	BlockNumber   uint64             `json:"blockNumber,omitempty"`
	GasUsed       uint64             `json:"gasUsed,omitempty"`
	Polls         int                `json:"polls"`
}

// PaymentStatus is what the UI shows for a finished pay action.
type PaymentStatus string

const (
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentReverted  PaymentStatus = "reverted"
	// PaymentPending must be presented as "pending, check later", never as failed.
	PaymentPending PaymentStatus = "pending"
)

// PaymentOutcome is returned by a pay action once a transfer was submitted.
type PaymentOutcome struct {
	AttemptID     string           `json:"attemptId"`
	TransactionID string           `json:"transactionId"`
	Status        PaymentStatus    `json:"status"`
	Request       PaymentRequest   `json:"request"`
	Quote         Quote            `json:"quote"`
	FinalBalance  *decimal.Decimal `json:"finalBalance,omitempty"`
	BalanceError  string           `json:"balanceError,omitempty"`
	SubmittedAt   time.Time        `json:"submittedAt"`
	FinishedAt    time.Time        `json:"finishedAt"`
}

// Config contains global configuration for the payment engine.
type Config struct {
	Network           Network                      `json:"network" yaml:"network" validate:"required"`
	RPCUrl            string                       `json:"rpcUrl" yaml:"rpcUrl" validate:"omitempty,url"`
	// ConnectTimeout and DisconnectTimeout are read by wallet.WithConfig
	// when the session is built; New does not see the session's options.
	ConnectTimeout    time.Duration                `json:"connectTimeout,omitempty" yaml:"connectTimeout,omitempty" validate:"gte=0"`
	DisconnectTimeout time.Duration                `json:"disconnectTimeout,omitempty" yaml:"disconnectTimeout,omitempty" validate:"gte=0"`
	ConfirmTimeout    time.Duration                `json:"confirmTimeout,omitempty" yaml:"confirmTimeout,omitempty" validate:"gte=0"`
	PollInterval      time.Duration                `json:"pollInterval,omitempty" yaml:"pollInterval,omitempty" validate:"gte=0"`
	LogLevel          string                       `json:"logLevel,omitempty" yaml:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`
	EnableMetrics     bool                         `json:"enableMetrics,omitempty" yaml:"enableMetrics,omitempty"`
	Tokens            []Token                      `json:"tokens,omitempty" yaml:"tokens,omitempty" validate:"dive"`
	Rates             map[string]map[string]string `json:"rates,omitempty" yaml:"rates,omitempty"`
	Merchants         map[string]string            `json:"merchants,omitempty" yaml:"merchants,omitempty" validate:"dive,eth_addr"`
	RateSource        string                       `json:"rateSource,omitempty" yaml:"rateSource,omitempty" validate:"omitempty,oneof=static redis"`
	RedisURL          string                       `json:"redisUrl,omitempty" yaml:"redisUrl,omitempty" validate:"required_if=RateSource redis"`
}

// TokenBySymbol looks up a configured token.
func (c *Config) TokenBySymbol(symbol string) (Token, bool) {
	for _, t := range c.Tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return Token{}, false
}
