package qrpay

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vitwit/qrpay/logger"
	"github.com/vitwit/qrpay/metrics"
	"github.com/vitwit/qrpay/rates"
	"github.com/vitwit/qrpay/types"
	"github.com/vitwit/qrpay/utils"
)

type Option func(*QRPay)

func WithLogger(l logger.Logger) Option {
	return func(q *QRPay) {
		q.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(q *QRPay) {
		q.metrics = r
	}
}

// WithTimeout bounds how long Pay waits for a receipt before reporting the
// payment as pending.
func WithTimeout(t time.Duration) Option {
	return func(q *QRPay) {
		if t > 0 {
			q.confirmTimeout = t
		}
	}
}

func WithClock(c utils.Clock) Option {
	return func(q *QRPay) {
		if c != nil {
			q.clock = c
		}
	}
}

func WithMerchants(m types.MerchantDirectory) Option {
	return func(q *QRPay) {
		q.merchants = m
	}
}

func WithRateTable(t rates.Table) Option {
	return func(q *QRPay) {
		q.rateTable = t
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(q *QRPay) {
		q.tracerProvider = tp
	}
}
