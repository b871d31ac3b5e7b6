package wallet

import (
	"time"

	"github.com/vitwit/qrpay/logger"
	"github.com/vitwit/qrpay/metrics"
	"github.com/vitwit/qrpay/types"
	"github.com/vitwit/qrpay/utils"
)

// Option configures a Session.
type Option func(*Session)

func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		s.log = logger.OrNoop(l)
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *Session) {
		s.metrics = metrics.OrNoop(m)
	}
}

func WithClock(c utils.Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithConnectTimeout bounds how long Connect waits for the provider.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// WithDisconnectTimeout bounds how long Disconnect waits for the provider
// before clearing the session locally.
func WithDisconnectTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.disconnectTimeout = d
		}
	}
}

// WithConfig applies the session timeouts set in config. Zero values keep
// the defaults.
func WithConfig(c *types.Config) Option {
	return func(s *Session) {
		if c == nil {
			return
		}
		WithConnectTimeout(c.ConnectTimeout)(s)
		WithDisconnectTimeout(c.DisconnectTimeout)(s)
	}
}
