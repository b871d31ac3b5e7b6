package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitwit/qrpay/logger"
	"github.com/vitwit/qrpay/metrics"
	"github.com/vitwit/qrpay/types"
	"github.com/vitwit/qrpay/utils"
)

const (
	DefaultConnectTimeout    = 60 * time.Second
	DefaultDisconnectTimeout = 10 * time.Second
)

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusDisconnecting
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the session. Address, ChainID and
// WalletName are only set while Connected. Epoch changes on every status
// change, so two snapshots with the same Epoch describe the same session.
type Snapshot struct {
	Status     Status
	Address    string
	ChainID    int64
	WalletName string
	Epoch      uint64
}

func (s Snapshot) IsConnected() bool {
	return s.Status == StatusConnected
}

// SameSession reports whether o still describes the session s was taken from.
func (s Snapshot) SameSession(o Snapshot) bool {
	return s.Epoch == o.Epoch && s.Status == o.Status && s.ChainID == o.ChainID
}

const subscriberBuffer = 32

// Session is the single owner of wallet connection state.
//
// Connecting and Disconnecting act as the in-flight guard: no transition may
// start while one of them is current. Provider calls are never made while
// holding mu.
type Session struct {
	provider          Provider
	log               logger.Logger
	metrics           metrics.Recorder
	clock             utils.Clock
	connectTimeout    time.Duration
	disconnectTimeout time.Duration

	mu      sync.Mutex
	state   Snapshot
	subs    map[int]chan Snapshot
	nextSub int
	closed  bool

	startOnce sync.Once
	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSession(provider Provider, opts ...Option) *Session {
	s := &Session{
		provider:          provider,
		log:               logger.NoopLogger{},
		metrics:           metrics.NoopRecorder{},
		clock:             utils.SystemClock{},
		connectTimeout:    DefaultConnectTimeout,
		disconnectTimeout: DefaultDisconnectTimeout,
		subs:              make(map[int]chan Snapshot),
		stop:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provider returns the wallet the session talks to.
func (s *Session) Provider() Provider {
	return s.provider
}

// Snapshot returns the current state as a value copy.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe returns a channel receiving one snapshot per state change and a
// func to stop the subscription. A subscriber that falls behind loses the
// oldest queued snapshots, never the latest one.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Connect establishes a wallet session. It is only valid from Disconnected.
//
// If the provider has not answered within the connect timeout the session
// returns to Disconnected and a late provider answer is discarded.
func (s *Session) Connect(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	switch s.state.Status {
	case StatusConnecting, StatusDisconnecting:
		st := s.state.Status
		s.mu.Unlock()
		return Snapshot{}, busy(st)
	case StatusConnected:
		s.mu.Unlock()
		return Snapshot{}, &types.PaymentError{
			Code:    types.CodeInvalidTransition,
			Message: "wallet already connected",
		}
	}
	s.transitionLocked(StatusConnecting, nil)
	epoch := s.state.Epoch
	s.mu.Unlock()

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		acct, err := s.provider.Connect(cctx)
		done <- s.finishConnect(epoch, acct, err)
	}()

	select {
	case err := <-done:
		return s.connectResult(err)
	case <-s.clock.After(s.connectTimeout):
		cancel()
		if !s.abandonConnect(epoch, "timeout") {
			return s.connectResult(<-done)
		}
		return Snapshot{}, &types.PaymentError{
			Code:    types.CodeNotConnected,
			Message: fmt.Sprintf("wallet did not answer within %s", s.connectTimeout),
		}
	case <-ctx.Done():
		if !s.abandonConnect(epoch, "cancelled") {
			return s.connectResult(<-done)
		}
		return Snapshot{}, ctx.Err()
	}
}

func (s *Session) connectResult(err error) (Snapshot, error) {
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}

func (s *Session) finishConnect(epoch uint64, acct Account, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Epoch != epoch || s.state.Status != StatusConnecting {
		s.log.Warn("late wallet connect result dropped", map[string]any{
			"epoch":   epoch,
			"address": acct.Address,
			"error":   err,
		})
		return &types.PaymentError{
			Code:    types.CodeNotConnected,
			Message: "wallet connect was abandoned",
		}
	}

	if err == nil {
		err = utils.ValidateAddress(acct.Address)
	}
	if err != nil {
		s.log.Warn("wallet connect failed", map[string]any{"error": err})
		s.transitionLocked(StatusDisconnected, nil)
		if types.CodeOf(err) != "" {
			return err
		}
		return &types.PaymentError{
			Code:    types.CodeNotConnected,
			Message: fmt.Sprintf("wallet connect failed: %v", err),
		}
	}

	s.transitionLocked(StatusConnected, &acct)
	return nil
}

// abandonConnect reports false if the provider answer won the race.
func (s *Session) abandonConnect(epoch uint64, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Epoch != epoch || s.state.Status != StatusConnecting {
		return false
	}
	s.log.Warn("wallet connect abandoned", map[string]any{"reason": reason})
	s.metrics.IncCounter("connect_"+reason, nil)
	s.transitionLocked(StatusDisconnected, nil)
	return true
}

// Disconnect ends the session. The local state is cleared even if the
// provider call fails or does not answer within the disconnect timeout.
// Disconnecting an already disconnected session is a no-op.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state.Status {
	case StatusDisconnected:
		s.mu.Unlock()
		return nil
	case StatusConnecting, StatusDisconnecting:
		st := s.state.Status
		s.mu.Unlock()
		return busy(st)
	}
	s.transitionLocked(StatusDisconnecting, nil)
	s.mu.Unlock()

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.provider.Disconnect(dctx) }()

	select {
	case err := <-done:
		if err != nil {
			s.log.Warn("wallet disconnect failed, clearing session anyway", map[string]any{"error": err})
		}
	case <-s.clock.After(s.disconnectTimeout):
		s.log.Warn("wallet disconnect timed out, clearing session anyway", map[string]any{"timeout": s.disconnectTimeout.String()})
		s.metrics.IncCounter("disconnect_timeout", nil)
	case <-ctx.Done():
		s.log.Warn("wallet disconnect cancelled, clearing session anyway", map[string]any{"error": ctx.Err()})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status == StatusDisconnecting {
		s.transitionLocked(StatusDisconnected, nil)
	}
	return nil
}

// HandleEvent translates a provider event into a state transition. It is
// the only place provider events change the session.
func (s *Session) HandleEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := map[string]any{"event": ev.Kind.String(), "status": s.state.Status.String()}

	switch ev.Kind {
	case EventSessionDeleted, EventDisconnect:
		if s.state.Status != StatusConnected {
			s.log.Debug("wallet event ignored", fields)
			return
		}
		s.transitionLocked(StatusDisconnected, nil)

	case EventConnect:
		// a restored session; a pending Connect call resolves on its own
		if s.state.Status != StatusDisconnected || ev.Account == nil {
			s.log.Debug("wallet event ignored", fields)
			return
		}
		if err := utils.ValidateAddress(ev.Account.Address); err != nil {
			s.log.Warn("wallet event carried an invalid address", fields)
			return
		}
		acct := *ev.Account
		s.transitionLocked(StatusConnected, &acct)

	case EventChainChanged:
		if s.state.Status != StatusConnected || s.state.ChainID == ev.ChainID {
			s.log.Debug("wallet event ignored", fields)
			return
		}
		s.log.Info("wallet chain changed", map[string]any{"from": s.state.ChainID, "to": ev.ChainID})
		s.state.ChainID = ev.ChainID
		s.notifyLocked()

	default:
		s.log.Warn("unknown wallet event", fields)
	}
}

// Start runs the event dispatcher until ctx is done, Close is called or the
// provider closes its event channel. Calling Start more than once is a no-op.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		events := s.provider.Events()
		if events == nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-s.stop:
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					s.HandleEvent(ev)
				}
			}
		}()
	})
}

// Close stops the dispatcher and closes every subscription.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()

		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
	})
}

// transitionLocked must be called with mu held.
func (s *Session) transitionLocked(to Status, acct *Account) {
	from := s.state.Status

	next := Snapshot{Status: to, Epoch: s.state.Epoch + 1}
	if to == StatusConnected && acct != nil {
		next.Address = acct.Address
		next.ChainID = acct.ChainID
		next.WalletName = acct.WalletName
	}
	s.state = next

	s.log.Info("wallet session transition", map[string]any{
		"from":    from.String(),
		"to":      to.String(),
		"epoch":   next.Epoch,
		"address": next.Address,
	})
	s.metrics.IncCounter("session_"+to.String(), nil)
	s.notifyLocked()
}

func (s *Session) notifyLocked() {
	snap := s.state
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func busy(st Status) error {
	return &types.PaymentError{
		Code:    types.CodeSessionBusy,
		Message: fmt.Sprintf("wallet session is %s", st),
		Data:    st.String(),
	}
}
