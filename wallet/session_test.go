package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/qrpay/types"
	"github.com/vitwit/qrpay/utils"
)

const testAddress = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

type connectResult struct {
	acct Account
	err  error
}

type fakeProvider struct {
	mu              sync.Mutex
	connectCalls    int
	disconnectCalls int

	// connect blocks until a result is sent unless ignoreCtx is false and
	// the context is cancelled first.
	connect   chan connectResult
	ignoreCtx bool
	returned  chan struct{}

	disconnectGate chan struct{}
	disconnectErr  error

	events chan Event
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		connect:  make(chan connectResult, 1),
		returned: make(chan struct{}, 1),
		events:   make(chan Event, 8),
	}
}

func (p *fakeProvider) succeedConnect() {
	p.connect <- connectResult{acct: Account{Address: testAddress, ChainID: 11155111, WalletName: "MetaMask"}}
}

func (p *fakeProvider) Connect(ctx context.Context) (Account, error) {
	p.mu.Lock()
	p.connectCalls++
	p.mu.Unlock()
	defer func() {
		select {
		case p.returned <- struct{}{}:
		default:
		}
	}()

	if p.ignoreCtx {
		r := <-p.connect
		return r.acct, r.err
	}
	select {
	case r := <-p.connect:
		return r.acct, r.err
	case <-ctx.Done():
		return Account{}, ctx.Err()
	}
}

func (p *fakeProvider) Disconnect(context.Context) error {
	p.mu.Lock()
	p.disconnectCalls++
	gate := p.disconnectGate
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return p.disconnectErr
}

func (p *fakeProvider) SubmitTransfer(context.Context, Instruction) (string, error) {
	return "", errors.New("not used")
}

func (p *fakeProvider) Events() <-chan Event {
	return p.events
}

func connected(t *testing.T, p *fakeProvider, opts ...Option) *Session {
	t.Helper()
	s := NewSession(p, opts...)
	p.succeedConnect()
	_, err := s.Connect(context.Background())
	require.NoError(t, err)
	return s
}

func drain(ch <-chan Snapshot) []Status {
	var out []Status
	for {
		select {
		case snap := <-ch:
			out = append(out, snap.Status)
		default:
			return out
		}
	}
}

func TestSession_ConnectAndDisconnect(t *testing.T) {
	p := newFakeProvider()
	s := NewSession(p)
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	assert.Equal(t, StatusDisconnected, s.Snapshot().Status)

	p.succeedConnect()
	snap, err := s.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.IsConnected())
	assert.Equal(t, testAddress, snap.Address)
	assert.Equal(t, int64(11155111), snap.ChainID)
	assert.Equal(t, "MetaMask", snap.WalletName)

	_, err = s.Connect(context.Background())
	assert.True(t, errors.Is(err, types.ErrInvalidTransition))

	require.NoError(t, s.Disconnect(context.Background()))
	final := s.Snapshot()
	assert.Equal(t, StatusDisconnected, final.Status)
	assert.Empty(t, final.Address)
	assert.Zero(t, final.ChainID)
	assert.Greater(t, final.Epoch, snap.Epoch)

	assert.Equal(t, []Status{StatusConnecting, StatusConnected, StatusDisconnecting, StatusDisconnected}, drain(updates))

	// already disconnected
	require.NoError(t, s.Disconnect(context.Background()))
	assert.Empty(t, drain(updates))
}

func TestSession_DisconnectWhileConnecting(t *testing.T) {
	p := newFakeProvider()
	s := NewSession(p)

	result := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		result <- err
	}()

	require.Eventually(t, func() bool {
		return s.Snapshot().Status == StatusConnecting
	}, time.Second, time.Millisecond)

	err := s.Disconnect(context.Background())
	assert.True(t, errors.Is(err, types.ErrSessionBusy))
	assert.Equal(t, StatusConnecting, s.Snapshot().Status)

	_, err = s.Connect(context.Background())
	assert.True(t, errors.Is(err, types.ErrSessionBusy))
	assert.Equal(t, StatusConnecting, s.Snapshot().Status)

	p.succeedConnect()
	require.NoError(t, <-result)
	assert.Equal(t, StatusConnected, s.Snapshot().Status)
	assert.Equal(t, 1, p.connectCalls)
}

func TestSession_SessionDeletedTwice(t *testing.T) {
	p := newFakeProvider()
	s := connected(t, p)
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.HandleEvent(Event{Kind: EventSessionDeleted})
		}()
	}
	wg.Wait()

	assert.Equal(t, []Status{StatusDisconnected}, drain(updates))
	assert.Equal(t, StatusDisconnected, s.Snapshot().Status)
	assert.Zero(t, p.disconnectCalls)
}

func TestSession_ExternalDisconnectDuringUserDisconnect(t *testing.T) {
	p := newFakeProvider()
	s := connected(t, p)
	p.disconnectGate = make(chan struct{})

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- s.Disconnect(context.Background()) }()

	require.Eventually(t, func() bool {
		return s.Snapshot().Status == StatusDisconnecting
	}, time.Second, time.Millisecond)

	s.HandleEvent(Event{Kind: EventSessionDeleted})
	s.HandleEvent(Event{Kind: EventDisconnect})
	assert.Equal(t, StatusDisconnecting, s.Snapshot().Status)

	close(p.disconnectGate)
	require.NoError(t, <-done)

	assert.Equal(t, []Status{StatusDisconnecting, StatusDisconnected}, drain(updates))
}

func TestSession_DisconnectProviderErrorStillClears(t *testing.T) {
	p := newFakeProvider()
	s := connected(t, p)
	p.disconnectErr = errors.New("relay unreachable")

	require.NoError(t, s.Disconnect(context.Background()))
	assert.Equal(t, StatusDisconnected, s.Snapshot().Status)
	assert.Equal(t, 1, p.disconnectCalls)
}

func TestSession_DisconnectTimeoutClearsSession(t *testing.T) {
	p := newFakeProvider()
	clock := utils.NewManualClock(time.Unix(0, 0))
	s := connected(t, p, WithClock(clock), WithDisconnectTimeout(5*time.Second))

	// the wallet never answers and ignores ctx
	p.disconnectGate = make(chan struct{})
	t.Cleanup(func() { close(p.disconnectGate) })

	done := make(chan error, 1)
	go func() { done <- s.Disconnect(context.Background()) }()

	// one timer left over from Connect, one from Disconnect
	clock.BlockUntil(2)
	assert.Equal(t, StatusDisconnecting, s.Snapshot().Status)

	_, err := s.Connect(context.Background())
	assert.True(t, errors.Is(err, types.ErrSessionBusy))

	clock.Advance(5 * time.Second)
	require.NoError(t, <-done)
	assert.Equal(t, StatusDisconnected, s.Snapshot().Status)

	p.succeedConnect()
	snap, err := s.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.IsConnected())
}

func TestSession_ConnectFailure(t *testing.T) {
	p := newFakeProvider()
	s := NewSession(p)

	p.connect <- connectResult{err: errors.New("user closed the modal")}
	_, err := s.Connect(context.Background())
	assert.True(t, errors.Is(err, types.ErrNotConnected))
	assert.Equal(t, StatusDisconnected, s.Snapshot().Status)

	p.connect <- connectResult{acct: Account{Address: "0xnothex"}}
	_, err = s.Connect(context.Background())
	assert.True(t, errors.Is(err, types.ErrInvalidAddress))
	assert.Equal(t, StatusDisconnected, s.Snapshot().Status)
}

func TestSession_ConnectTimeoutSelfHeals(t *testing.T) {
	p := newFakeProvider()
	p.ignoreCtx = true
	clock := utils.NewManualClock(time.Unix(0, 0))
	s := NewSession(p, WithClock(clock), WithConnectTimeout(30*time.Second))

	result := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		result <- err
	}()

	clock.BlockUntil(1)
	assert.Equal(t, StatusConnecting, s.Snapshot().Status)

	clock.Advance(29 * time.Second)
	assert.Equal(t, StatusConnecting, s.Snapshot().Status)

	clock.Advance(time.Second)
	err := <-result
	assert.True(t, errors.Is(err, types.ErrNotConnected))
	assert.Equal(t, StatusDisconnected, s.Snapshot().Status)

	// the wallet answers after the session gave up
	p.succeedConnect()
	<-p.returned
	assert.Equal(t, StatusDisconnected, s.Snapshot().Status)
	assert.Empty(t, s.Snapshot().Address)

	// a fresh attempt is allowed once settled
	p.ignoreCtx = false
	go func() {
		_, err := s.Connect(context.Background())
		result <- err
	}()
	clock.BlockUntil(1)
	p.succeedConnect()
	require.NoError(t, <-result)
	assert.Equal(t, StatusConnected, s.Snapshot().Status)
}

func TestSession_ConnectCancelled(t *testing.T) {
	p := newFakeProvider()
	s := NewSession(p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, StatusDisconnected, s.Snapshot().Status)
}

func TestSession_ChainChanged(t *testing.T) {
	p := newFakeProvider()
	s := connected(t, p)
	before := s.Snapshot()

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.HandleEvent(Event{Kind: EventChainChanged, ChainID: 137})
	s.HandleEvent(Event{Kind: EventChainChanged, ChainID: 137})

	after := s.Snapshot()
	assert.Equal(t, int64(137), after.ChainID)
	assert.Equal(t, before.Epoch, after.Epoch)
	assert.False(t, before.SameSession(after))
	assert.Equal(t, []Status{StatusConnected}, drain(updates))
}

func TestSession_StartDispatchesProviderEvents(t *testing.T) {
	p := newFakeProvider()
	s := NewSession(p)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Start(ctx)
	defer s.Close()

	p.events <- Event{Kind: EventConnect, Account: &Account{Address: testAddress, ChainID: 1}}
	require.Eventually(t, func() bool {
		return s.Snapshot().IsConnected()
	}, time.Second, time.Millisecond)

	p.events <- Event{Kind: EventSessionDeleted}
	require.Eventually(t, func() bool {
		return s.Snapshot().Status == StatusDisconnected
	}, time.Second, time.Millisecond)
}

func TestSession_CloseEndsSubscriptions(t *testing.T) {
	s := NewSession(newFakeProvider())
	s.Start(context.Background())

	updates, _ := s.Subscribe()
	s.Close()

	_, open := <-updates
	assert.False(t, open)

	late, _ := s.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestSession_SlowSubscriberKeepsLatest(t *testing.T) {
	p := newFakeProvider()
	s := connected(t, p)
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	for i := int64(0); i < subscriberBuffer+5; i++ {
		s.HandleEvent(Event{Kind: EventChainChanged, ChainID: 1000 + i})
	}

	var last Snapshot
	n := 0
	for {
		select {
		case snap := <-updates:
			last = snap
			n++
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer, n)
	assert.Equal(t, int64(1000+subscriberBuffer+4), last.ChainID)
}

func TestSession_TimeoutsFromConfig(t *testing.T) {
	s := NewSession(newFakeProvider(), WithConfig(&types.Config{
		ConnectTimeout:    45 * time.Second,
		DisconnectTimeout: 3 * time.Second,
	}))
	assert.Equal(t, 45*time.Second, s.connectTimeout)
	assert.Equal(t, 3*time.Second, s.disconnectTimeout)

	s = NewSession(newFakeProvider(), WithConfig(&types.Config{}), WithConfig(nil))
	assert.Equal(t, DefaultConnectTimeout, s.connectTimeout)
	assert.Equal(t, DefaultDisconnectTimeout, s.disconnectTimeout)
}
