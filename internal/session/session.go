// Package session tracks which wallet account and network are authorized for
// use and drives the connect, network-switch and balance flows.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/logger"

	"logane/internal/errs"
	"logane/internal/models"
	"logane/internal/networks"
	"logane/internal/provider"
)

// ErrConnectPending is returned when connect is called while another connect
// is waiting for the wallet.
var ErrConnectPending = errors.New("session: connect already in progress")

// ErrConnectAborted is returned when the session was disconnected while a
// connect was waiting for the wallet. The granted account is discarded.
var ErrConnectAborted = errors.New("session: disconnected while connecting")

// Session is the process-wide wallet session. Provider events may arrive at
// any time and are applied atomically.
type Session struct {
	p      *provider.Provider
	target networks.Network

	mu      sync.Mutex
	snap    Snapshot
	subs    map[int]chan Event
	nextSub int

	accountsListener *provider.Listener
	chainListener    *provider.Listener
}

// New creates a session over p (which may be nil when no wallet is present)
// targeting the given network.
func New(p *provider.Provider, target networks.Network) *Session {
	s := &Session{
		p:      p,
		target: target,
		snap:   Snapshot{State: Uninitialized, ExpectedNetwork: target.HexChainID()},
		subs:   make(map[int]chan Event),
	}
	s.accountsListener = provider.NewListener(s.onAccountsChanged)
	s.chainListener = provider.NewListener(s.onChainChanged)
	return s
}

// Target returns the network the session expects the wallet to be on.
func (s *Session) Target() networks.Network { return s.target }

// Provider returns the adapted wallet provider, nil when none was detected.
func (s *Session) Provider() *provider.Provider { return s.p }

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// update applies mutate atomically and publishes the result.
func (s *Session) update(kind EventKind, mutate func(*Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.snap
	mutate(&s.snap)
	if before == s.snap {
		return s.snap
	}
	if before.State != s.snap.State {
		kind = EventStateChanged
	}
	s.publish(Event{Kind: kind, From: before.State, To: s.snap.State, Snapshot: s.snap})
	return s.snap
}

func (s *Session) fail(e *errs.Error) *errs.Error {
	s.update(EventError, func(sn *Snapshot) { sn.Err = e })
	return e
}

// Start bootstraps the session: it subscribes to wallet events and picks up
// an account that is already authorized, without prompting the user.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.snap.State != Uninitialized {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.update(EventStateChanged, func(sn *Snapshot) { sn.State = Bootstrapping })

	if s.p == nil {
		s.update(EventStateChanged, func(sn *Snapshot) { sn.State = Disconnected })
		return
	}
	s.p.On(provider.EventAccountsChanged, s.accountsListener)
	s.p.On(provider.EventChainChanged, s.chainListener)

	var accounts []string
	if err := s.p.Call(ctx, &accounts, "eth_accounts"); err != nil {
		logger.Errorf("Error bootstrapping wallet state: %v", err)
		s.update(EventStateChanged, func(sn *Snapshot) { sn.State = Disconnected })
		return
	}
	if len(accounts) == 0 {
		s.update(EventStateChanged, func(sn *Snapshot) { sn.State = Disconnected })
		return
	}

	address := accounts[0]
	s.update(EventStateChanged, func(sn *Snapshot) {
		sn.State = Connected
		sn.Address = address
		sn.Err = nil
	})
	_ = s.CheckNetwork(ctx)
	_ = s.getBalance(ctx, address)
}

// Close detaches the session from wallet events.
func (s *Session) Close() {
	if s.p == nil {
		return
	}
	s.p.RemoveListener(provider.EventAccountsChanged, s.accountsListener)
	s.p.RemoveListener(provider.EventChainChanged, s.chainListener)
}

// Connect asks the wallet for account access. Failures are recorded on the
// snapshot and also returned.
func (s *Session) Connect(ctx context.Context) error {
	if s.p == nil {
		return s.fail(errs.New(errs.ProviderUnavailable, "no wallet provider detected, install a wallet to continue"))
	}

	s.mu.Lock()
	state := s.snap.State
	s.mu.Unlock()
	switch state {
	case Uninitialized, Bootstrapping:
		return s.fail(errs.New(errs.NotReady, "session is not ready yet, try again in a few seconds"))
	case Connecting:
		return ErrConnectPending
	case Connected:
		return nil
	}

	// Re-check under the lock so two racing callers cannot both prompt.
	s.mu.Lock()
	if s.snap.State != Disconnected {
		s.mu.Unlock()
		return ErrConnectPending
	}
	s.snap.State = Connecting
	s.snap.Err = nil
	s.publish(Event{Kind: EventStateChanged, From: Disconnected, To: Connecting, Snapshot: s.snap})
	s.mu.Unlock()

	var accounts []string
	if err := s.p.Call(ctx, &accounts, "eth_requestAccounts"); err != nil {
		logger.Errorf("Error connecting wallet: %v", err)
		var e *errs.Error
		if provider.Code(err) == provider.CodeUserRejected {
			e = errs.Wrap(errs.UserRejected, err, "connection cancelled by the user")
		} else {
			e = errs.Wrap(errs.ProviderUnavailable, err, provider.Message(err))
		}
		s.abortConnect(e)
		return e
	}
	if len(accounts) == 0 {
		e := errs.New(errs.ProviderUnavailable, "could not get access to any account")
		s.abortConnect(e)
		return e
	}

	address := accounts[0]
	applied := false
	s.update(EventStateChanged, func(sn *Snapshot) {
		if sn.State != Connecting {
			return
		}
		sn.State = Connected
		sn.Address = address
		sn.Err = nil
		applied = true
	})
	if !applied {
		return ErrConnectAborted
	}
	_ = s.CheckNetwork(ctx)
	_ = s.getBalance(ctx, address)
	return nil
}

// Disconnect forgets the account locally. Wallets offer no revocation call,
// so the provider is not contacted.
func (s *Session) Disconnect() {
	s.update(EventStateChanged, reset)
}

func reset(sn *Snapshot) {
	*sn = Snapshot{State: Disconnected, ExpectedNetwork: sn.ExpectedNetwork}
}

// abortConnect records a failed connect unless the session moved on meanwhile.
func (s *Session) abortConnect(e *errs.Error) {
	s.update(EventStateChanged, func(sn *Snapshot) {
		if sn.State != Connecting {
			return
		}
		sn.State = Disconnected
		sn.Err = e
	})
}

// CheckNetwork reads the wallet's chain and, when it differs from the target,
// switches to it, registering the chain with the wallet first if needed.
// Failures leave the session connected but flagged with a network error.
func (s *Session) CheckNetwork(ctx context.Context) error {
	if s.p == nil {
		return s.fail(errs.New(errs.ProviderUnavailable, "no wallet provider detected"))
	}

	var chainID string
	if err := s.p.Call(ctx, &chainID, "eth_chainId"); err != nil {
		logger.Errorf("Error checking network: %v", err)
		return s.fail(errs.Wrap(errs.NetworkMismatch, err, "could not verify the network, check your wallet configuration"))
	}
	s.setNetwork(chainID)
	if sameChain(chainID, s.target.HexChainID()) {
		return nil
	}

	if err := s.switchNetwork(ctx); err != nil {
		return s.fail(err)
	}
	if err := s.p.Call(ctx, &chainID, "eth_chainId"); err == nil {
		s.setNetwork(chainID)
	}
	s.update(EventError, func(sn *Snapshot) {
		if sn.Err != nil && sn.Err.Kind == errs.NetworkMismatch {
			sn.Err = nil
		}
	})
	return nil
}

// switchNetwork tries the switch once, and on an unknown chain registers it
// and tries exactly once more.
func (s *Session) switchNetwork(ctx context.Context) *errs.Error {
	switchParams := map[string]string{"chainId": s.target.HexChainID()}
	err := s.p.Call(ctx, nil, "wallet_switchEthereumChain", switchParams)
	if err == nil {
		return nil
	}
	if provider.Code(err) != provider.CodeUnrecognizedChain {
		logger.Errorf("Error switching network: %v", err)
		return errs.Wrap(errs.NetworkMismatch, err,
			fmt.Sprintf("could not switch to %s, switch manually in your wallet", s.target.Name))
	}

	if err := s.p.Call(ctx, nil, "wallet_addEthereumChain", s.target.AddChainParams()); err != nil {
		logger.Errorf("Error adding network: %v", err)
		return errs.Wrap(errs.NetworkMismatch, err,
			fmt.Sprintf("could not add %s, add it manually in your wallet", s.target.Name))
	}
	if err := s.p.Call(ctx, nil, "wallet_switchEthereumChain", switchParams); err != nil {
		logger.Errorf("Error switching network after adding it: %v", err)
		return errs.Wrap(errs.NetworkMismatch, err,
			fmt.Sprintf("could not switch to %s, switch manually in your wallet", s.target.Name))
	}
	return nil
}

func (s *Session) setNetwork(chainID string) {
	s.update(EventNetworkChanged, func(sn *Snapshot) { sn.NetworkID = chainID })
}

// RefreshBalance re-reads the balance of the connected account.
func (s *Session) RefreshBalance(ctx context.Context) error {
	snap := s.Snapshot()
	if snap.State != Connected || snap.Address == "" {
		return errs.New(errs.NotReady, "wallet is not connected")
	}
	return s.getBalance(ctx, snap.Address)
}

// getBalance reads the native balance of address and stores it as a 4-decimal
// string. Failures are logged and leave the balance untouched.
func (s *Session) getBalance(ctx context.Context, address string) error {
	if s.p == nil {
		return errs.New(errs.ProviderUnavailable, "no wallet provider detected")
	}
	var raw string
	if err := s.p.Call(ctx, &raw, "eth_getBalance", address, "latest"); err != nil {
		logger.Errorf("Error getting balance: %v", err)
		return err
	}
	wei, err := hexutil.DecodeBig(raw)
	if err != nil {
		logger.Errorf("Error decoding balance %q: %v", raw, err)
		return err
	}
	display := models.FromMinorUnits(wei, models.ETH).StringFixed(4)
	s.update(EventBalanceChanged, func(sn *Snapshot) {
		if models.SameAccount(sn.Address, address) {
			sn.Balance = display
		}
	})
	return nil
}

func (s *Session) onAccountsChanged(data any) {
	accounts := toStrings(data)
	if len(accounts) == 0 {
		s.update(EventStateChanged, func(sn *Snapshot) {
			if sn.State != Connected {
				return
			}
			reset(sn)
		})
		return
	}

	address := accounts[0]
	applied := false
	s.update(EventAccountChanged, func(sn *Snapshot) {
		if sn.State != Connected && sn.State != Disconnected {
			return
		}
		if sn.State == Connected && models.SameAccount(sn.Address, address) {
			return
		}
		sn.State = Connected
		sn.Address = address
		sn.Balance = ""
		sn.Err = nil
		applied = true
	})
	if applied {
		_ = s.getBalance(context.Background(), address)
	}
}

func (s *Session) onChainChanged(data any) {
	switch v := data.(type) {
	case string:
		s.setNetwork(v)
	case uint64:
		s.setNetwork(hexutil.EncodeUint64(v))
	case int:
		s.setNetwork(hexutil.EncodeUint64(uint64(v)))
	default:
		logger.Warningf("ignoring chainChanged payload of type %T", data)
	}
}

func toStrings(data any) []string {
	switch v := data.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
