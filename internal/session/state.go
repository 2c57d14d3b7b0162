package session

import (
	"strings"

	"github.com/shopspring/decimal"

	"logane/internal/errs"
	"logane/internal/networks"
)

// State is the connection state of a session.
type State int

const (
	Uninitialized State = iota
	Bootstrapping
	Disconnected
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Bootstrapping:
		return "bootstrapping"
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a point-in-time copy of the session.
type Snapshot struct {
	State           State       `json:"state"`
	Address         string      `json:"address,omitempty"`
	NetworkID       string      `json:"networkId,omitempty"`
	Balance         string      `json:"balance,omitempty"`
	Err             *errs.Error `json:"error,omitempty"`
	ExpectedNetwork string      `json:"expectedNetworkId"`
}

func (s Snapshot) IsConnected() bool  { return s.State == Connected }
func (s Snapshot) IsConnecting() bool { return s.State == Connecting }

// IsCorrectNetwork reports whether the wallet is on the target chain.
func (s Snapshot) IsCorrectNetwork() bool {
	return sameChain(s.NetworkID, s.ExpectedNetwork)
}

// HasBalance reports whether the known balance is above zero.
func (s Snapshot) HasBalance() bool {
	if s.Balance == "" {
		return false
	}
	bal, err := decimal.NewFromString(s.Balance)
	return err == nil && bal.IsPositive()
}

// BalanceDecimal returns the balance, zero when unknown.
func (s Snapshot) BalanceDecimal() decimal.Decimal {
	bal, err := decimal.NewFromString(s.Balance)
	if err != nil {
		return decimal.Zero
	}
	return bal
}

// ChainID returns the numeric network id, 0 when unknown.
func (s Snapshot) ChainID() uint64 {
	if s.NetworkID == "" {
		return 0
	}
	id, err := networks.ParseChainID(s.NetworkID)
	if err != nil {
		return 0
	}
	return id
}

func sameChain(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if strings.EqualFold(a, b) {
		return true
	}
	x, errA := networks.ParseChainID(a)
	y, errB := networks.ParseChainID(b)
	return errA == nil && errB == nil && x == y
}

// FormatAddress shortens an account identifier for display.
func FormatAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
