// Package keywallet is an injected-style wallet provider backed by a local
// secp256k1 key. It speaks the same request/event protocol as a browser
// wallet so the session and gateway can drive it unchanged.
package keywallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/logger"

	"logane/internal/networks"
	"logane/internal/provider"
)

// BalanceReader is the part of an RPC client the wallet needs.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Dialer opens a BalanceReader for an RPC endpoint.
type Dialer func(ctx context.Context, rpcURL string) (BalanceReader, error)

// Approver decides whether an account access request is granted. It stands
// in for the wallet's confirmation prompt.
type Approver func(ctx context.Context, origin string) bool

// Wallet is a single-account wallet provider.
type Wallet struct {
	mu         sync.Mutex
	key        *ecdsa.PrivateKey
	authorized bool
	approve    Approver
	chains     map[uint64]networks.Network
	chainID    uint64
	dial       Dialer
	clients    map[string]BalanceReader
	listeners  map[string][]*provider.Listener
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithApprover replaces the default auto-approval of account requests.
func WithApprover(a Approver) Option {
	return func(w *Wallet) { w.approve = a }
}

// WithChain selects the initially active chain.
func WithChain(chainID uint64) Option {
	return func(w *Wallet) { w.chainID = chainID }
}

// WithDialer replaces ethclient as the balance source.
func WithDialer(d Dialer) Option {
	return func(w *Wallet) { w.dial = d }
}

// Authorized marks the account as already connected, as after a previous visit.
func Authorized() Option {
	return func(w *Wallet) { w.authorized = true }
}

// New creates a wallet for key knowing the given chains. A nil key yields a
// wallet without accounts.
func New(key *ecdsa.PrivateKey, chains []networks.Network, opts ...Option) *Wallet {
	w := &Wallet{
		key:       key,
		approve:   func(context.Context, string) bool { return true },
		chains:    make(map[uint64]networks.Network, len(chains)),
		dial:      dialEthclient,
		clients:   make(map[string]BalanceReader),
		listeners: make(map[string][]*provider.Listener),
	}
	for i, n := range chains {
		if i == 0 {
			w.chainID = n.ChainID
		}
		w.chains[n.ChainID] = n
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// FromHex creates a wallet from a hex-encoded private key.
func FromHex(hexKey string, chains []networks.Network, opts ...Option) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse wallet key: %w", err)
	}
	return New(key, chains, opts...), nil
}

func dialEthclient(ctx context.Context, rpcURL string) (BalanceReader, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

// Address returns the wallet account, or the zero address without a key.
func (w *Wallet) Address() common.Address {
	if w.key == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(w.key.PublicKey)
}

// Request implements the provider request protocol.
func (w *Wallet) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var (
		result any
		err    error
	)
	switch method {
	case "eth_accounts":
		result = w.accounts()
	case "eth_requestAccounts":
		result, err = w.requestAccounts(ctx)
	case "eth_chainId":
		w.mu.Lock()
		result = hexutil.EncodeUint64(w.chainID)
		w.mu.Unlock()
	case "eth_getBalance":
		result, err = w.balance(ctx, params)
	case "wallet_switchEthereumChain":
		err = w.switchChain(params)
	case "wallet_addEthereumChain":
		err = w.addChain(params)
	default:
		err = &provider.RPCError{Code: provider.CodeUnsupported, Message: "unsupported method " + method}
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func (w *Wallet) accounts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key == nil || !w.authorized {
		return []string{}
	}
	return []string{w.Address().Hex()}
}

func (w *Wallet) requestAccounts(ctx context.Context) ([]string, error) {
	if w.key == nil {
		return nil, &provider.RPCError{Code: provider.CodeUnauthorized, Message: "wallet has no accounts"}
	}
	w.mu.Lock()
	authorized := w.authorized
	w.mu.Unlock()
	if !authorized {
		if !w.approve(ctx, "logane") {
			return nil, &provider.RPCError{Code: provider.CodeUserRejected, Message: "user rejected the request"}
		}
		w.mu.Lock()
		w.authorized = true
		w.mu.Unlock()
	}
	return []string{w.Address().Hex()}, nil
}

func (w *Wallet) balance(ctx context.Context, params []any) (string, error) {
	if len(params) == 0 {
		return "", &provider.RPCError{Code: -32602, Message: "missing address"}
	}
	addr, ok := params[0].(string)
	if !ok || !common.IsHexAddress(addr) {
		return "", &provider.RPCError{Code: -32602, Message: fmt.Sprintf("invalid address %v", params[0])}
	}

	w.mu.Lock()
	chain, known := w.chains[w.chainID]
	w.mu.Unlock()
	if !known {
		return "", &provider.RPCError{Code: provider.CodeDisconnected, Message: "active chain has no RPC endpoint"}
	}
	client, err := w.client(ctx, chain.RPCURL)
	if err != nil {
		return "", err
	}
	bal, err := client.BalanceAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return "", fmt.Errorf("get balance: %w", err)
	}
	return hexutil.EncodeBig(bal), nil
}

func (w *Wallet) client(ctx context.Context, rpcURL string) (BalanceReader, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.clients[rpcURL]; ok {
		return c, nil
	}
	c, err := w.dial(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	w.clients[rpcURL] = c
	return c, nil
}

type switchParams struct {
	ChainID string `json:"chainId"`
}

type addParams struct {
	ChainID           string            `json:"chainId"`
	ChainName         string            `json:"chainName"`
	NativeCurrency    networks.Currency `json:"nativeCurrency"`
	RPCURLs           []string          `json:"rpcUrls"`
	BlockExplorerURLs []string          `json:"blockExplorerUrls"`
}

func decodeParam(params []any, out any) error {
	if len(params) == 0 {
		return &provider.RPCError{Code: -32602, Message: "missing params"}
	}
	raw, err := json.Marshal(params[0])
	if err != nil {
		return &provider.RPCError{Code: -32602, Message: err.Error()}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &provider.RPCError{Code: -32602, Message: err.Error()}
	}
	return nil
}

func (w *Wallet) switchChain(params []any) error {
	var p switchParams
	if err := decodeParam(params, &p); err != nil {
		return err
	}
	id, err := networks.ParseChainID(p.ChainID)
	if err != nil {
		return &provider.RPCError{Code: -32602, Message: err.Error()}
	}

	w.mu.Lock()
	if _, ok := w.chains[id]; !ok {
		w.mu.Unlock()
		return &provider.RPCError{Code: provider.CodeUnrecognizedChain, Message: fmt.Sprintf("unrecognized chain %s", p.ChainID)}
	}
	changed := w.chainID != id
	w.chainID = id
	w.mu.Unlock()

	if changed {
		w.emit(provider.EventChainChanged, hexutil.EncodeUint64(id))
	}
	return nil
}

func (w *Wallet) addChain(params []any) error {
	var p addParams
	if err := decodeParam(params, &p); err != nil {
		return err
	}
	id, err := networks.ParseChainID(p.ChainID)
	if err != nil {
		return &provider.RPCError{Code: -32602, Message: err.Error()}
	}
	if len(p.RPCURLs) == 0 {
		return &provider.RPCError{Code: -32602, Message: "rpcUrls required"}
	}
	n := networks.Network{
		ChainID:        id,
		Name:           p.ChainName,
		RPCURL:         p.RPCURLs[0],
		NativeCurrency: p.NativeCurrency,
	}
	if len(p.BlockExplorerURLs) > 0 {
		n.ExplorerURL = p.BlockExplorerURLs[0]
	}

	w.mu.Lock()
	w.chains[id] = n
	w.mu.Unlock()
	logger.Infof("wallet registered chain %d (%s)", id, n.Name)
	return nil
}

// On subscribes l to event.
func (w *Wallet) On(event string, l *provider.Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners[event] = append(w.listeners[event], l)
}

// RemoveListener unsubscribes l from event.
func (w *Wallet) RemoveListener(event string, l *provider.Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	current := w.listeners[event]
	kept := make([]*provider.Listener, 0, len(current))
	for _, existing := range current {
		if existing != l {
			kept = append(kept, existing)
		}
	}
	w.listeners[event] = kept
}

func (w *Wallet) emit(event string, data any) {
	w.mu.Lock()
	ls := append([]*provider.Listener(nil), w.listeners[event]...)
	w.mu.Unlock()
	for _, l := range ls {
		l.Call(data)
	}
}

// Lock revokes account access, as when the user locks the wallet or switches
// to an unauthorized account.
func (w *Wallet) Lock() {
	w.mu.Lock()
	w.authorized = false
	w.mu.Unlock()
	w.emit(provider.EventAccountsChanged, []string{})
}

// Signer returns a transaction signer for account.
func (w *Wallet) Signer(_ context.Context, account common.Address) (provider.Signer, error) {
	if w.key == nil {
		return nil, &provider.RPCError{Code: provider.CodeUnauthorized, Message: "wallet has no accounts"}
	}
	w.mu.Lock()
	authorized := w.authorized
	w.mu.Unlock()
	if !authorized {
		return nil, &provider.RPCError{Code: provider.CodeUnauthorized, Message: "account not connected"}
	}
	if account != (common.Address{}) && account != w.Address() {
		return nil, &provider.RPCError{Code: provider.CodeUnauthorized, Message: fmt.Sprintf("account %s is not managed by this wallet", account.Hex())}
	}
	return &keySigner{key: w.key}, nil
}

type keySigner struct {
	key *ecdsa.PrivateKey
}

func (s *keySigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *keySigner) SignTx(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}
