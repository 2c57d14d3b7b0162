// Package networks describes the chains the raffle contract is deployed on and
// resolves which contract and RPC endpoint serve the active chain.
package networks

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	BaseSepoliaChainID uint64 = 84532
	BaseMainnetChainID uint64 = 8453
)

// Currency is the native currency advertised when registering a chain with a wallet.
type Currency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Network is one chain identity.
type Network struct {
	ChainID         uint64   `json:"chainId"`
	Name            string   `json:"name"`
	RPCURL          string   `json:"rpcUrl"`
	ExplorerURL     string   `json:"explorerUrl"`
	ContractAddress string   `json:"contractAddress,omitempty"`
	NativeCurrency  Currency `json:"nativeCurrency"`
}

// HexChainID returns the chain id in the 0x-prefixed form wallets report.
func (n Network) HexChainID() string {
	return hexutil.EncodeUint64(n.ChainID)
}

// HasContract reports whether a usable contract address is configured.
func (n Network) HasContract() bool {
	addr := strings.TrimSpace(n.ContractAddress)
	return common.IsHexAddress(addr) && common.HexToAddress(addr) != (common.Address{})
}

// Contract returns the configured contract address.
func (n Network) Contract() common.Address {
	return common.HexToAddress(strings.TrimSpace(n.ContractAddress))
}

// AddChainParams is the wallet_addEthereumChain payload for n.
func (n Network) AddChainParams() map[string]any {
	params := map[string]any{
		"chainId":        n.HexChainID(),
		"chainName":      n.Name,
		"nativeCurrency": n.NativeCurrency,
		"rpcUrls":        []string{n.RPCURL},
	}
	if n.ExplorerURL != "" {
		params["blockExplorerUrls"] = []string{n.ExplorerURL}
	}
	return params
}

// FaucetURL points users of the test network at a funding page.
func (n Network) FaucetURL(address string) string {
	if n.ChainID != BaseSepoliaChainID {
		return ""
	}
	return "https://bridge.base.org/deposit?address=" + address
}

var ether = Currency{Name: "Ethereum", Symbol: "ETH", Decimals: 18}

// BaseSepolia is the test network.
var BaseSepolia = Network{
	ChainID:        BaseSepoliaChainID,
	Name:           "BASE Sepolia",
	RPCURL:         "https://sepolia.base.org",
	ExplorerURL:    "https://sepolia.basescan.org",
	NativeCurrency: ether,
}

// BaseMainnet is the main network.
var BaseMainnet = Network{
	ChainID:        BaseMainnetChainID,
	Name:           "BASE",
	RPCURL:         "https://mainnet.base.org",
	ExplorerURL:    "https://basescan.org",
	NativeCurrency: ether,
}

// ParseChainID accepts both hex ("0x14a34") and decimal ("84532") forms.
func ParseChainID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return hexutil.DecodeUint64(strings.ToLower(s))
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse chain id %q: %w", s, err)
	}
	return id, nil
}

// Registry holds the known networks and the default target.
type Registry struct {
	networks  map[uint64]Network
	defaultID uint64
}

// NewRegistry builds a registry. The first network is the default unless
// SetDefault says otherwise.
func NewRegistry(nets ...Network) *Registry {
	r := &Registry{networks: make(map[uint64]Network, len(nets))}
	for i, n := range nets {
		if i == 0 {
			r.defaultID = n.ChainID
		}
		r.networks[n.ChainID] = n
	}
	return r
}

// SetDefault selects the default network; unknown ids are ignored.
func (r *Registry) SetDefault(chainID uint64) {
	if _, ok := r.networks[chainID]; ok {
		r.defaultID = chainID
	}
}

// Default returns the default network.
func (r *Registry) Default() Network { return r.networks[r.defaultID] }

// Lookup returns the network with chainID.
func (r *Registry) Lookup(chainID uint64) (Network, bool) {
	n, ok := r.networks[chainID]
	return n, ok
}

// All returns the networks ordered by chain id.
func (r *Registry) All() []Network {
	out := make([]Network, 0, len(r.networks))
	for _, n := range r.networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// AnyConfigured reports whether at least one network has a contract address.
// Without one the gateway runs in simulation mode.
func (r *Registry) AnyConfigured() bool {
	for _, n := range r.networks {
		if n.HasContract() {
			return true
		}
	}
	return false
}

// Resolve picks the network serving activeChainID: the active chain when it has
// a contract, else the default, else any configured network.
func (r *Registry) Resolve(activeChainID uint64) (Network, bool) {
	if n, ok := r.networks[activeChainID]; ok && n.HasContract() {
		return n, true
	}
	if n, ok := r.networks[r.defaultID]; ok && n.HasContract() {
		return n, true
	}
	for _, n := range r.All() {
		if n.HasContract() {
			return n, true
		}
	}
	return Network{}, false
}
