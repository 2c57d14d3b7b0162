package keywallet

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"logane/internal/networks"
	"logane/internal/provider"
)

type staticBalance struct{ wei *big.Int }

func (s staticBalance) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return s.wei, nil
}

func newTestWallet(t *testing.T, opts ...Option) *Wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	dialer := WithDialer(func(context.Context, string) (BalanceReader, error) {
		return staticBalance{wei: big.NewInt(1_500_000_000_000_000_000)}, nil
	})
	return New(key, []networks.Network{networks.BaseSepolia}, append([]Option{dialer}, opts...)...)
}

func request[T any](t *testing.T, w *Wallet, method string, params ...any) T {
	t.Helper()
	raw, err := w.Request(context.Background(), method, params...)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestAccountsRequireAuthorization(t *testing.T) {
	w := newTestWallet(t)
	require.Empty(t, request[[]string](t, w, "eth_accounts"))

	accounts := request[[]string](t, w, "eth_requestAccounts")
	require.Equal(t, []string{w.Address().Hex()}, accounts)
	require.Equal(t, accounts, request[[]string](t, w, "eth_accounts"))
}

func TestRequestAccountsRejected(t *testing.T) {
	w := newTestWallet(t, WithApprover(func(context.Context, string) bool { return false }))
	_, err := w.Request(context.Background(), "eth_requestAccounts")
	require.Error(t, err)
	require.Equal(t, provider.CodeUserRejected, provider.Code(err))
}

func TestBalance(t *testing.T) {
	w := newTestWallet(t)
	bal := request[string](t, w, "eth_getBalance", w.Address().Hex(), "latest")
	require.Equal(t, "0x14d1120d7b160000", bal)
}

func TestSwitchUnknownChainThenAdd(t *testing.T) {
	w := newTestWallet(t)
	var changes []any
	w.On(provider.EventChainChanged, provider.NewListener(func(data any) { changes = append(changes, data) }))

	_, err := w.Request(context.Background(), "wallet_switchEthereumChain", map[string]string{"chainId": networks.BaseMainnet.HexChainID()})
	require.Equal(t, provider.CodeUnrecognizedChain, provider.Code(err))

	_, err = w.Request(context.Background(), "wallet_addEthereumChain", networks.BaseMainnet.AddChainParams())
	require.NoError(t, err)
	_, err = w.Request(context.Background(), "wallet_switchEthereumChain", map[string]string{"chainId": networks.BaseMainnet.HexChainID()})
	require.NoError(t, err)

	require.Equal(t, "0x2105", request[string](t, w, "eth_chainId"))
	require.Equal(t, []any{"0x2105"}, changes)
}

func TestLockEmitsEmptyAccounts(t *testing.T) {
	w := newTestWallet(t, Authorized())
	var got any
	w.On(provider.EventAccountsChanged, provider.NewListener(func(data any) { got = data }))

	w.Lock()
	require.Equal(t, []string{}, got)
	require.Empty(t, request[[]string](t, w, "eth_accounts"))
}

func TestSigner(t *testing.T) {
	w := newTestWallet(t)
	_, err := w.Signer(context.Background(), common.Address{})
	require.Error(t, err, "signing must wait for account access")

	request[[]string](t, w, "eth_requestAccounts")
	s, err := w.Signer(context.Background(), w.Address())
	require.NoError(t, err)

	to := common.HexToAddress("0x6c593Ca0081b80e2bb447E080C0b8Cff4c76F8F4")
	chainID := big.NewInt(int64(networks.BaseSepoliaChainID))
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, To: &to, Value: big.NewInt(1), Gas: 21000, GasPrice: big.NewInt(1)})
	signed, err := s.SignTx(context.Background(), tx, chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	require.Equal(t, w.Address(), from)

	_, err = w.Signer(context.Background(), to)
	require.Error(t, err)
}
