package services

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"logane/internal/errs"
	"logane/internal/keywallet"
	"logane/internal/ledger"
	"logane/internal/models"
	"logane/internal/networks"
	"logane/internal/provider"
	"logane/internal/session"
)

type fixedBalance struct{ wei *big.Int }

func (b fixedBalance) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return b.wei, nil
}

// liveLike answers from the simulation but asks for the live wallet checks.
type liveLike struct{ *ledger.Simulated }

func (liveLike) Mode() ledger.Mode { return ledger.ModeLive }

func newWallet(t *testing.T, wei *big.Int, opts ...keywallet.Option) *keywallet.Wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]keywallet.Option{
		keywallet.WithDialer(func(context.Context, string) (keywallet.BalanceReader, error) {
			return fixedBalance{wei: wei}, nil
		}),
	}, opts...)
	return keywallet.New(key, []networks.Network{networks.BaseSepolia, networks.BaseMainnet}, opts...)
}

func newService(t *testing.T, g ledger.Gateway, w *keywallet.Wallet, start bool) *RaffleService {
	t.Helper()
	s := session.New(provider.Adapt(w), networks.BaseSepolia)
	if start {
		s.Start(context.Background())
	}
	t.Cleanup(s.Close)
	return NewRaffleService(s, g)
}

func oneEther() *big.Int { return big.NewInt(1_000_000_000_000_000_000) }

func testRequest() models.CreateRaffleRequest {
	return models.CreateRaffleRequest{
		Title:           "Rifa",
		Description:     "Una bicicleta",
		Prizes:          []models.PrizeInput{{Name: "Bicicleta", Value: decimal.RequireFromString("0.2")}},
		PrizeCount:      1,
		TicketPrice:     decimal.RequireFromString("0.01"),
		MaxParticipants: 20,
		Duration:        86400,
		PaymentToken:    models.ETH,
	}
}

func TestRaffleService_Simulated(t *testing.T) {
	ctx := context.Background()
	w := newWallet(t, oneEther(), keywallet.Authorized(), keywallet.WithChain(networks.BaseSepoliaChainID))
	service := newService(t, ledger.NewSimulated(), w, true)
	me := w.Address().Hex()

	if service.Mode() != ledger.ModeSimulated {
		t.Fatalf("Expected simulated mode, but got %s", service.Mode())
	}
	if !service.Session().IsConnected() {
		t.Fatalf("Expected connected session, but got %s", service.Session().State)
	}

	res := service.CreateRaffle(ctx, testRequest())
	if !res.Success {
		t.Fatalf("Expected no error, but got %v", res.Err())
	}

	t.Run("Test creator defaults to the wallet", func(t *testing.T) {
		mine := service.UserRaffles(ctx, me)
		if len(mine) != 1 || mine[0].ID != res.RaffleID {
			t.Fatalf("Expected the new raffle for %s, but got %d raffles", me, len(mine))
		}
	})

	t.Run("Test participate with the wallet account", func(t *testing.T) {
		if r := service.Participate(ctx, res.RaffleID, ""); !r.Success {
			t.Fatalf("Expected no error, but got %v", r.Err())
		}
		raffle, err := service.Raffle(ctx, res.RaffleID)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if !raffle.HasParticipant(me) {
			t.Fatalf("Expected %s among participants", me)
		}
	})

	t.Run("Test duplicate participation", func(t *testing.T) {
		r := service.Participate(ctx, res.RaffleID, me)
		if r.Success || !errors.Is(r.Err(), errs.ErrValidation) {
			t.Fatalf("Expected a validation error, but got %+v", r)
		}
	})

	t.Run("Test unknown raffle", func(t *testing.T) {
		_, err := service.Raffle(ctx, 4242)
		if !errors.Is(err, ErrRaffleNotFound) {
			t.Fatalf("Expected ErrRaffleNotFound, but got %v", err)
		}
	})

	t.Run("Test draw before end", func(t *testing.T) {
		r := service.Draw(ctx, res.RaffleID)
		if r.Success {
			t.Fatal("Expected an error for drawing an open raffle, but got success")
		}
	})

	t.Run("Test invalid creation", func(t *testing.T) {
		req := testRequest()
		req.Title = " "
		if r := service.CreateRaffle(ctx, req); !errors.Is(r.Err(), errs.ErrValidation) {
			t.Fatalf("Expected a validation error, but got %+v", r)
		}
	})
}

func TestRaffleService_SimulatedJoinIgnoresBalance(t *testing.T) {
	ctx := context.Background()
	w := newWallet(t, big.NewInt(0), keywallet.Authorized())
	service := newService(t, ledger.NewSimulated(), w, true)
	if got := service.Session().Balance; got != "0.0000" {
		t.Fatalf("Expected balance 0.0000, but got %q", got)
	}

	t.Run("Test wallet account", func(t *testing.T) {
		if r := service.Participate(ctx, 1, ""); !r.Success {
			t.Fatalf("Expected no error, but got %v", r.Err())
		}
	})

	t.Run("Test other account", func(t *testing.T) {
		if r := service.Participate(ctx, 2, "0x3333333333333333333333333333333333333333"); !r.Success {
			t.Fatalf("Expected no error, but got %v", r.Err())
		}
	})
}

func TestRaffleService_LiveWalletChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("Test session not started", func(t *testing.T) {
		w := newWallet(t, oneEther(), keywallet.Authorized())
		service := newService(t, liveLike{ledger.NewSimulated()}, w, false)
		r := service.CreateRaffle(ctx, testRequest())
		if !errors.Is(r.Err(), errs.ErrNotReady) {
			t.Fatalf("Expected NotReady, but got %+v", r)
		}
	})

	t.Run("Test wallet not connected", func(t *testing.T) {
		w := newWallet(t, oneEther())
		service := newService(t, liveLike{ledger.NewSimulated()}, w, true)
		r := service.Participate(ctx, 1, "0x1111111111111111111111111111111111111111")
		if !errors.Is(r.Err(), errs.ErrProviderUnavailable) {
			t.Fatalf("Expected ProviderUnavailable, but got %+v", r)
		}
	})

	t.Run("Test insufficient balance", func(t *testing.T) {
		w := newWallet(t, big.NewInt(5_000_000_000_000_000), keywallet.Authorized())
		service := newService(t, liveLike{ledger.NewSimulated()}, w, true)
		if got := service.Session().Balance; got != "0.0050" {
			t.Fatalf("Expected balance 0.0050, but got %q", got)
		}
		r := service.Participate(ctx, 1, "")
		if !errors.Is(r.Err(), errs.ErrInsufficientBalance) {
			t.Fatalf("Expected InsufficientBalance, but got %+v", r)
		}
	})

	t.Run("Test balance of another account is not checked", func(t *testing.T) {
		w := newWallet(t, big.NewInt(5_000_000_000_000_000), keywallet.Authorized())
		service := newService(t, liveLike{ledger.NewSimulated()}, w, true)
		r := service.Participate(ctx, 1, "0x3333333333333333333333333333333333333333")
		if !r.Success {
			t.Fatalf("Expected no error, but got %v", r.Err())
		}
	})

	t.Run("Test switches network before writing", func(t *testing.T) {
		w := newWallet(t, oneEther(), keywallet.Authorized(), keywallet.WithChain(networks.BaseMainnetChainID))
		service := newService(t, liveLike{ledger.NewSimulated()}, w, true)
		// The user moves the wallet to another chain after connecting.
		if _, err := w.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": networks.BaseMainnet.HexChainID()}); err != nil {
			t.Fatal(err)
		}
		if service.Session().IsCorrectNetwork() {
			t.Fatal("Expected the session to follow the chain change")
		}
		r := service.CreateRaffle(ctx, testRequest())
		if !r.Success {
			t.Fatalf("Expected no error, but got %v", r.Err())
		}
		if !service.Session().IsCorrectNetwork() {
			t.Fatalf("Expected wallet on %s, but got %s", networks.BaseSepolia.HexChainID(), service.Session().NetworkID)
		}
	})
}

func TestRaffleService_RunBalanceRefresh(t *testing.T) {
	w := newWallet(t, oneEther(), keywallet.Authorized())
	service := newService(t, ledger.NewSimulated(), w, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		service.RunBalanceRefresh(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected the refresh loop to stop after cancellation")
	}
	if got := service.Session().Balance; got != "1.0000" {
		t.Fatalf("Expected balance 1.0000, but got %q", got)
	}
}
