package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/logger"

	"logane/internal/errs"
	"logane/internal/ledger"
	"logane/internal/models"
	"logane/internal/rules"
	"logane/internal/session"
)

// ErrRaffleNotFound is returned for ids the ledger does not know.
var ErrRaffleNotFound = errs.New(errs.ValidationError, "raffle not found")

// RaffleService ties the wallet session to the ledger gateway.
type RaffleService struct {
	session *session.Session
	ledger  ledger.Gateway
	now     func() time.Time
}

// NewRaffleService creates and initializes a new RaffleService.
func NewRaffleService(s *session.Session, g ledger.Gateway) *RaffleService {
	return &RaffleService{session: s, ledger: g, now: time.Now}
}

// Mode reports which ledger backs the service.
func (s *RaffleService) Mode() ledger.Mode { return s.ledger.Mode() }

// Session returns the current wallet snapshot.
func (s *RaffleService) Session() session.Snapshot { return s.session.Snapshot() }

// Connect prompts the wallet for access.
func (s *RaffleService) Connect(ctx context.Context) (session.Snapshot, error) {
	err := s.session.Connect(ctx)
	return s.session.Snapshot(), err
}

// Disconnect forgets the connected account.
func (s *RaffleService) Disconnect() session.Snapshot {
	s.session.Disconnect()
	return s.session.Snapshot()
}

// RefreshBalance re-reads the wallet balance.
func (s *RaffleService) RefreshBalance(ctx context.Context) (session.Snapshot, error) {
	err := s.session.RefreshBalance(ctx)
	return s.session.Snapshot(), err
}

// ActiveRaffles returns the raffles still open for entries.
func (s *RaffleService) ActiveRaffles(ctx context.Context) []*models.Raffle {
	return s.ledger.GetActiveRaffles(ctx)
}

// UserRaffles returns the raffles created by address.
func (s *RaffleService) UserRaffles(ctx context.Context, address string) []*models.Raffle {
	return s.ledger.GetUserRaffles(ctx, address)
}

// Raffle returns one raffle or ErrRaffleNotFound.
func (s *RaffleService) Raffle(ctx context.Context, id uint64) (*models.Raffle, error) {
	r := s.ledger.GetRaffle(ctx, id)
	if r == nil {
		return nil, ErrRaffleNotFound
	}
	return r, nil
}

// account picks the acting account: the explicit one, or the session's.
func (s *RaffleService) account(address string) string {
	if a := strings.TrimSpace(address); a != "" {
		return a
	}
	return s.session.Snapshot().Address
}

// requireWallet gates live writes on a connected wallet on the target
// network. The simulation needs no signature and skips it.
func (s *RaffleService) requireWallet(ctx context.Context) (session.Snapshot, error) {
	snap := s.session.Snapshot()
	if s.ledger.Mode() != ledger.ModeLive {
		return snap, nil
	}
	switch snap.State {
	case session.Uninitialized, session.Bootstrapping:
		return snap, errs.New(errs.NotReady, "wallet session is still starting")
	case session.Connected:
	default:
		return snap, errs.New(errs.ProviderUnavailable, "connect a wallet first")
	}
	if !snap.IsCorrectNetwork() {
		if err := s.session.CheckNetwork(ctx); err != nil {
			return s.session.Snapshot(), err
		}
		snap = s.session.Snapshot()
		if !snap.IsCorrectNetwork() {
			return snap, errs.Newf(errs.NetworkMismatch, "switch your wallet to %s", s.session.Target().Name)
		}
	}
	return snap, nil
}

// CreateRaffle validates req and submits it. The connected account becomes
// the creator when req names none.
func (s *RaffleService) CreateRaffle(ctx context.Context, req models.CreateRaffleRequest) models.Result {
	if err := rules.ValidateCreate(req); err != nil {
		return models.Fail(err)
	}
	if _, err := s.requireWallet(ctx); err != nil {
		return models.Fail(err)
	}
	req.Creator = s.account(req.Creator)
	res := s.ledger.CreateRaffle(ctx, req)
	if res.Success {
		logger.Infof("Raffle %d created by %s", res.RaffleID, session.FormatAddress(req.Creator))
	} else {
		logger.Warningf("Raffle creation failed: %v", res.Err())
	}
	return res
}

// CheckParticipation runs the entry checks without submitting anything.
func (s *RaffleService) CheckParticipation(ctx context.Context, id uint64, address string) (*models.Raffle, error) {
	address = s.account(address)
	if address == "" {
		return nil, errs.New(errs.ValidationError, "invalid raffle id or user address")
	}
	r, err := s.Raffle(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.ledger.HasUserParticipated(ctx, id, address) {
		return r, errs.New(errs.ValidationError, "already participated")
	}
	return r, rules.CanJoin(r, address, s.now())
}

// Participate joins raffle id. On a live ledger, native-priced tickets paid by
// the connected wallet are checked against its known balance first.
func (s *RaffleService) Participate(ctx context.Context, id uint64, address string) models.Result {
	snap, err := s.requireWallet(ctx)
	if err != nil {
		return models.Fail(err)
	}
	address = s.account(address)
	r, err := s.CheckParticipation(ctx, id, address)
	if err != nil {
		return models.Fail(err)
	}
	if s.ledger.Mode() == ledger.ModeLive && models.SameAccount(address, snap.Address) {
		if err := checkFunds(r, snap); err != nil {
			return models.Fail(err)
		}
	}
	res := s.ledger.JoinRaffle(ctx, id, address)
	if res.Success {
		logger.Infof("%s joined raffle %d", session.FormatAddress(address), id)
		s.refreshAfterWrite(ctx)
	}
	return res
}

func checkFunds(r *models.Raffle, snap session.Snapshot) error {
	if !r.PaymentToken.IsNative() || snap.Balance == "" {
		return nil
	}
	if snap.BalanceDecimal().LessThan(r.TicketPriceDisplay()) {
		return errs.Newf(errs.InsufficientBalance, "ticket costs %s, balance is %s %s",
			models.FormatAmount(r.TicketPrice, r.PaymentToken), snap.Balance, r.PaymentToken)
	}
	return nil
}

// Draw checks that raffle id can be drawn and submits the draw.
func (s *RaffleService) Draw(ctx context.Context, id uint64) models.Result {
	if _, err := s.requireWallet(ctx); err != nil {
		return models.Fail(err)
	}
	r, err := s.Raffle(ctx, id)
	if err != nil {
		return models.Fail(err)
	}
	if err := rules.CanDraw(r, s.now()); err != nil {
		return models.Fail(err)
	}
	res := s.ledger.DrawWinners(ctx, id)
	if res.Success {
		logger.Infof("Raffle %d drawn", id)
	}
	return res
}

// Claim collects prize slot prizeIndex of raffle id for address.
func (s *RaffleService) Claim(ctx context.Context, id uint64, prizeIndex int, address string) models.Result {
	if _, err := s.requireWallet(ctx); err != nil {
		return models.Fail(err)
	}
	address = s.account(address)
	res := s.ledger.ClaimPrize(ctx, id, prizeIndex, address)
	if res.Success {
		logger.Infof("%s claimed prize %d of raffle %d", session.FormatAddress(address), prizeIndex, id)
		s.refreshAfterWrite(ctx)
	}
	return res
}

func (s *RaffleService) refreshAfterWrite(ctx context.Context) {
	if !s.session.Snapshot().IsConnected() {
		return
	}
	if err := s.session.RefreshBalance(ctx); err != nil {
		logger.Warningf("Error refreshing balance after write: %v", err)
	}
}

// RunBalanceRefresh re-reads the connected wallet's balance every interval
// until ctx is done.
func (s *RaffleService) RunBalanceRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshAfterWrite(ctx)
		}
	}
}
