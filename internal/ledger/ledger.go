// Package ledger translates raffle operations into calls against the raffle
// contract, or into an in-memory simulation when no contract is configured.
package ledger

import (
	"context"
	"time"

	"github.com/google/logger"

	"logane/internal/models"
	"logane/internal/networks"
	"logane/internal/provider"
)

// Mode tells which implementation backs a Gateway.
type Mode string

const (
	ModeLive      Mode = "live"
	ModeSimulated Mode = "simulated"
)

// Gateway is the ledger surface used by the application. Reads log failures
// and return nil or empty results; writes report every failure in the Result.
type Gateway interface {
	Mode() Mode
	GetRaffle(ctx context.Context, id uint64) *models.Raffle
	GetActiveRaffles(ctx context.Context) []*models.Raffle
	GetUserRaffles(ctx context.Context, address string) []*models.Raffle
	GetParticipantCount(ctx context.Context, id uint64) (uint64, error)
	HasUserParticipated(ctx context.Context, id uint64, address string) bool
	CreateRaffle(ctx context.Context, req models.CreateRaffleRequest) models.Result
	JoinRaffle(ctx context.Context, id uint64, address string) models.Result
	DrawWinners(ctx context.Context, id uint64) models.Result
	ClaimPrize(ctx context.Context, id uint64, prizeIndex int, address string) models.Result
}

type options struct {
	now          func() time.Time
	chain        func() uint64
	dial         Dialer
	pollInterval time.Duration
	metrics      *Metrics
}

// Option configures a gateway.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithChainSource tells the gateway which chain the wallet is on. It returns
// 0 while unknown.
func WithChainSource(chain func() uint64) Option {
	return func(o *options) { o.chain = chain }
}

// WithDialer replaces ethclient as the RPC backend.
func WithDialer(d Dialer) Option {
	return func(o *options) { o.dial = d }
}

// WithPollInterval sets how often receipts are polled after submission.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithMetrics overrides the process-wide metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{
		now:          time.Now,
		chain:        func() uint64 { return 0 },
		dial:         dialEthclient,
		pollInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = GatewayMetrics()
	}
	return o
}

// New picks the live gateway when any network has a contract address and the
// simulation otherwise.
func New(reg *networks.Registry, p *provider.Provider, opts ...Option) Gateway {
	if reg != nil && reg.AnyConfigured() {
		logger.Infof("ledger gateway: live mode")
		return NewLive(reg, p, opts...)
	}
	logger.Infof("ledger gateway: no contract address configured, using simulation")
	return NewSimulated(opts...)
}
