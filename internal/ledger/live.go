package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/logger"

	"logane/internal/errs"
	"logane/internal/models"
	"logane/internal/networks"
	"logane/internal/provider"
	"logane/internal/rules"
)

// Backend is the slice of an Ethereum RPC client the live gateway needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Dialer opens a Backend for an RPC endpoint.
type Dialer func(ctx context.Context, rpcURL string) (Backend, error)

func dialEthclient(ctx context.Context, rpcURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Live talks to the deployed raffle contract.
type Live struct {
	reg  *networks.Registry
	p    *provider.Provider
	opts options

	mu       sync.Mutex
	backends map[string]Backend
}

// NewLive builds a gateway against the contracts configured in reg.
func NewLive(reg *networks.Registry, p *provider.Provider, opts ...Option) *Live {
	return &Live{
		reg:      reg,
		p:        p,
		opts:     buildOptions(opts),
		backends: make(map[string]Backend),
	}
}

func (l *Live) Mode() Mode { return ModeLive }

// backend returns the shared connection for rpcURL, dialing it on first use.
func (l *Live) backend(ctx context.Context, rpcURL string) (Backend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.backends[rpcURL]; ok {
		return b, nil
	}
	b, err := l.opts.dial(ctx, rpcURL)
	if err != nil {
		return nil, errs.Wrap(errs.ChainCallFailure, err, "dial "+rpcURL)
	}
	l.backends[rpcURL] = b
	return b, nil
}

// readNetwork resolves the network reads go to.
func (l *Live) readNetwork() (networks.Network, error) {
	n, ok := l.reg.Resolve(l.opts.chain())
	if !ok {
		return networks.Network{}, errs.New(errs.NetworkUnconfigured, "no contract address configured")
	}
	return n, nil
}

// writeNetwork resolves the network writes go to. Writes never fall back to
// another chain than the wallet's.
func (l *Live) writeNetwork() (networks.Network, error) {
	id := l.opts.chain()
	if id == 0 {
		id = l.reg.Default().ChainID
	}
	n, ok := l.reg.Lookup(id)
	if !ok || !n.HasContract() {
		return networks.Network{}, errs.Newf(errs.NetworkUnconfigured, "no contract address configured for chain %d", id)
	}
	return n, nil
}

func (l *Live) call(ctx context.Context, n networks.Network, method string, args ...interface{}) ([]interface{}, error) {
	b, err := l.backend(ctx, n.RPCURL)
	if err != nil {
		return nil, err
	}
	data, err := raffleABI.Pack(method, args...)
	if err != nil {
		return nil, errs.Wrap(errs.ChainCallFailure, err, "pack "+method)
	}
	contract := n.Contract()
	raw, err := b.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ChainCallFailure, err, method)
	}
	out, err := raffleABI.Unpack(method, raw)
	if err != nil {
		return nil, errs.Wrap(errs.ChainCallFailure, err, "unpack "+method)
	}
	return out, nil
}

func (l *Live) callUint(ctx context.Context, n networks.Network, method string, args ...interface{}) (uint64, error) {
	out, err := l.call(ctx, n, method, args...)
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, errs.Newf(errs.ChainCallFailure, "%s returned %d values", method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok || !v.IsUint64() {
		return 0, errs.Newf(errs.ChainCallFailure, "%s returned %T", method, out[0])
	}
	return v.Uint64(), nil
}

func (l *Live) getRaffle(ctx context.Context, n networks.Network, id uint64) (*models.Raffle, error) {
	out, err := l.call(ctx, n, "getRaffle", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	r, err := decodeRaffle(out)
	if err != nil {
		return nil, errs.Wrap(errs.ChainCallFailure, err, "decode raffle")
	}
	return r, nil
}

// GetRaffle returns nil when the id is unassigned or the read fails.
func (l *Live) GetRaffle(ctx context.Context, id uint64) *models.Raffle {
	started := time.Now()
	n, err := l.readNetwork()
	var r *models.Raffle
	if err == nil {
		r, err = l.getRaffle(ctx, n, id)
	}
	l.opts.metrics.Observe("get_raffle", ModeLive, started, err)
	if err != nil {
		logger.Errorf("Error fetching raffle %d: %v", id, err)
		return nil
	}
	return r
}

// GetActiveRaffles walks ids up to the contract's counter.
func (l *Live) GetActiveRaffles(ctx context.Context) []*models.Raffle {
	started := time.Now()
	raffles, err := l.activeRaffles(ctx)
	l.opts.metrics.Observe("get_active_raffles", ModeLive, started, err)
	if err != nil {
		logger.Errorf("Error fetching active raffles: %v", err)
		return []*models.Raffle{}
	}
	return raffles
}

func (l *Live) activeRaffles(ctx context.Context) ([]*models.Raffle, error) {
	n, err := l.readNetwork()
	if err != nil {
		return nil, err
	}
	next, err := l.callUint(ctx, n, "raffleCounter")
	if err != nil {
		return nil, err
	}
	raffles := []*models.Raffle{}
	for id := uint64(1); id < next; id++ {
		r, err := l.getRaffle(ctx, n, id)
		if err != nil {
			logger.Warningf("Skipping raffle %d: %v", id, err)
			continue
		}
		if r != nil && r.IsActive && !r.IsDrawn {
			raffles = append(raffles, r)
		}
	}
	return raffles, nil
}

// GetUserRaffles returns the raffles created by address.
func (l *Live) GetUserRaffles(ctx context.Context, address string) []*models.Raffle {
	started := time.Now()
	raffles, err := l.userRaffles(ctx, address)
	l.opts.metrics.Observe("get_user_raffles", ModeLive, started, err)
	if err != nil {
		logger.Errorf("Error fetching raffles of %s: %v", address, err)
		return []*models.Raffle{}
	}
	return raffles
}

func (l *Live) userRaffles(ctx context.Context, address string) ([]*models.Raffle, error) {
	if !common.IsHexAddress(address) {
		return nil, errs.Newf(errs.ValidationError, "invalid address %q", address)
	}
	n, err := l.readNetwork()
	if err != nil {
		return nil, err
	}
	out, err := l.call(ctx, n, "getUserRaffles", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, errs.Newf(errs.ChainCallFailure, "getUserRaffles returned %T", out[0])
	}
	raffles := []*models.Raffle{}
	for _, id := range ids {
		r, err := l.getRaffle(ctx, n, id.Uint64())
		if err != nil {
			logger.Warningf("Skipping raffle %s: %v", id, err)
			continue
		}
		if r != nil && models.SameAccount(r.Creator, address) {
			raffles = append(raffles, r)
		}
	}
	return raffles, nil
}

func (l *Live) GetParticipantCount(ctx context.Context, id uint64) (uint64, error) {
	started := time.Now()
	n, err := l.readNetwork()
	var count uint64
	if err == nil {
		count, err = l.callUint(ctx, n, "getParticipantCount", new(big.Int).SetUint64(id))
	}
	l.opts.metrics.Observe("get_participant_count", ModeLive, started, err)
	return count, err
}

func (l *Live) HasUserParticipated(ctx context.Context, id uint64, address string) bool {
	started := time.Now()
	joined, err := l.hasParticipated(ctx, id, address)
	l.opts.metrics.Observe("has_participated", ModeLive, started, err)
	if err != nil {
		logger.Errorf("Error checking participation of %s in raffle %d: %v", address, id, err)
		return false
	}
	return joined
}

func (l *Live) hasParticipated(ctx context.Context, id uint64, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, errs.Newf(errs.ValidationError, "invalid address %q", address)
	}
	n, err := l.readNetwork()
	if err != nil {
		return false, err
	}
	out, err := l.call(ctx, n, "hasParticipated", new(big.Int).SetUint64(id), common.HexToAddress(address))
	if err != nil {
		return false, err
	}
	joined, ok := out[0].(bool)
	if !ok {
		return false, errs.Newf(errs.ChainCallFailure, "hasParticipated returned %T", out[0])
	}
	return joined, nil
}

// CreateRaffle validates req, submits it and reports the assigned id.
func (l *Live) CreateRaffle(ctx context.Context, req models.CreateRaffleRequest) models.Result {
	started := time.Now()
	res := l.createRaffle(ctx, req)
	l.opts.metrics.Observe("create_raffle", ModeLive, started, res.Err())
	return res
}

func (l *Live) createRaffle(ctx context.Context, req models.CreateRaffleRequest) models.Result {
	if err := rules.ValidateCreate(req); err != nil {
		return models.Fail(err)
	}
	prizes, err := req.NormalizedPrizes()
	if err != nil {
		return models.Fail(errs.Wrap(errs.ValidationError, err, "invalid prize value"))
	}
	price, err := models.ToMinorUnits(req.TicketPrice, req.PaymentToken)
	if err != nil {
		return models.Fail(errs.Wrap(errs.ValidationError, err, "invalid ticket price"))
	}
	n, err := l.writeNetwork()
	if err != nil {
		return models.Fail(err)
	}
	var from common.Address
	if common.IsHexAddress(req.Creator) {
		from = common.HexToAddress(req.Creator)
	}
	receipt, err := l.transact(ctx, n, from, nil, "createRaffle",
		req.Title, req.Description, toPrizeRecords(prizes),
		big.NewInt(int64(req.PrizeCount)), price,
		new(big.Int).SetUint64(req.MaxParticipants), big.NewInt(req.Duration),
		uint8(req.PaymentToken))
	if err != nil {
		return failedTx(receipt, err)
	}
	res := models.Ok()
	res.TxHash = receipt.TxHash.Hex()
	if id, ok := createdRaffleID(receipt, n.Contract()); ok {
		res.RaffleID = id
		return res
	}
	logger.Warningf("RaffleCreated event missing from %s, reading counter", res.TxHash)
	next, err := l.callUint(ctx, n, "raffleCounter")
	if err != nil || next == 0 {
		logger.Errorf("Error reading raffle counter after creation: %v", err)
		return res
	}
	res.RaffleID = next - 1
	return res
}

// JoinRaffle pays the ticket in native currency when the raffle is priced in
// it. Token-priced raffles rely on an allowance granted beforehand.
func (l *Live) JoinRaffle(ctx context.Context, id uint64, address string) models.Result {
	started := time.Now()
	res := l.joinRaffle(ctx, id, address)
	l.opts.metrics.Observe("join_raffle", ModeLive, started, res.Err())
	return res
}

func (l *Live) joinRaffle(ctx context.Context, id uint64, address string) models.Result {
	if !common.IsHexAddress(address) {
		return models.Fail(errs.Newf(errs.ValidationError, "invalid address %q", address))
	}
	n, err := l.writeNetwork()
	if err != nil {
		return models.Fail(err)
	}
	r, err := l.getRaffle(ctx, n, id)
	if err != nil {
		return models.Fail(err)
	}
	if err := rules.CanJoin(r, address, l.opts.now()); err != nil {
		return models.Fail(err)
	}
	var value *big.Int
	if r.PaymentToken.IsNative() {
		value = r.TicketPrice
	}
	receipt, err := l.transact(ctx, n, common.HexToAddress(address), value, "joinRaffle", new(big.Int).SetUint64(id))
	if err != nil {
		return failedTx(receipt, err)
	}
	res := models.Ok()
	res.TxHash = receipt.TxHash.Hex()
	return res
}

// DrawWinners asks the contract to pick winners. Selection happens on chain.
func (l *Live) DrawWinners(ctx context.Context, id uint64) models.Result {
	started := time.Now()
	res := l.drawWinners(ctx, id)
	l.opts.metrics.Observe("draw_winners", ModeLive, started, res.Err())
	return res
}

func (l *Live) drawWinners(ctx context.Context, id uint64) models.Result {
	n, err := l.writeNetwork()
	if err != nil {
		return models.Fail(err)
	}
	r, err := l.getRaffle(ctx, n, id)
	if err != nil {
		return models.Fail(err)
	}
	if err := rules.CanDraw(r, l.opts.now()); err != nil {
		return models.Fail(err)
	}
	receipt, err := l.transact(ctx, n, common.Address{}, nil, "drawWinners", new(big.Int).SetUint64(id))
	if err != nil {
		return failedTx(receipt, err)
	}
	res := models.Ok()
	res.TxHash = receipt.TxHash.Hex()
	return res
}

func (l *Live) ClaimPrize(ctx context.Context, id uint64, prizeIndex int, address string) models.Result {
	started := time.Now()
	res := l.claimPrize(ctx, id, prizeIndex, address)
	l.opts.metrics.Observe("claim_prize", ModeLive, started, res.Err())
	return res
}

func (l *Live) claimPrize(ctx context.Context, id uint64, prizeIndex int, address string) models.Result {
	if !common.IsHexAddress(address) {
		return models.Fail(errs.Newf(errs.ValidationError, "invalid address %q", address))
	}
	n, err := l.writeNetwork()
	if err != nil {
		return models.Fail(err)
	}
	r, err := l.getRaffle(ctx, n, id)
	if err != nil {
		return models.Fail(err)
	}
	if err := rules.CanClaim(r, prizeIndex, address); err != nil {
		return models.Fail(err)
	}
	receipt, err := l.transact(ctx, n, common.HexToAddress(address), nil, "claimPrize",
		new(big.Int).SetUint64(id), big.NewInt(int64(prizeIndex)))
	if err != nil {
		return failedTx(receipt, err)
	}
	res := models.Ok()
	res.TxHash = receipt.TxHash.Hex()
	return res
}

func failedTx(receipt *types.Receipt, err error) models.Result {
	res := models.Fail(err)
	if receipt != nil {
		res.TxHash = receipt.TxHash.Hex()
	}
	return res
}

var errReverted = errors.New("transaction reverted")

// transact signs method with the wallet's signer for from, submits it and
// waits for the receipt. A reverted receipt is returned together with the
// error.
func (l *Live) transact(ctx context.Context, n networks.Network, from common.Address, value *big.Int, method string, args ...interface{}) (*types.Receipt, error) {
	signer, err := l.p.Signer(ctx, from)
	if err != nil {
		return nil, err
	}
	b, err := l.backend(ctx, n.RPCURL)
	if err != nil {
		return nil, err
	}
	data, err := raffleABI.Pack(method, args...)
	if err != nil {
		return nil, errs.Wrap(errs.ChainCallFailure, err, "pack "+method)
	}
	if value == nil {
		value = new(big.Int)
	}
	contract := n.Contract()
	sender := signer.Address()

	nonce, err := b.PendingNonceAt(ctx, sender)
	if err != nil {
		return nil, errs.Wrap(errs.ChainCallFailure, err, "read nonce")
	}
	gasPrice, err := b.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ChainCallFailure, err, "suggest gas price")
	}
	gas, err := b.EstimateGas(ctx, ethereum.CallMsg{From: sender, To: &contract, Value: value, Data: data})
	if err != nil {
		return nil, errs.Wrap(errs.ChainCallFailure, err, "estimate gas for "+method)
	}
	gas += gas / 5

	tx := types.NewTransaction(nonce, contract, value, gas, gasPrice, data)
	signed, err := signer.SignTx(ctx, tx, new(big.Int).SetUint64(n.ChainID))
	if err != nil {
		if provider.Code(err) == provider.CodeUserRejected {
			return nil, errs.Wrap(errs.UserRejected, err, "transaction rejected")
		}
		return nil, errs.Wrap(errs.NoSigner, err, "transaction not signed")
	}
	if err := b.SendTransaction(ctx, signed); err != nil {
		return nil, errs.Wrap(errs.ChainCallFailure, err, "send "+method)
	}
	logger.Infof("Submitted %s as %s on chain %d", method, signed.Hash().Hex(), n.ChainID)

	receipt, err := l.waitMined(ctx, b, signed.Hash())
	if err != nil {
		return nil, errs.Wrap(errs.ChainCallFailure, err, "wait for "+method)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, errs.Wrap(errs.ChainCallFailure, errReverted, fmt.Sprintf("%s %s", method, receipt.TxHash.Hex()))
	}
	return receipt, nil
}

func (l *Live) waitMined(ctx context.Context, b Backend, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(l.opts.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := b.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
