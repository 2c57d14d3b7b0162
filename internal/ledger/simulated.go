package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/logger"
	"github.com/shopspring/decimal"

	"logane/internal/errs"
	"logane/internal/models"
	"logane/internal/rules"
)

// FirstSimulatedID is the id given to the first raffle created in simulation.
// Lower ids belong to the seed set.
const FirstSimulatedID = 1001

// Simulated keeps raffles in memory and applies the same lifecycle rules as
// the contract. Writes need no signature.
type Simulated struct {
	opts options

	mu      sync.Mutex
	raffles map[uint64]*models.Raffle
	claimed map[uint64]map[int]bool
	nextID  uint64
}

// NewSimulated returns a simulation preloaded with the seed raffles.
func NewSimulated(opts ...Option) *Simulated {
	s := &Simulated{
		opts:    buildOptions(opts),
		raffles: make(map[uint64]*models.Raffle),
		claimed: make(map[uint64]map[int]bool),
		nextID:  FirstSimulatedID,
	}
	for _, r := range seedRaffles(s.opts.now()) {
		s.raffles[r.ID] = r
	}
	return s
}

func (s *Simulated) Mode() Mode { return ModeSimulated }

type seedPrize struct {
	name  string
	value string
}

type seedRaffle struct {
	id           uint64
	title        string
	description  string
	prizes       []seedPrize
	ticketPrice  string
	max          uint64
	participants int
	lifetime     time.Duration
}

var seeds = []seedRaffle{
	{
		id:          1,
		title:       "Rifa iPhone 15 Pro",
		description: "Gana el último iPhone 15 Pro",
		prizes: []seedPrize{
			{"iPhone 15 Pro", "0.5"},
			{"AirPods Pro", "0.2"},
			{"Gift Card $100", "0.1"},
		},
		ticketPrice:  "0.01",
		max:          100,
		participants: 45,
		lifetime:     24 * time.Hour,
	},
	{
		id:          2,
		title:       "Rifa Gaming Setup",
		description: "Setup completo para gaming",
		prizes: []seedPrize{
			{"PC Gaming", "1.0"},
			{"Monitor 4K", "0.3"},
		},
		ticketPrice:  "0.02",
		max:          50,
		participants: 23,
		lifetime:     48 * time.Hour,
	},
}

// seedAccount derives a stable fake account from label.
func seedAccount(label string) string {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))).Hex()
}

func seedRaffles(now time.Time) []*models.Raffle {
	out := make([]*models.Raffle, 0, len(seeds))
	for _, sd := range seeds {
		r := &models.Raffle{
			ID:              sd.id,
			Title:           sd.title,
			Description:     sd.description,
			PrizeCount:      len(sd.prizes),
			TicketPrice:     ether(sd.ticketPrice),
			MaxParticipants: sd.max,
			EndTime:         now.Add(sd.lifetime).Unix(),
			Creator:         seedAccount(fmt.Sprintf("logane/seed/%d/creator", sd.id)),
			Participants:    make([]string, 0, sd.participants),
			IsActive:        true,
			CreatedAt:       now.Unix(),
			PaymentToken:    models.ETH,
		}
		for i := range r.Prizes {
			r.Prizes[i].Value = new(big.Int)
		}
		for i, p := range sd.prizes {
			r.Prizes[i] = models.Prize{Name: p.name, Value: ether(p.value)}
		}
		for i := 0; i < sd.participants; i++ {
			r.Participants = append(r.Participants, seedAccount(fmt.Sprintf("logane/seed/%d/participant/%d", sd.id, i)))
		}
		out = append(out, r)
	}
	return out
}

func ether(amount string) *big.Int {
	v, err := models.ToMinorUnits(decimal.RequireFromString(amount), models.ETH)
	if err != nil {
		panic(err)
	}
	return v
}

// sorted returns the stored raffles by id. Callers hold s.mu.
func (s *Simulated) sorted() []*models.Raffle {
	out := make([]*models.Raffle, 0, len(s.raffles))
	for _, r := range s.raffles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Simulated) GetRaffle(_ context.Context, id uint64) *models.Raffle {
	started := time.Now()
	s.mu.Lock()
	r := s.raffles[id].Clone()
	s.mu.Unlock()
	s.opts.metrics.Observe("get_raffle", ModeSimulated, started, nil)
	return r
}

func (s *Simulated) GetActiveRaffles(_ context.Context) []*models.Raffle {
	started := time.Now()
	s.mu.Lock()
	out := []*models.Raffle{}
	for _, r := range s.sorted() {
		if r.IsActive && !r.IsDrawn {
			out = append(out, r.Clone())
		}
	}
	s.mu.Unlock()
	s.opts.metrics.Observe("get_active_raffles", ModeSimulated, started, nil)
	return out
}

func (s *Simulated) GetUserRaffles(_ context.Context, address string) []*models.Raffle {
	started := time.Now()
	s.mu.Lock()
	out := []*models.Raffle{}
	for _, r := range s.sorted() {
		if models.SameAccount(r.Creator, address) {
			out = append(out, r.Clone())
		}
	}
	s.mu.Unlock()
	s.opts.metrics.Observe("get_user_raffles", ModeSimulated, started, nil)
	return out
}

func (s *Simulated) GetParticipantCount(_ context.Context, id uint64) (uint64, error) {
	started := time.Now()
	s.mu.Lock()
	r, ok := s.raffles[id]
	var count uint64
	if ok {
		count = uint64(len(r.Participants))
	}
	s.mu.Unlock()
	var err error
	if !ok {
		err = errs.Newf(errs.ValidationError, "raffle %d not found", id)
	}
	s.opts.metrics.Observe("get_participant_count", ModeSimulated, started, err)
	return count, err
}

// HasUserParticipated always reports false. JoinRaffle still rejects
// duplicates against the stored participant list.
func (s *Simulated) HasUserParticipated(context.Context, uint64, string) bool {
	return false
}

func (s *Simulated) CreateRaffle(_ context.Context, req models.CreateRaffleRequest) models.Result {
	started := time.Now()
	res := s.createRaffle(req)
	s.opts.metrics.Observe("create_raffle", ModeSimulated, started, res.Err())
	return res
}

func (s *Simulated) createRaffle(req models.CreateRaffleRequest) models.Result {
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
	now := s.opts.now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.raffles[id] = &models.Raffle{
		ID:              id,
		Title:           req.Title,
		Description:     req.Description,
		Prizes:          prizes,
		PrizeCount:      req.PrizeCount,
		TicketPrice:     price,
		MaxParticipants: req.MaxParticipants,
		EndTime:         now + req.Duration,
		Creator:         req.Creator,
		Participants:    []string{},
		IsActive:        true,
		CreatedAt:       now,
		PaymentToken:    req.PaymentToken,
	}
	logger.Infof("Simulated raffle %d created: %q", id, req.Title)
	res := models.Ok()
	res.RaffleID = id
	return res
}

func (s *Simulated) JoinRaffle(_ context.Context, id uint64, address string) models.Result {
	started := time.Now()
	res := s.joinRaffle(id, address)
	s.opts.metrics.Observe("join_raffle", ModeSimulated, started, res.Err())
	return res
}

func (s *Simulated) joinRaffle(id uint64, address string) models.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.raffles[id]
	if err := rules.CanJoin(r, address, s.opts.now()); err != nil {
		return models.Fail(err)
	}
	r.Participants = append(r.Participants, address)
	res := models.Ok()
	res.RaffleID = id
	return res
}

func (s *Simulated) DrawWinners(_ context.Context, id uint64) models.Result {
	started := time.Now()
	res := s.drawWinners(id)
	s.opts.metrics.Observe("draw_winners", ModeSimulated, started, res.Err())
	return res
}

func (s *Simulated) drawWinners(id uint64) models.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.raffles[id]
	if err := rules.CanDraw(r, s.opts.now()); err != nil {
		return models.Fail(err)
	}
	r.Winners = pickWinners(r)
	r.IsDrawn = true
	r.IsActive = false
	logger.Infof("Simulated raffle %d drawn", id)
	res := models.Ok()
	res.RaffleID = id
	return res
}

// pickWinners draws up to PrizeCount distinct participants. The draw is a
// pure function of the raffle so repeated runs agree.
func pickWinners(r *models.Raffle) [models.PrizeSlots]string {
	var winners [models.PrizeSlots]string
	pool := append([]string(nil), r.Participants...)

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], r.ID)
	binary.BigEndian.PutUint64(buf[8:], uint64(r.CreatedAt))
	seed := crypto.Keccak256(buf[:], []byte(r.Title))
	for _, p := range pool {
		seed = crypto.Keccak256(seed, []byte(p))
	}

	for i := 0; i < r.PrizeCount && len(pool) > 0; i++ {
		n := new(big.Int).SetBytes(seed)
		k := int(n.Mod(n, big.NewInt(int64(len(pool)))).Int64())
		winners[i] = pool[k]
		pool = append(pool[:k], pool[k+1:]...)
		seed = crypto.Keccak256(seed)
	}
	return winners
}

func (s *Simulated) ClaimPrize(_ context.Context, id uint64, prizeIndex int, address string) models.Result {
	started := time.Now()
	res := s.claimPrize(id, prizeIndex, address)
	s.opts.metrics.Observe("claim_prize", ModeSimulated, started, res.Err())
	return res
}

func (s *Simulated) claimPrize(id uint64, prizeIndex int, address string) models.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := rules.CanClaim(s.raffles[id], prizeIndex, address); err != nil {
		return models.Fail(err)
	}
	if s.claimed[id][prizeIndex] {
		return models.Fail(errs.New(errs.ValidationError, "prize already claimed"))
	}
	if s.claimed[id] == nil {
		s.claimed[id] = make(map[int]bool)
	}
	s.claimed[id][prizeIndex] = true
	res := models.Ok()
	res.RaffleID = id
	return res
}
