package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"logane/internal/models"
)

const prizeComponents = `[
	{"name":"name","type":"string"},
	{"name":"description","type":"string"},
	{"name":"imageUrl","type":"string"},
	{"name":"value","type":"uint256"}
]`

// raffleContractABI is the subset of the raffle contract the gateway uses.
var raffleContractABI = `[
{"type":"function","name":"getRaffle","stateMutability":"view",
 "inputs":[{"name":"_raffleId","type":"uint256"}],
 "outputs":[{"name":"","type":"tuple","components":[
	{"name":"id","type":"uint256"},
	{"name":"title","type":"string"},
	{"name":"description","type":"string"},
	{"name":"prizes","type":"tuple[9]","components":` + prizeComponents + `},
	{"name":"prizeCount","type":"uint256"},
	{"name":"ticketPrice","type":"uint256"},
	{"name":"maxParticipants","type":"uint256"},
	{"name":"endTime","type":"uint256"},
	{"name":"creator","type":"address"},
	{"name":"participants","type":"address[]"},
	{"name":"isActive","type":"bool"},
	{"name":"isDrawn","type":"bool"},
	{"name":"winners","type":"address[9]"},
	{"name":"createdAt","type":"uint256"},
	{"name":"paymentToken","type":"uint8"}
 ]}]},
{"type":"function","name":"raffleCounter","stateMutability":"view","inputs":[],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getUserRaffles","stateMutability":"view",
 "inputs":[{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
{"type":"function","name":"getParticipantCount","stateMutability":"view",
 "inputs":[{"name":"_raffleId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"hasParticipated","stateMutability":"view",
 "inputs":[{"name":"_raffleId","type":"uint256"},{"name":"_user","type":"address"}],
 "outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"createRaffle","stateMutability":"nonpayable",
 "inputs":[
	{"name":"_title","type":"string"},
	{"name":"_description","type":"string"},
	{"name":"_prizes","type":"tuple[9]","components":` + prizeComponents + `},
	{"name":"_prizeCount","type":"uint256"},
	{"name":"_ticketPrice","type":"uint256"},
	{"name":"_maxParticipants","type":"uint256"},
	{"name":"_duration","type":"uint256"},
	{"name":"_paymentToken","type":"uint8"}
 ],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"joinRaffle","stateMutability":"payable",
 "inputs":[{"name":"_raffleId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"drawWinners","stateMutability":"nonpayable",
 "inputs":[{"name":"_raffleId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"claimPrize","stateMutability":"nonpayable",
 "inputs":[{"name":"_raffleId","type":"uint256"},{"name":"_prizeIndex","type":"uint256"}],"outputs":[]},
{"type":"event","name":"RaffleCreated","anonymous":false,"inputs":[
	{"name":"raffleId","type":"uint256","indexed":true},
	{"name":"creator","type":"address","indexed":true},
	{"name":"title","type":"string","indexed":false},
	{"name":"ticketPrice","type":"uint256","indexed":false},
	{"name":"maxParticipants","type":"uint256","indexed":false},
	{"name":"endTime","type":"uint256","indexed":false},
	{"name":"paymentToken","type":"uint8","indexed":false}]},
{"type":"event","name":"ParticipantJoined","anonymous":false,"inputs":[
	{"name":"raffleId","type":"uint256","indexed":true},
	{"name":"participant","type":"address","indexed":true},
	{"name":"participantCount","type":"uint256","indexed":false}]},
{"type":"event","name":"RaffleDrawn","anonymous":false,"inputs":[
	{"name":"raffleId","type":"uint256","indexed":true},
	{"name":"winners","type":"address[9]","indexed":false},
	{"name":"prizeCount","type":"uint256","indexed":false},
	{"name":"timestamp","type":"uint256","indexed":false}]},
{"type":"event","name":"PrizeClaimed","anonymous":false,"inputs":[
	{"name":"raffleId","type":"uint256","indexed":true},
	{"name":"winner","type":"address","indexed":true},
	{"name":"prizeIndex","type":"uint256","indexed":false},
	{"name":"amount","type":"uint256","indexed":false}]}
]`

var raffleABI = mustParseABI(raffleContractABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse raffle ABI: %v", err))
	}
	return parsed
}

// prizeRecord mirrors the contract's Prize struct.
type prizeRecord struct {
	Name        string
	Description string
	ImageUrl    string
	Value       *big.Int
}

// raffleRecord mirrors the contract's Raffle struct.
type raffleRecord struct {
	Id              *big.Int
	Title           string
	Description     string
	Prizes          [models.PrizeSlots]prizeRecord
	PrizeCount      *big.Int
	TicketPrice     *big.Int
	MaxParticipants *big.Int
	EndTime         *big.Int
	Creator         common.Address
	Participants    []common.Address
	IsActive        bool
	IsDrawn         bool
	Winners         [models.PrizeSlots]common.Address
	CreatedAt       *big.Int
	PaymentToken    uint8
}

// decodeRaffle converts an unpacked getRaffle result. A zero id means the
// slot was never assigned and yields nil.
func decodeRaffle(out []interface{}) (r *models.Raffle, err error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("getRaffle returned %d values", len(out))
	}
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("decode raffle: %v", rec)
		}
	}()
	rec := *abi.ConvertType(out[0], new(raffleRecord)).(*raffleRecord)
	if rec.Id == nil || rec.Id.Sign() == 0 {
		return nil, nil
	}
	return rec.toModel(), nil
}

func (rec raffleRecord) toModel() *models.Raffle {
	r := &models.Raffle{
		ID:              rec.Id.Uint64(),
		Title:           rec.Title,
		Description:     rec.Description,
		PrizeCount:      int(bigUint(rec.PrizeCount)),
		TicketPrice:     orZero(rec.TicketPrice),
		MaxParticipants: bigUint(rec.MaxParticipants),
		EndTime:         int64(bigUint(rec.EndTime)),
		Creator:         rec.Creator.Hex(),
		Participants:    make([]string, 0, len(rec.Participants)),
		IsActive:        rec.IsActive,
		IsDrawn:         rec.IsDrawn,
		CreatedAt:       int64(bigUint(rec.CreatedAt)),
		PaymentToken:    models.PaymentToken(rec.PaymentToken),
	}
	for i, p := range rec.Prizes {
		r.Prizes[i] = models.Prize{Name: p.Name, Description: p.Description, ImageURL: p.ImageUrl, Value: orZero(p.Value)}
	}
	for _, a := range rec.Participants {
		r.Participants = append(r.Participants, a.Hex())
	}
	for i, w := range rec.Winners {
		if w != (common.Address{}) {
			r.Winners[i] = w.Hex()
		}
	}
	return r
}

func bigUint(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func toPrizeRecords(prizes [models.PrizeSlots]models.Prize) [models.PrizeSlots]prizeRecord {
	var out [models.PrizeSlots]prizeRecord
	for i, p := range prizes {
		out[i] = prizeRecord{Name: p.Name, Description: p.Description, ImageUrl: p.ImageURL, Value: orZero(p.Value)}
	}
	return out
}

// createdRaffleID looks for the RaffleCreated event emitted by contract in receipt.
func createdRaffleID(receipt *types.Receipt, contract common.Address) (uint64, bool) {
	if receipt == nil {
		return 0, false
	}
	topic := raffleABI.Events["RaffleCreated"].ID
	for _, log := range receipt.Logs {
		if log == nil || log.Address != contract {
			continue
		}
		if len(log.Topics) < 2 || log.Topics[0] != topic {
			continue
		}
		id := log.Topics[1].Big()
		if id.Sign() > 0 && id.IsUint64() {
			return id.Uint64(), true
		}
	}
	return 0, false
}
