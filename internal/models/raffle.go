package models

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// PrizeSlots is the fixed number of prize and winner slots on every raffle.
const PrizeSlots = 9

// Prize represents one prize slot of a raffle. Value is expressed in minor
// units of the raffle's payment token. Unused slots carry empty values.
type Prize struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ImageURL    string   `json:"imageUrl"`
	Value       *big.Int `json:"value"`
}

// IsEmpty reports whether the slot is an unused placeholder.
func (p Prize) IsEmpty() bool {
	return p.Name == "" && p.Description == "" && p.ImageURL == "" && (p.Value == nil || p.Value.Sign() == 0)
}

// Raffle is a raffle record as held by the ledger.
type Raffle struct {
	ID              uint64             `json:"id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Prizes          [PrizeSlots]Prize  `json:"prizes"`
	PrizeCount      int                `json:"prizeCount"`
	TicketPrice     *big.Int           `json:"ticketPrice"`
	MaxParticipants uint64             `json:"maxParticipants"`
	EndTime         int64              `json:"endTime"`
	Creator         string             `json:"creator"`
	Participants    []string           `json:"participants"`
	IsActive        bool               `json:"isActive"`
	IsDrawn         bool               `json:"isDrawn"`
	Winners         [PrizeSlots]string `json:"winners"`
	CreatedAt       int64              `json:"createdAt"`
	PaymentToken    PaymentToken       `json:"paymentToken"`
}

// HasParticipant reports whether account already joined. Account identifiers
// compare case-insensitively.
func (r *Raffle) HasParticipant(account string) bool {
	for _, p := range r.Participants {
		if SameAccount(p, account) {
			return true
		}
	}
	return false
}

// IsFull reports whether no participant slot is left.
func (r *Raffle) IsFull() bool {
	return uint64(len(r.Participants)) >= r.MaxParticipants
}

// ActivePrizes returns the prize slots in use.
func (r *Raffle) ActivePrizes() []Prize {
	n := r.PrizeCount
	if n < 0 {
		n = 0
	}
	if n > PrizeSlots {
		n = PrizeSlots
	}
	return r.Prizes[:n]
}

// TicketPriceDisplay converts the ticket price to a human amount using the
// raffle's token decimals.
func (r *Raffle) TicketPriceDisplay() decimal.Decimal {
	return FromMinorUnits(r.TicketPrice, r.PaymentToken)
}

// Clone returns a deep copy so callers never share participant slices with
// the store they were read from.
func (r *Raffle) Clone() *Raffle {
	if r == nil {
		return nil
	}
	out := *r
	out.Participants = append([]string(nil), r.Participants...)
	if r.TicketPrice != nil {
		out.TicketPrice = new(big.Int).Set(r.TicketPrice)
	}
	for i, p := range r.Prizes {
		if p.Value != nil {
			out.Prizes[i].Value = new(big.Int).Set(p.Value)
		}
	}
	return &out
}

// SameAccount compares two account identifiers case-insensitively.
func SameAccount(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// PrizeInput is a prize as entered by a user, with a human decimal value.
type PrizeInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ImageURL    string          `json:"imageUrl"`
	Value       decimal.Decimal `json:"value"`
}

// CreateRaffleRequest carries everything needed to create a raffle. Amounts
// are human decimals in the selected payment token.
type CreateRaffleRequest struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Prizes          []PrizeInput    `json:"prizes"`
	PrizeCount      int             `json:"prizeCount"`
	TicketPrice     decimal.Decimal `json:"ticketPrice"`
	MaxParticipants uint64          `json:"maxParticipants"`
	Duration        int64           `json:"duration"` // seconds
	PaymentToken    PaymentToken    `json:"paymentToken"`
	Creator         string          `json:"creator,omitempty"`
}

// NormalizedPrizes returns exactly PrizeSlots prizes converted to minor units.
// Slots at or past PrizeCount become empty placeholders.
func (req CreateRaffleRequest) NormalizedPrizes() ([PrizeSlots]Prize, error) {
	var out [PrizeSlots]Prize
	for i := range out {
		out[i].Value = new(big.Int)
		if i >= req.PrizeCount || i >= len(req.Prizes) {
			continue
		}
		in := req.Prizes[i]
		value, err := ToMinorUnits(in.Value, req.PaymentToken)
		if err != nil {
			return out, err
		}
		out[i] = Prize{
			Name:        strings.TrimSpace(in.Name),
			Description: strings.TrimSpace(in.Description),
			ImageURL:    strings.TrimSpace(in.ImageURL),
			Value:       value,
		}
	}
	return out, nil
}
