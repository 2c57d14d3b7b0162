// Package rules holds the raffle lifecycle predicates. They run before any
// ledger write, whether the gateway talks to a live contract or simulates it.
package rules

import (
	"strings"
	"time"

	"logane/internal/errs"
	"logane/internal/models"
)

const (
	MinPrizes   = 1
	MaxPrizes   = models.PrizeSlots
	MinDuration = 24 * time.Hour
)

// ValidateCreate checks a creation request.
func ValidateCreate(req models.CreateRaffleRequest) error {
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Description) == "" {
		return errs.New(errs.ValidationError, "title and description are required")
	}
	if req.PrizeCount < MinPrizes || req.PrizeCount > MaxPrizes {
		return errs.Newf(errs.ValidationError, "prize count must be between %d and %d", MinPrizes, MaxPrizes)
	}
	if len(req.Prizes) < req.PrizeCount {
		return errs.Newf(errs.ValidationError, "expected %d prizes, got %d", req.PrizeCount, len(req.Prizes))
	}
	for i := 0; i < req.PrizeCount; i++ {
		if strings.TrimSpace(req.Prizes[i].Name) == "" {
			return errs.Newf(errs.ValidationError, "prize %d needs a name", i+1)
		}
	}
	if req.MaxParticipants <= uint64(req.PrizeCount) {
		return errs.New(errs.ValidationError, "max participants must exceed the number of prizes")
	}
	if !req.TicketPrice.IsPositive() {
		return errs.New(errs.ValidationError, "ticket price must be greater than zero")
	}
	if time.Duration(req.Duration)*time.Second < MinDuration {
		return errs.New(errs.ValidationError, "duration must be at least one day")
	}
	if !req.PaymentToken.Valid() {
		return errs.Newf(errs.ValidationError, "unsupported payment token %d", req.PaymentToken)
	}
	return nil
}

// CanJoin checks that account may join r at now.
func CanJoin(r *models.Raffle, account string, now time.Time) error {
	if r == nil {
		return errs.New(errs.ValidationError, "raffle not found")
	}
	if strings.TrimSpace(account) == "" {
		return errs.New(errs.ValidationError, "participant address is required")
	}
	if !r.IsActive {
		return errs.New(errs.ValidationError, "raffle is not active")
	}
	if r.EndTime <= now.Unix() {
		return errs.New(errs.ValidationError, "raffle has ended")
	}
	if r.HasParticipant(account) {
		return errs.New(errs.ValidationError, "already participated")
	}
	if r.IsFull() {
		return errs.New(errs.ValidationError, "raffle is full")
	}
	return nil
}

// CanDraw checks that winners of r may be drawn at now.
func CanDraw(r *models.Raffle, now time.Time) error {
	switch {
	case r == nil:
		return errs.New(errs.ValidationError, "raffle not found")
	case !r.IsActive:
		return errs.New(errs.ValidationError, "raffle is not active")
	case r.EndTime > now.Unix():
		return errs.New(errs.ValidationError, "raffle has not ended yet")
	case r.IsDrawn:
		return errs.New(errs.ValidationError, "winners already drawn")
	case len(r.Participants) == 0:
		return errs.New(errs.ValidationError, "no participants in raffle")
	}
	return nil
}

// CanClaim checks that account won prize slot index of r.
func CanClaim(r *models.Raffle, index int, account string) error {
	switch {
	case r == nil:
		return errs.New(errs.ValidationError, "raffle not found")
	case !r.IsDrawn:
		return errs.New(errs.ValidationError, "winners not drawn yet")
	case index < 0 || index >= r.PrizeCount:
		return errs.Newf(errs.ValidationError, "prize index %d out of range", index)
	case !models.SameAccount(r.Winners[index], account):
		return errs.New(errs.ValidationError, "not the winner of this prize")
	}
	return nil
}
