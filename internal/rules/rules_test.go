package rules

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"logane/internal/errs"
	"logane/internal/models"
)

func validRequest() models.CreateRaffleRequest {
	return models.CreateRaffleRequest{
		Title:       "Rifa iPhone 15 Pro",
		Description: "Gana el último iPhone 15 Pro",
		PrizeCount:  3,
		Prizes: []models.PrizeInput{
			{Name: "iPhone 15 Pro", Value: decimal.RequireFromString("0.5")},
			{Name: "AirPods Pro", Value: decimal.RequireFromString("0.2")},
			{Name: "Gift Card", Value: decimal.RequireFromString("0.1")},
		},
		TicketPrice:     decimal.RequireFromString("0.01"),
		MaxParticipants: 100,
		Duration:        86400,
		PaymentToken:    models.ETH,
	}
}

func TestValidateCreate(t *testing.T) {
	if err := ValidateCreate(validRequest()); err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	cases := map[string]func(r *models.CreateRaffleRequest){
		"zero prizes":          func(r *models.CreateRaffleRequest) { r.PrizeCount = 0 },
		"ten prizes":           func(r *models.CreateRaffleRequest) { r.PrizeCount = 10 },
		"unnamed active prize": func(r *models.CreateRaffleRequest) { r.Prizes[1].Name = "  " },
		"participants == prizes": func(r *models.CreateRaffleRequest) {
			r.MaxParticipants = 3
		},
		"free ticket":    func(r *models.CreateRaffleRequest) { r.TicketPrice = decimal.Zero },
		"short duration": func(r *models.CreateRaffleRequest) { r.Duration = 86399 },
		"missing title":  func(r *models.CreateRaffleRequest) { r.Title = "" },
		"unknown token":  func(r *models.CreateRaffleRequest) { r.PaymentToken = 7 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			req.Prizes = append([]models.PrizeInput(nil), req.Prizes...)
			mutate(&req)
			if err := ValidateCreate(req); !errors.Is(err, errs.ErrValidation) {
				t.Fatalf("Expected a validation error, but got %v", err)
			}
		})
	}
}

func openRaffle(now time.Time) *models.Raffle {
	return &models.Raffle{
		ID:              1,
		PrizeCount:      1,
		TicketPrice:     big.NewInt(1),
		MaxParticipants: 2,
		EndTime:         now.Add(time.Hour).Unix(),
		IsActive:        true,
	}
}

func TestCanJoin(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	const alice = "0xAbC0000000000000000000000000000000000001"

	t.Run("Test open raffle accepts a newcomer", func(t *testing.T) {
		if err := CanJoin(openRaffle(now), alice, now); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
	})

	t.Run("Test duplicate entry is rejected case-insensitively", func(t *testing.T) {
		r := openRaffle(now)
		r.Participants = []string{"0xabc0000000000000000000000000000000000001"}
		if err := CanJoin(r, alice, now); err == nil {
			t.Fatal("Expected an error for a duplicate entry, but got nil")
		}
	})

	t.Run("Test full raffle is rejected", func(t *testing.T) {
		r := openRaffle(now)
		r.Participants = []string{"0x1", "0x2"}
		if err := CanJoin(r, alice, now); err == nil {
			t.Fatal("Expected an error for a full raffle, but got nil")
		}
	})

	t.Run("Test ended raffle is rejected", func(t *testing.T) {
		r := openRaffle(now)
		r.EndTime = now.Unix()
		if err := CanJoin(r, alice, now); err == nil {
			t.Fatal("Expected an error for an ended raffle, but got nil")
		}
	})

	t.Run("Test inactive or missing raffle is rejected", func(t *testing.T) {
		r := openRaffle(now)
		r.IsActive = false
		if err := CanJoin(r, alice, now); err == nil {
			t.Fatal("Expected an error for an inactive raffle, but got nil")
		}
		if err := CanJoin(nil, alice, now); err == nil {
			t.Fatal("Expected an error for a missing raffle, but got nil")
		}
	})
}

func TestCanDraw(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ended := func() *models.Raffle {
		r := openRaffle(now)
		r.EndTime = now.Add(-time.Minute).Unix()
		r.Participants = []string{"0x1"}
		return r
	}

	if err := CanDraw(ended(), now); err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	future := ended()
	future.EndTime = now.Add(time.Minute).Unix()
	if err := CanDraw(future, now); err == nil {
		t.Error("Expected an error while the raffle is still running")
	}

	drawn := ended()
	drawn.IsDrawn = true
	if err := CanDraw(drawn, now); err == nil {
		t.Error("Expected an error for an already drawn raffle")
	}

	empty := ended()
	empty.Participants = nil
	if err := CanDraw(empty, now); err == nil {
		t.Error("Expected an error for a raffle without participants")
	}
}

func TestCanClaim(t *testing.T) {
	r := openRaffle(time.Now())
	r.IsDrawn = true
	r.Winners[0] = "0xWinner"

	if err := CanClaim(r, 0, "0xwinner"); err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if err := CanClaim(r, 1, "0xwinner"); err == nil {
		t.Error("Expected an error for an inactive prize slot")
	}
	if err := CanClaim(r, 0, "0xsomeoneelse"); err == nil {
		t.Error("Expected an error for a non-winner")
	}
}
