package models

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"logane/internal/errs"
)

// PaymentToken identifies the asset a raffle is paid in. The numeric values
// match the ledger contract's enum.
type PaymentToken uint8

const (
	ETH PaymentToken = iota
	USDT
	USDC
)

// TokenInfo describes how a payment token is displayed and scaled.
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	Decimals int32  `json:"decimals"`
}

// SupportedTokens maps every payment token to its descriptor.
var SupportedTokens = map[PaymentToken]TokenInfo{
	ETH:  {Symbol: "ETH", Name: "Ethereum", Icon: "Ξ", Decimals: 18},
	USDT: {Symbol: "USDT", Name: "Tether USD", Icon: "₮", Decimals: 6},
	USDC: {Symbol: "USDC", Name: "USD Coin", Icon: "💵", Decimals: 6},
}

// Info returns the descriptor of t. Unknown tokens fall back to ETH.
func (t PaymentToken) Info() TokenInfo {
	if info, ok := SupportedTokens[t]; ok {
		return info
	}
	return SupportedTokens[ETH]
}

// Valid reports whether t is a supported token.
func (t PaymentToken) Valid() bool {
	_, ok := SupportedTokens[t]
	return ok
}

// IsNative reports whether t is the chain's base asset.
func (t PaymentToken) IsNative() bool { return t == ETH }

func (t PaymentToken) String() string {
	if info, ok := SupportedTokens[t]; ok {
		return info.Symbol
	}
	return fmt.Sprintf("token(%d)", uint8(t))
}

// ParsePaymentToken accepts a symbol (case-insensitive) or the numeric enum value.
func ParsePaymentToken(s string) (PaymentToken, error) {
	s = strings.TrimSpace(s)
	for t, info := range SupportedTokens {
		if strings.EqualFold(info.Symbol, s) || fmt.Sprint(uint8(t)) == s {
			return t, nil
		}
	}
	return 0, errs.Newf(errs.ValidationError, "unsupported payment token %q", s)
}

// UnmarshalJSON accepts either the enum number or the token symbol.
func (t *PaymentToken) UnmarshalJSON(data []byte) error {
	var n uint8
	if err := json.Unmarshal(data, &n); err == nil {
		*t = PaymentToken(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("payment token: %w", err)
	}
	parsed, err := ParsePaymentToken(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ToMinorUnits converts a human amount into the token's smallest unit.
// Amounts that are negative or carry more precision than the token supports
// are rejected.
func ToMinorUnits(amount decimal.Decimal, token PaymentToken) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, errs.Newf(errs.ValidationError, "amount %s must not be negative", amount)
	}
	shifted := amount.Shift(token.Info().Decimals)
	if !shifted.IsInteger() {
		return nil, errs.Newf(errs.ValidationError, "amount %s exceeds %d decimal places of %s",
			amount, token.Info().Decimals, token)
	}
	return shifted.BigInt(), nil
}

// FromMinorUnits converts a minor-unit amount back to a human amount.
func FromMinorUnits(v *big.Int, token PaymentToken) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -token.Info().Decimals)
}

// FormatAmount renders a minor-unit amount with its symbol, switching to a
// milli prefix for values below 0.001.
func FormatAmount(v *big.Int, token PaymentToken) string {
	amount := FromMinorUnits(v, token)
	milli := decimal.New(1, -3)
	if amount.IsPositive() && amount.LessThan(milli) {
		return fmt.Sprintf("%sm %s", amount.Shift(3).StringFixed(2), token)
	}
	return fmt.Sprintf("%s %s", amount.StringFixed(3), token)
}
