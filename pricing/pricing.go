// Package pricing converts fiat prices into native minor units.
//
// The conversion uses a fixed rate rather than a live price feed so that the
// same fiat amount always yields the same on-chain amount:
//
//	native = floor(fiat / rate * 10^decimals)
//
// It is computed on integer coefficients, never on floats.
package pricing

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is the minor-unit exponent of ETH (wei).
const DefaultDecimals int32 = 18

// Converter turns fiat amounts into native minor units at a fixed rate.
type Converter struct {
	// Rate is the fiat price of one whole native unit, e.g. 2000 (USD per ETH).
	Rate decimal.Decimal
	// Decimals is the minor-unit exponent of the native currency.
	Decimals int32
}

func NewConverter(rate decimal.Decimal, decimals int32) (*Converter, error) {
	if !rate.IsPositive() {
		return nil, fmt.Errorf("conversion rate must be positive, got %s", rate)
	}
	if decimals < 0 {
		return nil, fmt.Errorf("decimals must not be negative, got %d", decimals)
	}
	return &Converter{Rate: rate, Decimals: decimals}, nil
}

// NativeAmount returns floor(fiat / Rate * 10^Decimals).
func (c Converter) NativeAmount(fiat decimal.Decimal) (*big.Int, error) {
	if fiat.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative: %s", fiat)
	}
	if !c.Rate.IsPositive() {
		return nil, fmt.Errorf("conversion rate must be positive, got %s", c.Rate)
	}

	// fiat = fc*10^fe, rate = rc*10^re, so the result is fc*10^k / rc.
	k := int64(fiat.Exponent()) - int64(c.Rate.Exponent()) + int64(c.Decimals)

	num := new(big.Int).Set(fiat.Coefficient())
	den := new(big.Int).Set(c.Rate.Coefficient())
	if k >= 0 {
		num.Mul(num, pow10(k))
	} else {
		den.Mul(den, pow10(-k))
	}
	return num.Div(num, den), nil
}

// FiatAmount converts native minor units back to fiat, for display.
func (c Converter) FiatAmount(native *big.Int) decimal.Decimal {
	if native == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(native, -c.Decimals).Mul(c.Rate)
}

// FormatNative renders minor units as a whole-unit decimal string.
func FormatNative(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// ParsePrice accepts "$0.01", "0.01", "0.01 USD" and "USD 0.01".
func ParsePrice(price string) (decimal.Decimal, error) {
	s := strings.TrimSpace(price)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "USD"), "USD"))
	if s == "" {
		return decimal.Zero, fmt.Errorf("price cannot be empty")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("price must be positive: %q", price)
	}
	return d, nil
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
