package asset

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount flags a threshold that is not a positive decimal.
var ErrInvalidAmount = errors.New("asset: amount must be a positive decimal")

// MaxAmountDigits bounds both the integer and fractional digits of a parsed
// amount. It matches the widest unsigned 256-bit value.
const MaxAmountDigits = 78

// ParseAmount parses a user supplied human amount such as "3000" or "1,250.5".
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	// Exponent notation would otherwise let a short input expand into an
	// arbitrarily large integer during scaling.
	exp := int64(d.Exponent())
	if int64(d.NumDigits())+exp > MaxAmountDigits || exp < -MaxAmountDigits {
		return decimal.Decimal{}, fmt.Errorf("%w: %q exceeds %d digits", ErrInvalidAmount, raw, MaxAmountDigits)
	}
	return d, nil
}

// ToBaseUnits scales a human amount by 10^decimals, truncating toward zero.
func ToBaseUnits(human decimal.Decimal, a Asset) *big.Int {
	return human.Shift(a.Decimals).Truncate(0).BigInt()
}

// ToHuman converts base units into a decimal for display.
func ToHuman(base *big.Int, a Asset) decimal.Decimal {
	if base == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(base, -a.Decimals)
}

// FormatHuman renders base units with en-US digit grouping and up to
// a.Decimals fraction digits, trailing zeros trimmed.
func FormatHuman(base *big.Int, a Asset) string {
	return FormatDecimal(ToHuman(base, a), a.Decimals)
}

// FormatDecimal groups the integer part of d in thousands.
func FormatDecimal(d decimal.Decimal, maxFraction int32) string {
	s := d.Truncate(maxFraction).String()

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	intPart, frac, _ := strings.Cut(s, ".")
	frac = strings.TrimRight(frac, "0")

	var b strings.Builder
	b.WriteString(sign)
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteByte(',')
		b.WriteString(intPart[i : i+3])
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
