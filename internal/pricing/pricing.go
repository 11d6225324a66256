// Package pricing turns a scraped KRW amount into a resale quote.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrNoDigits        = errors.New("price text contains no digits")
	ErrInvalidDivisor  = errors.New("divisor must be positive")
	ErrInvalidRounding = errors.New("round_to must be positive")
	ErrNegativeFactor  = errors.New("factors must not be negative")
)

// Formula holds the coefficients of amount / Divisor * Factor1 * Factor2 * Factor3.
type Formula struct {
	Divisor float64 `json:"divisor"`
	Factor1 float64 `json:"factor1"`
	Factor2 float64 `json:"factor2"`
	Factor3 float64 `json:"factor3"`
	RoundTo int64   `json:"round_to"`
}

// DefaultFormula is (KRW / 205) * 1.03 * 4.55 * 1.1, rounded up to tens.
func DefaultFormula() Formula {
	return Formula{
		Divisor: 205,
		Factor1: 1.03,
		Factor2: 4.55,
		Factor3: 1.1,
		RoundTo: 10,
	}
}

func (f Formula) Validate() error {
	if f.Divisor <= 0 || math.IsNaN(f.Divisor) || math.IsInf(f.Divisor, 0) {
		return ErrInvalidDivisor
	}
	if f.RoundTo <= 0 {
		return ErrInvalidRounding
	}
	for _, factor := range []float64{f.Factor1, f.Factor2, f.Factor3} {
		if factor < 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
			return ErrNegativeFactor
		}
	}
	return nil
}

func (f Formula) Apply(amount int64) int64 {
	return Convert(amount, f.Divisor, f.Factor1, f.Factor2, f.Factor3, f.RoundTo)
}

// Raw evaluates the formula without rounding. The operation order is fixed:
// divide first, then the three multiplications left to right.
func Raw(amount int64, divisor, factor1, factor2, factor3 float64) float64 {
	return float64(amount) / divisor * factor1 * factor2 * factor3
}

// Convert rounds Raw up to the next multiple of roundTo. It never rounds down.
func Convert(amount int64, divisor, factor1, factor2, factor3 float64, roundTo int64) int64 {
	raw := Raw(amount, divisor, factor1, factor2, factor3)
	step := float64(roundTo)
	return int64(math.Ceil(raw/step)) * roundTo
}

// ParseAmount strips every non-digit from text, "89,000원" becomes 89000.
func ParseAmount(text string) (int64, error) {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return 0, fmt.Errorf("%q: %w", text, ErrNoDigits)
	}

	amount, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount %q: %w", text, err)
	}

	return amount, nil
}
