package pricing

import (
	"fmt"
	"math"
)

// MonetaryUnit is the number of Money units in one USD. Costs are kept in
// nano-cents so that summing many tiny per-call costs stays exact.
const MonetaryUnit = 10_000_000_000

// Money is an amount in nano-cents.
type Money int64

// NewMoneyFromUSD converts a USD amount to Money, rounding to the nearest unit.
func NewMoneyFromUSD(usd float64) Money {
	return Money(math.Round(usd * MonetaryUnit))
}

// ToUSD converts Money to USD for display and JSON output.
func (m Money) ToUSD() float64 {
	return float64(m) / MonetaryUnit
}

func (m Money) Add(other Money) Money { return m + other }

// String formats m as USD with eight decimals.
func (m Money) String() string {
	return fmt.Sprintf("$%.8f", m.ToUSD())
}
