package domain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// PriceDecimals is the number of decimal places in the on-chain price encoding.
const PriceDecimals = 8

// tieUnits is the tie tolerance (1e-4) expressed in fixed-point units.
const tieUnits = 10_000

var priceScale = decimal.New(1, PriceDecimals)

// Price is a BTC/USD price in fixed-point form: the real price times 1e8.
type Price uint64

// PriceFromFloat converts a display price into fixed-point, rounding half up.
func PriceFromFloat(f float64) (Price, error) {
	return PriceFromDecimal(decimal.NewFromFloat(f))
}

// PriceFromDecimal converts an exact decimal price into fixed-point.
func PriceFromDecimal(d decimal.Decimal) (Price, error) {
	if !d.IsPositive() {
		return 0, fmt.Errorf("domain: price must be positive, got %s", d.String())
	}
	scaled := d.Mul(priceScale).Round(0)
	if !scaled.BigInt().IsUint64() {
		return 0, fmt.Errorf("domain: price %s overflows fixed-point encoding", d.String())
	}
	return Price(scaled.BigInt().Uint64()), nil
}

// Decimal returns the exact decimal value.
func (p Price) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(p)), -PriceDecimals)
}

// Float returns the price for display.
func (p Price) Float() float64 {
	return p.Decimal().InexactFloat64()
}

func (p Price) String() string {
	return p.Decimal().StringFixed(PriceDecimals)
}

// PriceQuote is one observation from the price oracle.
type PriceQuote struct {
	Price       float64 `json:"price"`
	Confidence  float64 `json:"confidence"`
	PublishTime int64   `json:"publishTime"`
	PriceID     string  `json:"priceId"`
	Stale       bool    `json:"stale,omitempty"`
}

// PriceOracle fetches BTC/USD prices from an external feed.
type PriceOracle interface {
	Latest(ctx context.Context) (PriceQuote, error)
	AtTime(ctx context.Context, unixSecs int64) (PriceQuote, error)
}
