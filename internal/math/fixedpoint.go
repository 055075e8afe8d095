package math

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	PriceConfig  = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000} // 0.00000001
	WeightConfig = DecimalConfig{DecimalPrecision: 4, Scale: 10_000}      // basis points
)

// BasisPointScale is the unit for weights, thresholds, and confidence values.
const BasisPointScale int64 = 10_000

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	// Apply rounding
	result := quotient.Int64()

	if roundingMode == RoundHalfEven {
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			// remainder > half: round up
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			// remainder == half and even denominator: round to even
			if result%2 != 0 {
				result++
			}
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// WeightedMeanPrice computes the weight-normalized mean over surviving feed
// observations. Weights are re-normalized to the surviving subset, so a
// filtered-out source contributes nothing and the remaining sources split
// its share proportionally.
func WeightedMeanPrice(prices []int64, weights []uint16) (int64, bool) {
	if len(prices) == 0 || len(prices) != len(weights) {
		return 0, false
	}

	var totalWeight int64
	for _, w := range weights {
		totalWeight += int64(w)
	}
	if totalWeight == 0 {
		return 0, false
	}

	numerator := getInt128()
	for i, p := range prices {
		term := MultiplyInt128(p, int64(weights[i]))
		numerator.Add(numerator, term)
		putInt128(term)
	}

	result := DivideInt128(numerator, totalWeight, RoundHalfEven)
	putInt128(numerator)

	return result, true
}

// EMABlend applies exponential smoothing with gain alpha (basis points):
// blended = prev + alpha/10000 * (next - prev). alpha == 10000 adopts the
// new value outright, alpha == 0 keeps the previous value.
func EMABlend(prev, next int64, alphaBp uint16) int64 {
	if prev == 0 {
		// No prior value to smooth against
		return next
	}
	alpha := int64(alphaBp)
	if alpha >= BasisPointScale {
		return next
	}

	delta := MultiplyInt128(next-prev, alpha)
	step := DivideInt128(delta, BasisPointScale, RoundHalfEven)
	putInt128(delta)

	return prev + step
}

// DeviationBps returns the absolute deviation of price from reference,
// expressed in basis points of the reference. A zero reference yields zero
// deviation so first-ever observations always pass deviation gates.
func DeviationBps(price, reference int64) int64 {
	if reference == 0 {
		return 0
	}
	diff := price - reference
	if diff < 0 {
		diff = -diff
	}
	ref := reference
	if ref < 0 {
		ref = -ref
	}

	scaled := MultiplyInt128(diff, BasisPointScale)
	dev := DivideInt128(scaled, ref, RoundDown)
	putInt128(scaled)

	return dev
}

// DispersionBps measures how far the surviving prices scatter around the
// aggregate: the weight-normalized mean absolute deviation in basis points
// of the aggregate. Higher dispersion means the sources disagree.
func DispersionBps(prices []int64, weights []uint16, aggregate int64) int64 {
	if len(prices) == 0 || aggregate == 0 {
		return 0
	}

	var totalWeight int64
	for _, w := range weights {
		totalWeight += int64(w)
	}
	if totalWeight == 0 {
		return 0
	}

	sum := getInt128()
	for i, p := range prices {
		dev := DeviationBps(p, aggregate)
		term := MultiplyInt128(dev, int64(weights[i]))
		sum.Add(sum, term)
		putInt128(term)
	}

	result := DivideInt128(sum, totalWeight, RoundHalfEven)
	putInt128(sum)

	return result
}

// ConfidenceFromDispersion maps dispersion to a confidence figure in basis
// points: full agreement yields 10000, dispersion at or beyond 10000 bp
// yields 0.
func ConfidenceFromDispersion(dispersionBp int64) uint64 {
	if dispersionBp >= BasisPointScale {
		return 0
	}
	if dispersionBp < 0 {
		dispersionBp = 0
	}
	return uint64(BasisPointScale - dispersionBp)
}
