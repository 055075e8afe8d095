package source

import (
	"context"
	"fmt"
	"math"
	"math/big"

	fpmath "TierOracle/internal/math"
	"TierOracle/internal/state"
)

// PoolState is the raw state a concentrated-liquidity venue exposes for one
// pool: the current sqrt price in Q64.64, the current tick, liquidity, token
// decimals, and the program identity that owns the pool account.
type PoolState struct {
	SqrtPriceX64    *big.Int
	Tick            int32
	Liquidity       uint64
	LPConcentration uint16 // basis points
	Decimals0       uint8
	Decimals1       uint8
	LastUpdate      int64
	Owner           state.Identity
}

// PoolReader loads pool state by pool identity. Implementations wrap
// whatever RPC or storage access the host environment provides.
type PoolReader interface {
	ReadPool(ctx context.Context, pool state.Identity) (PoolState, error)
}

// CLMMAdapter turns concentrated-liquidity pool state into observations.
// Readings are trusted only when the pool account is owned by the expected
// program identity, which blocks spoofed pool accounts, and when the pool's
// reported tick agrees with the tick implied by its sqrt price, which blocks
// pools serving internally inconsistent state.
type CLMMAdapter struct {
	reader        PoolReader
	expectedOwner state.Identity
}

func NewCLMMAdapter(reader PoolReader, expectedOwner state.Identity) *CLMMAdapter {
	return &CLMMAdapter{reader: reader, expectedOwner: expectedOwner}
}

func (a *CLMMAdapter) Fetch(ctx context.Context, src state.Identity) (Observation, error) {
	pool, err := a.reader.ReadPool(ctx, src)
	if err != nil {
		return Observation{}, fmt.Errorf("read pool %s: %w", src, err)
	}
	if pool.Owner != a.expectedOwner {
		return Observation{}, ErrInvalidOwner
	}
	if pool.SqrtPriceX64 == nil || pool.SqrtPriceX64.Sign() <= 0 {
		return Observation{}, ErrUninitialized
	}

	derivedTick, err := TickFromSqrtQ64(pool.SqrtPriceX64)
	if err != nil {
		return Observation{}, err
	}
	if diff := int64(derivedTick) - int64(pool.Tick); diff > tickCrossTolerance || diff < -tickCrossTolerance {
		return Observation{}, fmt.Errorf("pool tick %d disagrees with sqrt price tick %d: %w",
			pool.Tick, derivedTick, ErrPoolMismatch)
	}

	price, err := PriceFromSqrtQ64(pool.SqrtPriceX64, pool.Decimals0, pool.Decimals1)
	if err != nil {
		return Observation{}, err
	}

	return Observation{
		Price:           price,
		Conf:            uint64(fpmath.BasisPointScale), // venue reports no dispersion of its own
		Liquidity:       pool.Liquidity,
		LPConcentration: pool.LPConcentration,
		Timestamp:       pool.LastUpdate,
		Owner:           pool.Owner,
	}, nil
}

var (
	q128   = new(big.Int).Lsh(big.NewInt(1), 128)
	maxI64 = big.NewInt(1<<63 - 1)
	bigTen = big.NewInt(10)

	logTickBase = math.Log(1.0001)
)

// tickCrossTolerance absorbs the rounding slack between the venue's integer
// tick accounting and the float-derived tick, in ticks.
const tickCrossTolerance = 1

// TickFromSqrtQ64 derives the tick index implied by a Q64.64 sqrt price:
// sqrtPrice = 1.0001^(tick/2) * 2^64, so tick = floor(2 * log_1.0001(sqrtPrice / 2^64)).
func TickFromSqrtQ64(sqrtPriceX64 *big.Int) (int32, error) {
	if sqrtPriceX64 == nil || sqrtPriceX64.Sign() <= 0 {
		return 0, ErrUninitialized
	}
	sqrtF, _ := new(big.Float).SetInt(sqrtPriceX64).Float64()
	tick := math.Floor(2 * (math.Log(sqrtF) - 64*math.Ln2) / logTickBase)
	if tick > math.MaxInt32 || tick < math.MinInt32 {
		return 0, fmt.Errorf("tick for sqrt price out of range")
	}
	return int32(tick), nil
}

// PriceFromSqrtQ64 converts a Q64.64 sqrt price to the engine's fixed-point
// price scale, adjusting for the token decimal difference:
//
//	price = sqrtP^2 / 2^128 * 10^(dec0-dec1) * PriceConfig.Scale
//
// Returns an error when the result does not fit the engine's int64 price.
func PriceFromSqrtQ64(sqrtPriceX64 *big.Int, decimals0, decimals1 uint8) (int64, error) {
	if sqrtPriceX64 == nil || sqrtPriceX64.Sign() <= 0 {
		return 0, ErrUninitialized
	}

	num := new(big.Int).Mul(sqrtPriceX64, sqrtPriceX64)
	num.Mul(num, big.NewInt(fpmath.PriceConfig.Scale))

	if decimals0 >= decimals1 {
		shift := new(big.Int).Exp(bigTen, big.NewInt(int64(decimals0-decimals1)), nil)
		num.Mul(num, shift)
	} else {
		shift := new(big.Int).Exp(bigTen, big.NewInt(int64(decimals1-decimals0)), nil)
		num.Div(num, shift)
	}

	num.Div(num, q128)
	if num.Cmp(maxI64) > 0 {
		return 0, fmt.Errorf("sqrt price conversion overflows fixed-point range")
	}
	return num.Int64(), nil
}
