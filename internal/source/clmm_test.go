package source_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	fpmath "TierOracle/internal/math"
	"TierOracle/internal/source"
	"TierOracle/internal/state"
)

func ident(b byte) state.Identity {
	var id state.Identity
	id[0] = b
	return id
}

// q64 builds a Q64.64 sqrt price for a whole-number price
func q64SqrtOf(price int64) *big.Int {
	// sqrtP = sqrt(price) * 2^64; exact for perfect squares
	root := new(big.Int).Sqrt(big.NewInt(price))
	return root.Lsh(root, 64)
}

// tickOf derives the consistent tick for a sqrt price fixture.
func tickOf(t *testing.T, sqrt *big.Int) int32 {
	t.Helper()
	tick, err := source.TickFromSqrtQ64(sqrt)
	if err != nil {
		t.Fatalf("derive tick: %v", err)
	}
	return tick
}

type poolReaderFunc func(ctx context.Context, pool state.Identity) (source.PoolState, error)

func (f poolReaderFunc) ReadPool(ctx context.Context, pool state.Identity) (source.PoolState, error) {
	return f(ctx, pool)
}

// ============================================================================
// Test: PriceFromSqrtQ64
// ============================================================================

func TestPriceFromSqrtQ64_EqualDecimals(t *testing.T) {
	got, err := source.PriceFromSqrtQ64(q64SqrtOf(4), 6, 6)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got != 4*fpmath.PriceConfig.Scale {
		t.Errorf("got %d, want %d", got, 4*fpmath.PriceConfig.Scale)
	}
}

func TestPriceFromSqrtQ64_DecimalAdjustment(t *testing.T) {
	// Same raw sqrt price, but token0 has 3 more decimals: price scales by 10^3
	base, err := source.PriceFromSqrtQ64(q64SqrtOf(4), 6, 6)
	if err != nil {
		t.Fatalf("base convert: %v", err)
	}
	scaled, err := source.PriceFromSqrtQ64(q64SqrtOf(4), 9, 6)
	if err != nil {
		t.Fatalf("scaled convert: %v", err)
	}
	if scaled != base*1000 {
		t.Errorf("got %d, want %d", scaled, base*1000)
	}

	down, err := source.PriceFromSqrtQ64(q64SqrtOf(4), 6, 9)
	if err != nil {
		t.Fatalf("down convert: %v", err)
	}
	if down != base/1000 {
		t.Errorf("got %d, want %d", down, base/1000)
	}
}

func TestPriceFromSqrtQ64_Uninitialized(t *testing.T) {
	if _, err := source.PriceFromSqrtQ64(nil, 6, 6); !errors.Is(err, source.ErrUninitialized) {
		t.Errorf("nil: got %v, want ErrUninitialized", err)
	}
	if _, err := source.PriceFromSqrtQ64(big.NewInt(0), 6, 6); !errors.Is(err, source.ErrUninitialized) {
		t.Errorf("zero: got %v, want ErrUninitialized", err)
	}
}

func TestPriceFromSqrtQ64_Overflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 120)
	if _, err := source.PriceFromSqrtQ64(huge, 6, 6); err == nil {
		t.Error("overflowing conversion should be rejected")
	}
}

// ============================================================================
// Test: TickFromSqrtQ64
// ============================================================================

func TestTickFromSqrtQ64(t *testing.T) {
	// log_1.0001(1) = 0 and log_1.0001(4) = 13863.6; the derivation floors,
	// with one tick of float slack either way.
	cases := []struct {
		price int64
		want  int32
	}{
		{1, 0},
		{4, 13863},
		{9, 21973},
	}
	for _, c := range cases {
		got, err := source.TickFromSqrtQ64(q64SqrtOf(c.price))
		if err != nil {
			t.Fatalf("price %d: %v", c.price, err)
		}
		if got < c.want-1 || got > c.want+1 {
			t.Errorf("price %d: got tick %d, want %d (+-1)", c.price, got, c.want)
		}
	}
}

func TestTickFromSqrtQ64_Uninitialized(t *testing.T) {
	if _, err := source.TickFromSqrtQ64(nil); !errors.Is(err, source.ErrUninitialized) {
		t.Errorf("nil: got %v, want ErrUninitialized", err)
	}
	if _, err := source.TickFromSqrtQ64(big.NewInt(0)); !errors.Is(err, source.ErrUninitialized) {
		t.Errorf("zero: got %v, want ErrUninitialized", err)
	}
}

// ============================================================================
// Test: CLMMAdapter
// ============================================================================

func TestCLMMAdapter_Fetch(t *testing.T) {
	owner := ident(7)
	sqrt := q64SqrtOf(9)
	reader := poolReaderFunc(func(_ context.Context, pool state.Identity) (source.PoolState, error) {
		return source.PoolState{
			SqrtPriceX64:    sqrt,
			Tick:            tickOf(t, sqrt),
			Liquidity:       500_000,
			LPConcentration: 1200,
			Decimals0:       6,
			Decimals1:       6,
			LastUpdate:      1700000000,
			Owner:           owner,
		}, nil
	})

	adapter := source.NewCLMMAdapter(reader, owner)
	obs, err := adapter.Fetch(context.Background(), ident(1))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if obs.Price != 9*fpmath.PriceConfig.Scale {
		t.Errorf("price: got %d, want %d", obs.Price, 9*fpmath.PriceConfig.Scale)
	}
	if obs.Liquidity != 500_000 || obs.Timestamp != 1700000000 {
		t.Error("pool fields not carried into the observation")
	}
	if obs.LPConcentration != 1200 {
		t.Errorf("lp concentration: got %d, want 1200", obs.LPConcentration)
	}
	if obs.Owner != owner {
		t.Error("owner should be attested from the pool state")
	}
}

func TestCLMMAdapter_RejectsTickMismatch(t *testing.T) {
	owner := ident(7)
	sqrt := q64SqrtOf(9)
	reader := poolReaderFunc(func(_ context.Context, pool state.Identity) (source.PoolState, error) {
		// A pool whose stored tick lags its sqrt price is serving
		// inconsistent state and cannot be trusted.
		return source.PoolState{
			SqrtPriceX64: sqrt,
			Tick:         tickOf(t, sqrt) + 5,
			Decimals0:    6,
			Decimals1:    6,
			Owner:        owner,
		}, nil
	})

	adapter := source.NewCLMMAdapter(reader, owner)
	_, err := adapter.Fetch(context.Background(), ident(1))
	if !errors.Is(err, source.ErrPoolMismatch) {
		t.Errorf("got %v, want ErrPoolMismatch", err)
	}
}

func TestCLMMAdapter_RejectsWrongOwner(t *testing.T) {
	reader := poolReaderFunc(func(_ context.Context, pool state.Identity) (source.PoolState, error) {
		return source.PoolState{SqrtPriceX64: q64SqrtOf(9), Owner: ident(8)}, nil
	})

	adapter := source.NewCLMMAdapter(reader, ident(7))
	_, err := adapter.Fetch(context.Background(), ident(1))
	if !errors.Is(err, source.ErrInvalidOwner) {
		t.Errorf("got %v, want ErrInvalidOwner", err)
	}
}

func TestCLMMAdapter_UninitializedPool(t *testing.T) {
	owner := ident(7)
	reader := poolReaderFunc(func(_ context.Context, pool state.Identity) (source.PoolState, error) {
		return source.PoolState{Owner: owner}, nil
	})

	adapter := source.NewCLMMAdapter(reader, owner)
	_, err := adapter.Fetch(context.Background(), ident(1))
	if !errors.Is(err, source.ErrUninitialized) {
		t.Errorf("got %v, want ErrUninitialized", err)
	}
}

func TestCLMMAdapter_PropagatesReaderError(t *testing.T) {
	reader := poolReaderFunc(func(_ context.Context, pool state.Identity) (source.PoolState, error) {
		return source.PoolState{}, source.ErrPoolMismatch
	})

	adapter := source.NewCLMMAdapter(reader, ident(7))
	_, err := adapter.Fetch(context.Background(), ident(1))
	if !errors.Is(err, source.ErrPoolMismatch) {
		t.Errorf("got %v, want wrapped ErrPoolMismatch", err)
	}
}
