// Package source defines the adapter contract for external price sources.
// The engine never assumes a wire format for a venue, only this contract,
// and validates the reported owner identity before trusting a reading.
package source

import (
	"context"
	"errors"

	"TierOracle/internal/state"
)

// Observation is a single reading from an external source.
type Observation struct {
	Price     int64 // fixed-point, math.PriceConfig scale
	Conf      uint64
	Liquidity uint64
	Timestamp int64 // unix seconds of the venue's last update

	// LPConcentration is the venue-reported share of liquidity held by the
	// largest provider, in basis points. Zero for venues without provider
	// accounting (CEX tickers, external oracles).
	LPConcentration uint16

	// Owner is the identity the venue claims produced this state. Adapters
	// that cannot attest ownership return the source identity itself.
	Owner state.Identity
}

var (
	ErrNotFound      = errors.New("source not found")
	ErrPoolMismatch  = errors.New("pool does not match the supplied source identity")
	ErrInvalidOwner  = errors.New("source owned by unexpected authority")
	ErrUninitialized = errors.New("source observation state uninitialized")
)

// Adapter fetches fresh observations for registered sources. Implementations
// are read-only collaborators; they never mutate oracle state.
type Adapter interface {
	Fetch(ctx context.Context, src state.Identity) (Observation, error)
}

// AdapterFunc adapts a plain function to the Adapter interface.
type AdapterFunc func(ctx context.Context, src state.Identity) (Observation, error)

func (f AdapterFunc) Fetch(ctx context.Context, src state.Identity) (Observation, error) {
	return f(ctx, src)
}
