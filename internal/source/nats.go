package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/nats-io/nats.go"

	"TierOracle/internal/state"
)

// The engine never fetches from venues directly; dedicated gateway services
// hold the venue connections and answer NATS requests. This keeps the engine
// free of venue SDKs and lets gateways be deployed and scaled on their own.

// NATSPoolReader reads concentrated-liquidity pool state via NATS
// request/reply. The gateway listens on <subjectPrefix>.<pool-identity-hex>
// and replies with a poolStateJSON document.
type NATSPoolReader struct {
	nc            *nats.Conn
	subjectPrefix string
	timeout       time.Duration
}

func NewNATSPoolReader(nc *nats.Conn, subjectPrefix string, timeout time.Duration) *NATSPoolReader {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &NATSPoolReader{nc: nc, subjectPrefix: subjectPrefix, timeout: timeout}
}

type poolStateJSON struct {
	SqrtPriceX64    string `json:"sqrt_price_x64"` // decimal string, exceeds int64
	Tick            int32  `json:"tick"`
	Liquidity       uint64 `json:"liquidity"`
	LPConcentration uint16 `json:"lp_concentration_bp"`
	Decimals0       uint8  `json:"decimals0"`
	Decimals1       uint8  `json:"decimals1"`
	LastUpdate      int64  `json:"last_update"`
	Owner           string `json:"owner"` // hex identity
	Error           string `json:"error,omitempty"`
}

func (r *NATSPoolReader) ReadPool(ctx context.Context, pool state.Identity) (PoolState, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	subject := fmt.Sprintf("%s.%s", r.subjectPrefix, pool)
	msg, err := r.nc.RequestWithContext(reqCtx, subject, []byte(pool.String()))
	if err != nil {
		return PoolState{}, fmt.Errorf("pool gateway request: %w", err)
	}

	var j poolStateJSON
	if err := json.Unmarshal(msg.Data, &j); err != nil {
		return PoolState{}, fmt.Errorf("pool gateway reply: %w", err)
	}
	if j.Error != "" {
		return PoolState{}, mapGatewayError(j.Error)
	}

	sqrtPrice, ok := new(big.Int).SetString(j.SqrtPriceX64, 10)
	if !ok {
		return PoolState{}, fmt.Errorf("pool gateway reply: bad sqrt_price_x64 %q", j.SqrtPriceX64)
	}
	owner, err := state.IdentityFromString(j.Owner)
	if err != nil {
		return PoolState{}, fmt.Errorf("pool gateway reply: bad owner: %w", err)
	}

	return PoolState{
		SqrtPriceX64:    sqrtPrice,
		Tick:            j.Tick,
		Liquidity:       j.Liquidity,
		LPConcentration: j.LPConcentration,
		Decimals0:       j.Decimals0,
		Decimals1:       j.Decimals1,
		LastUpdate:      j.LastUpdate,
		Owner:           owner,
	}, nil
}

// NATSObservationGateway fetches ready-made observations for sources whose
// gateways quote prices directly (CEX tickers, external oracles,
// aggregators). One gateway subject per source type.
type NATSObservationGateway struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

func NewNATSObservationGateway(nc *nats.Conn, subject string, timeout time.Duration) *NATSObservationGateway {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &NATSObservationGateway{nc: nc, subject: subject, timeout: timeout}
}

type observationJSON struct {
	Price           int64  `json:"price"`
	Conf            uint64 `json:"conf"`
	Liquidity       uint64 `json:"liquidity"`
	LPConcentration uint16 `json:"lp_concentration_bp"`
	Timestamp       int64  `json:"timestamp"`
	Owner           string `json:"owner"`
	Error           string `json:"error,omitempty"`
}

func (g *NATSObservationGateway) Fetch(ctx context.Context, src state.Identity) (Observation, error) {
	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msg, err := g.nc.RequestWithContext(reqCtx, fmt.Sprintf("%s.%s", g.subject, src), []byte(src.String()))
	if err != nil {
		return Observation{}, fmt.Errorf("observation gateway request: %w", err)
	}

	var j observationJSON
	if err := json.Unmarshal(msg.Data, &j); err != nil {
		return Observation{}, fmt.Errorf("observation gateway reply: %w", err)
	}
	if j.Error != "" {
		return Observation{}, mapGatewayError(j.Error)
	}

	owner := src
	if j.Owner != "" {
		owner, err = state.IdentityFromString(j.Owner)
		if err != nil {
			return Observation{}, fmt.Errorf("observation gateway reply: bad owner: %w", err)
		}
	}

	return Observation{
		Price:           j.Price,
		Conf:            j.Conf,
		Liquidity:       j.Liquidity,
		LPConcentration: j.LPConcentration,
		Timestamp:       j.Timestamp,
		Owner:           owner,
	}, nil
}

// mapGatewayError translates the gateway's wire error codes back into the
// adapter sentinels so the engine's abort-vs-filter decision survives the
// network hop.
func mapGatewayError(code string) error {
	switch code {
	case "not_found":
		return ErrNotFound
	case "pool_mismatch":
		return ErrPoolMismatch
	case "invalid_owner":
		return ErrInvalidOwner
	case "uninitialized":
		return ErrUninitialized
	default:
		return errors.New(code)
	}
}
