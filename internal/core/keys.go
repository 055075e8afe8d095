package core

import (
	"crypto/sha256"
	"strings"

	"TierOracle/internal/state"
)

// Domain tags for deterministic state addressing. Every persisted entity is
// located from (tag, assetKey[, ordinal]), so two assets can never collide
// and an oracle's governance or history can never be confused with another's.
const (
	TagOracleState     = "oracle_state"
	TagGovernance      = "governance"
	TagHistoricalChunk = "historical_chunk"
)

// CanonicalizeAssetID normalizes an asset identifier so that "SOL/USDC",
// " sol/usdc " and "SoL/UsDc" all address the same oracle.
func CanonicalizeAssetID(assetID string) string {
	return strings.ToLower(strings.TrimSpace(assetID))
}

// ValidateAssetID bounds the canonical identifier.
func ValidateAssetID(canonical string) error {
	if canonical == "" || len(canonical) > state.MaxAssetIDLength {
		return state.ErrInvalidAssetID
	}
	return nil
}

// DeriveAssetKey maps a canonicalized asset identifier to its fixed-length
// key. Deterministic by construction: consumers can compute an oracle's
// address without consulting the engine.
func DeriveAssetKey(assetID string) state.AssetKey {
	return state.AssetKey(sha256.Sum256([]byte(CanonicalizeAssetID(assetID))))
}

// StateKey derives the storage address for one persisted entity.
func StateKey(tag string, assetKey state.AssetKey, ordinal ...uint8) [32]byte {
	h := sha256.New()
	h.Write([]byte(tag))
	h.Write(assetKey[:])
	for _, o := range ordinal {
		h.Write([]byte{o})
	}
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}
