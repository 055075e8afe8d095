package state

import "encoding/hex"

// Identity is a fixed-length caller or source identity. The engine never
// interprets its contents; the hosting environment authenticates it.
type Identity [32]byte

// AssetKey addresses all per-asset state. Derived deterministically from the
// canonical asset identifier (see core.DeriveAssetKey).
type AssetKey [32]byte

var zeroIdentity Identity

// IsZero reports whether the identity is the all-zero placeholder used for
// unused member slots.
func (id Identity) IsZero() bool {
	return id == zeroIdentity
}

func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

func (k AssetKey) String() string {
	return hex.EncodeToString(k[:])
}

// IdentityFromString parses a hex identity, tolerating short input by
// zero-padding on the right and rejecting input longer than 32 bytes.
// Used by the ingestion parser.
func IdentityFromString(s string) (Identity, error) {
	var id Identity
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) > len(id) {
		return id, ErrIdentityTooLong
	}
	copy(id[:], b)
	return id, nil
}

// AssetKeyFromString parses a hex asset key.
func AssetKeyFromString(s string) (AssetKey, error) {
	var k AssetKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, err
	}
	if len(b) > len(k) {
		return k, ErrIdentityTooLong
	}
	copy(k[:], b)
	return k, nil
}

// Identities and asset keys serialize as hex in JSON payloads and snapshots.

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(id[:])), nil
}

func (id *Identity) UnmarshalText(b []byte) error {
	decoded, err := hex.DecodeString(string(b))
	if err != nil {
		return err
	}
	if len(decoded) > len(id) {
		return ErrIdentityTooLong
	}
	var out Identity
	copy(out[:], decoded)
	*id = out
	return nil
}

func (k AssetKey) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(k[:])), nil
}

func (k *AssetKey) UnmarshalText(b []byte) error {
	decoded, err := hex.DecodeString(string(b))
	if err != nil {
		return err
	}
	if len(decoded) > len(k) {
		return ErrIdentityTooLong
	}
	var out AssetKey
	copy(out[:], decoded)
	*k = out
	return nil
}
