package query

import "errors"

var (
	// ErrAssetNotFound means no projection row exists for the asset.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrNoHistory means no stored samples fall in the requested window.
	ErrNoHistory = errors.New("no price history in window")
)
