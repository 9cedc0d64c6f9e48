package fetcher

import (
	"context"
	"errors"

	"vault-capacity-alerts/internal/asset"
	"vault-capacity-alerts/internal/capacity"
)

var (
	// ErrNotFound covers an absent object, a per-object error, or a failed round trip.
	ErrNotFound = errors.New("fetcher: pool objects not found")
	// ErrMalformed flags an object whose content lacks the expected fields.
	ErrMalformed = errors.New("fetcher: malformed pool object")
)

// PoolStateFetcher retrieves the paired vault and pool objects of one asset.
type PoolStateFetcher interface {
	FetchPool(ctx context.Context, a asset.Asset) (capacity.PoolSnapshot, error)
}

// StaticFetcher serves a fixed snapshot for every asset. Used by simulate and tests.
type StaticFetcher struct {
	Snapshot capacity.PoolSnapshot
	Err      error
}

// FetchPool returns the configured snapshot or error.
func (s StaticFetcher) FetchPool(ctx context.Context, a asset.Asset) (capacity.PoolSnapshot, error) {
	if s.Err != nil {
		return capacity.PoolSnapshot{}, s.Err
	}
	snap := s.Snapshot
	snap.VaultID = a.VaultID
	snap.PoolID = a.PoolID
	return snap, nil
}

var _ PoolStateFetcher = StaticFetcher{}
