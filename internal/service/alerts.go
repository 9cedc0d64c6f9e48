package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"vault-capacity-alerts/internal/asset"
	"vault-capacity-alerts/internal/capacity"
)

// rateDecimals matches capacity.RateScale.
const rateDecimals = 9

// ErrZeroThreshold rejects amounts that truncate to zero base units.
var ErrZeroThreshold = errors.New("service: threshold rounds to zero base units")

// Alert is the display view of a stored alert.
type Alert struct {
	ID        int64
	Asset     asset.Symbol
	Threshold *big.Int
	Formatted string
	CreatedAt time.Time
}

// VaultInfo carries raw base-unit amounts and their formatted forms.
type VaultInfo struct {
	Asset             asset.Symbol
	Raw               capacity.Strings
	TotalDeposited    string
	AvailableCapacity string
	ExchangeRate      string
}

// RegisterUser makes userID eligible to own alerts.
func (s *Service) RegisterUser(ctx context.Context, userID int64) error {
	return s.store.EnsureUser(ctx, userID)
}

// RemoveUser deletes the user and all of their alerts.
func (s *Service) RemoveUser(ctx context.Context, userID int64) (bool, error) {
	return s.store.DeleteUser(ctx, userID)
}

// SetAlert stores a threshold given in human units and returns its id.
func (s *Service) SetAlert(ctx context.Context, userID int64, symbol, amount string) (int64, Alert, error) {
	a, threshold, err := parseThreshold(symbol, amount)
	if err != nil {
		return 0, Alert{}, err
	}
	id, err := s.store.InsertAlert(ctx, userID, a.Symbol, threshold)
	if err != nil {
		return 0, Alert{}, err
	}
	return id, Alert{
		ID:        id,
		Asset:     a.Symbol,
		Threshold: threshold,
		Formatted: asset.FormatHuman(threshold, a),
	}, nil
}

// ListAlerts returns the user's alerts ordered by asset then threshold.
func (s *Service) ListAlerts(ctx context.Context, userID int64) ([]Alert, error) {
	records, err := s.store.ListAlertsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Alert, 0, len(records))
	for _, rec := range records {
		view := Alert{ID: rec.ID, Asset: rec.Asset, Threshold: rec.Threshold, CreatedAt: rec.CreatedAt}
		if a, err := asset.Lookup(string(rec.Asset)); err == nil {
			view.Formatted = asset.FormatHuman(rec.Threshold, a)
		} else {
			view.Formatted = rec.Threshold.String()
		}
		out = append(out, view)
	}
	return out, nil
}

// RemoveAlert deletes every alert of the user matching asset and amount.
func (s *Service) RemoveAlert(ctx context.Context, userID int64, symbol, amount string) (int64, error) {
	a, threshold, err := parseThreshold(symbol, amount)
	if err != nil {
		return 0, err
	}
	return s.store.DeleteAlertsByThreshold(ctx, userID, a.Symbol, threshold)
}

// RemoveAllAlerts deletes all of the user's alerts for one asset.
func (s *Service) RemoveAllAlerts(ctx context.Context, userID int64, symbol string) (int64, error) {
	a, err := asset.Lookup(symbol)
	if err != nil {
		return 0, err
	}
	return s.store.DeleteAlertsByAsset(ctx, userID, a.Symbol)
}

// GetVaultInfo fetches and computes the current state of one vault.
func (s *Service) GetVaultInfo(ctx context.Context, symbol string) (VaultInfo, error) {
	a, err := asset.Lookup(symbol)
	if err != nil {
		return VaultInfo{}, err
	}
	snap, err := s.fetcher.FetchPool(ctx, a)
	if err != nil {
		return VaultInfo{}, fmt.Errorf("fetch %s pool: %w", a.Symbol, err)
	}
	result, err := capacity.Compute(snap)
	if err != nil {
		return VaultInfo{}, fmt.Errorf("compute %s capacity: %w", a.Symbol, err)
	}

	return VaultInfo{
		Asset:             a.Symbol,
		Raw:               result.Strings(),
		TotalDeposited:    asset.FormatHuman(result.TotalDeposited, a),
		AvailableCapacity: asset.FormatHuman(result.AvailableCapacity, a),
		ExchangeRate:      asset.FormatDecimal(decimal.NewFromBigInt(result.ExchangeRate, -rateDecimals), rateDecimals),
	}, nil
}

func parseThreshold(symbol, amount string) (asset.Asset, *big.Int, error) {
	a, err := asset.Lookup(symbol)
	if err != nil {
		return asset.Asset{}, nil, err
	}
	human, err := asset.ParseAmount(amount)
	if err != nil {
		return asset.Asset{}, nil, err
	}
	threshold := asset.ToBaseUnits(human, a)
	if threshold.Sign() <= 0 {
		return asset.Asset{}, nil, fmt.Errorf("%w: %s %s", ErrZeroThreshold, amount, a.Symbol)
	}
	return a, threshold, nil
}

