package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"vault-capacity-alerts/internal/asset"
)

// thresholdDigits bounds stored thresholds to 256-bit values.
const thresholdDigits = 78

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
	// ErrUnknownUser is returned when an alert references a user that was never registered.
	ErrUnknownUser = errors.New("storage: unknown user")
	// ErrInvalidThreshold rejects negative or oversized thresholds.
	ErrInvalidThreshold = errors.New("storage: threshold must be an unsigned integer of at most 78 digits")
)

// UserStore manages the identities alerts hang off.
type UserStore interface {
	EnsureUser(ctx context.Context, userID int64) error
	DeleteUser(ctx context.Context, userID int64) (bool, error)
}

// AlertStore is the user-facing side of the threshold store.
type AlertStore interface {
	InsertAlert(ctx context.Context, userID int64, sym asset.Symbol, threshold *big.Int) (int64, error)
	ListAlertsByUser(ctx context.Context, userID int64) ([]AlertRecord, error)
	DeleteAlertsByThreshold(ctx context.Context, userID int64, sym asset.Symbol, threshold *big.Int) (int64, error)
	DeleteAlertsByAsset(ctx context.Context, userID int64, sym asset.Symbol) (int64, error)
}

// TriggerStore is the dispatcher-facing side of the threshold store.
type TriggerStore interface {
	SelectTriggered(ctx context.Context, sym asset.Symbol, available *big.Int) ([]AlertRecord, error)
	DeleteAlertsByID(ctx context.Context, ids []int64) (int64, error)
}

// ThresholdStore bundles every store operation.
type ThresholdStore interface {
	UserStore
	AlertStore
	TriggerStore
	Close()
}

// AdvisoryLocker exposes cross-process lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

func checkThreshold(v *big.Int) error {
	if v == nil || v.Sign() < 0 || len(v.String()) > thresholdDigits {
		return ErrInvalidThreshold
	}
	return nil
}

// padThreshold encodes v so that lexical order matches numeric order.
func padThreshold(v *big.Int) string {
	s := v.String()
	return strings.Repeat("0", thresholdDigits-len(s)) + s
}

// clampCapacity maps any capacity to a comparable value in threshold space.
// Negative capacity matches nothing; oversized capacity matches everything.
func clampCapacity(v *big.Int) (*big.Int, bool) {
	if v == nil || v.Sign() < 0 {
		return nil, false
	}
	if len(v.String()) > thresholdDigits {
		ceiling, _ := new(big.Int).SetString(strings.Repeat("9", thresholdDigits), 10)
		return ceiling, true
	}
	return v, true
}

func parseThreshold(raw string) (*big.Int, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(raw), "0")
	if trimmed == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("parse threshold %q", raw)
	}
	return v, nil
}
