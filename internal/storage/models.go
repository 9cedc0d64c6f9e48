package storage

import (
	"math/big"
	"time"

	"vault-capacity-alerts/internal/asset"
)

// AlertRecord is one capacity subscription. Threshold is in base units.
type AlertRecord struct {
	ID        int64
	UserID    int64
	Asset     asset.Symbol
	Threshold *big.Int
	CreatedAt time.Time
}
