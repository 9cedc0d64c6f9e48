package capacity

import (
	"errors"
	"math/big"
)

// ErrDivisionByZero is returned when the pool reports zero supply shares.
var ErrDivisionByZero = errors.New("capacity: pool supply shares are zero")

// RateScale is the fixed-point factor applied to the share exchange rate.
var RateScale = big.NewInt(1_000_000_000)

// PoolSnapshot is the validated on-chain state of one vault and its margin pool.
type PoolSnapshot struct {
	VaultID      string
	PoolID       string
	VaultVersion string
	PoolVersion  string

	VaultShareSupply *big.Int
	PoolTotalSupply  *big.Int
	PoolSupplyShares *big.Int
	PoolSupplyCap    *big.Int
}

// Result holds base-unit amounts derived from a snapshot.
type Result struct {
	TotalDeposited    *big.Int
	AvailableCapacity *big.Int
	ExchangeRate      *big.Int
}

// Strings is the decimal string view of Result.
type Strings struct {
	TotalDeposited    string `json:"totalDeposited"`
	AvailableCapacity string `json:"availableCapacity"`
	ExchangeRate      string `json:"exchangeRate"`
}

// Compute derives deposits and remaining capacity using integer arithmetic only.
func Compute(s PoolSnapshot) (Result, error) {
	if s.PoolSupplyShares == nil || s.PoolSupplyShares.Sign() == 0 {
		return Result{}, ErrDivisionByZero
	}
	totalSupply := orZero(s.PoolTotalSupply)

	rate := new(big.Int).Mul(totalSupply, RateScale)
	rate.Quo(rate, s.PoolSupplyShares)

	deposited := new(big.Int).Mul(orZero(s.VaultShareSupply), rate)
	deposited.Quo(deposited, RateScale)

	available := new(big.Int).Sub(orZero(s.PoolSupplyCap), totalSupply)
	if available.Sign() < 0 {
		available.SetInt64(0)
	}

	return Result{
		TotalDeposited:    deposited,
		AvailableCapacity: available,
		ExchangeRate:      rate,
	}, nil
}

// Strings renders every field as a base-10 integer string.
func (r Result) Strings() Strings {
	return Strings{
		TotalDeposited:    intString(r.TotalDeposited),
		AvailableCapacity: intString(r.AvailableCapacity),
		ExchangeRate:      intString(r.ExchangeRate),
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
