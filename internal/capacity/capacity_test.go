package capacity

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bi(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, s)
	return v
}

func TestComputeUSDCScenario(t *testing.T) {
	res, err := Compute(PoolSnapshot{
		VaultShareSupply: bi(t, "450000000000"),
		PoolTotalSupply:  bi(t, "1000000000000"),
		PoolSupplyShares: bi(t, "900000000000"),
		PoolSupplyCap:    bi(t, "1200000000000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "1111111111", res.ExchangeRate.String())
	assert.Equal(t, "200000000000", res.AvailableCapacity.String())
	// 450000000000 * 1111111111 / 1e9, floored
	assert.Equal(t, "499999999950", res.TotalDeposited.String())
}

func TestComputeExchangeRateBeyondInt64(t *testing.T) {
	cases := []struct {
		totalSupply, shares, rate string
	}{
		{"18446744073709551616", "9223372036854775808", "2000000000"},
		{"340282366920938463463374607431768211455", "3", "113427455640312821154458202477256070485000000000"},
		{"7", "3", "2333333333"},
		{"0", "5", "0"},
		{"99999999999999999999", "100000000000000000000", "999999999"},
	}
	for _, tc := range cases {
		res, err := Compute(PoolSnapshot{
			VaultShareSupply: big.NewInt(0),
			PoolTotalSupply:  bi(t, tc.totalSupply),
			PoolSupplyShares: bi(t, tc.shares),
			PoolSupplyCap:    big.NewInt(0),
		})
		require.NoError(t, err)
		assert.Equal(t, tc.rate, res.ExchangeRate.String(), tc.totalSupply)
	}
}

func TestComputeTotalDepositedLarge(t *testing.T) {
	res, err := Compute(PoolSnapshot{
		VaultShareSupply: bi(t, "12000000000000000000"),
		PoolTotalSupply:  bi(t, "30000000000000000000"),
		PoolSupplyShares: bi(t, "20000000000000000000"),
		PoolSupplyCap:    bi(t, "50000000000000000000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "1500000000", res.ExchangeRate.String())
	assert.Equal(t, "18000000000000000000", res.TotalDeposited.String())
	assert.Equal(t, "20000000000000000000", res.AvailableCapacity.String())
}

func TestAvailableCapacityFloorsAtZero(t *testing.T) {
	for _, supply := range []string{"1200000000000", "1300000000000"} {
		res, err := Compute(PoolSnapshot{
			VaultShareSupply: big.NewInt(1),
			PoolTotalSupply:  bi(t, supply),
			PoolSupplyShares: big.NewInt(1),
			PoolSupplyCap:    bi(t, "1200000000000"),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, res.AvailableCapacity.Sign(), supply)
	}

	res, err := Compute(PoolSnapshot{
		PoolTotalSupply:  bi(t, "1199999999999"),
		PoolSupplyShares: big.NewInt(1),
		PoolSupplyCap:    bi(t, "1200000000000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "1", res.AvailableCapacity.String())
}

func TestComputeZeroShares(t *testing.T) {
	_, err := Compute(PoolSnapshot{PoolTotalSupply: big.NewInt(10), PoolSupplyShares: big.NewInt(0)})
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = Compute(PoolSnapshot{PoolTotalSupply: big.NewInt(10)})
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestResultStrings(t *testing.T) {
	s := Result{TotalDeposited: big.NewInt(5)}.Strings()
	assert.Equal(t, Strings{TotalDeposited: "5", AvailableCapacity: "0", ExchangeRate: "0"}, s)
}
