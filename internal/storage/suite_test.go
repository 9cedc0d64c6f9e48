package storage

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-capacity-alerts/internal/asset"
)

func bi(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, s)
	return v
}

func alertIDs(recs []AlertRecord) []int64 {
	ids := make([]int64, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

// runThresholdStoreSuite exercises the behaviour every backend must share.
func runThresholdStoreSuite(t *testing.T, open func(t *testing.T) ThresholdStore) {
	t.Run("insert requires user", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.InsertAlert(ctx, 42, asset.USDC, big.NewInt(1))
		assert.ErrorIs(t, err, ErrUnknownUser)

		require.NoError(t, s.EnsureUser(ctx, 42))
		require.NoError(t, s.EnsureUser(ctx, 42))

		id, err := s.InsertAlert(ctx, 42, asset.USDC, big.NewInt(1))
		require.NoError(t, err)
		assert.Positive(t, id)
	})

	t.Run("ids are monotonic and duplicates allowed", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.EnsureUser(ctx, 1))

		first, err := s.InsertAlert(ctx, 1, asset.SUI, big.NewInt(5))
		require.NoError(t, err)
		second, err := s.InsertAlert(ctx, 1, asset.SUI, big.NewInt(5))
		require.NoError(t, err)
		assert.Greater(t, second, first)

		_, err = s.DeleteAlertsByID(ctx, []int64{second})
		require.NoError(t, err)
		third, err := s.InsertAlert(ctx, 1, asset.SUI, big.NewInt(5))
		require.NoError(t, err)
		assert.Greater(t, third, second)
	})

	t.Run("list ordering", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.EnsureUser(ctx, 7))
		require.NoError(t, s.EnsureUser(ctx, 8))

		for _, in := range []struct {
			sym asset.Symbol
			v   string
		}{
			{asset.USDC, "3000000000"},
			{asset.SUI, "100000000000000"},
			{asset.USDC, "500000000"},
			{asset.DEEP, "20000000000000000000"},
			{asset.USDC, "25000000000"},
		} {
			_, err := s.InsertAlert(ctx, 7, in.sym, bi(t, in.v))
			require.NoError(t, err)
		}
		_, err := s.InsertAlert(ctx, 8, asset.USDC, big.NewInt(1))
		require.NoError(t, err)

		recs, err := s.ListAlertsByUser(ctx, 7)
		require.NoError(t, err)
		require.Len(t, recs, 5)

		got := make([]string, len(recs))
		for i, r := range recs {
			got[i] = string(r.Asset) + ":" + r.Threshold.String()
			assert.EqualValues(t, 7, r.UserID)
		}
		assert.Equal(t, []string{
			"DEEP:20000000000000000000",
			"SUI:100000000000000",
			"USDC:500000000",
			"USDC:3000000000",
			"USDC:25000000000",
		}, got)

		empty, err := s.ListAlertsByUser(ctx, 999)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("delete by threshold and asset", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.EnsureUser(ctx, 3))

		for _, v := range []int64{100, 100, 200} {
			_, err := s.InsertAlert(ctx, 3, asset.WAL, big.NewInt(v))
			require.NoError(t, err)
		}
		_, err := s.InsertAlert(ctx, 3, asset.USDC, big.NewInt(100))
		require.NoError(t, err)

		n, err := s.DeleteAlertsByThreshold(ctx, 3, asset.WAL, big.NewInt(100))
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		n, err = s.DeleteAlertsByThreshold(ctx, 3, asset.WAL, big.NewInt(100))
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)

		n, err = s.DeleteAlertsByAsset(ctx, 3, asset.WAL)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		recs, err := s.ListAlertsByUser(ctx, 3)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, asset.USDC, recs[0].Asset)
	})

	t.Run("select triggered predicate", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.EnsureUser(ctx, 10))

		low, err := s.InsertAlert(ctx, 10, asset.USDC, bi(t, "150000000000"))
		require.NoError(t, err)
		exact, err := s.InsertAlert(ctx, 10, asset.USDC, bi(t, "200000000000"))
		require.NoError(t, err)
		_, err = s.InsertAlert(ctx, 10, asset.USDC, bi(t, "250000000000"))
		require.NoError(t, err)
		_, err = s.InsertAlert(ctx, 10, asset.SUI, big.NewInt(1))
		require.NoError(t, err)

		recs, err := s.SelectTriggered(ctx, asset.USDC, bi(t, "200000000000"))
		require.NoError(t, err)
		assert.Equal(t, []int64{low, exact}, alertIDs(recs))

		recs, err = s.SelectTriggered(ctx, asset.USDC, big.NewInt(0))
		require.NoError(t, err)
		assert.Empty(t, recs)

		recs, err = s.SelectTriggered(ctx, asset.USDC, big.NewInt(-1))
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("thresholds beyond 64 bits compare numerically", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.EnsureUser(ctx, 11))

		small, err := s.InsertAlert(ctx, 11, asset.SUI, bi(t, "9999999999999999999"))
		require.NoError(t, err)
		big1, err := s.InsertAlert(ctx, 11, asset.SUI, bi(t, "18446744073709551616"))
		require.NoError(t, err)
		_, err = s.InsertAlert(ctx, 11, asset.SUI, bi(t, "100000000000000000000"))
		require.NoError(t, err)

		recs, err := s.SelectTriggered(ctx, asset.SUI, bi(t, "18446744073709551616"))
		require.NoError(t, err)
		assert.Equal(t, []int64{small, big1}, alertIDs(recs))

		huge := new(big.Int).Lsh(big.NewInt(1), 300)
		recs, err = s.SelectTriggered(ctx, asset.SUI, huge)
		require.NoError(t, err)
		assert.Len(t, recs, 3)

		_, err = s.InsertAlert(ctx, 11, asset.SUI, huge)
		assert.ErrorIs(t, err, ErrInvalidThreshold)
		_, err = s.InsertAlert(ctx, 11, asset.SUI, big.NewInt(-1))
		assert.ErrorIs(t, err, ErrInvalidThreshold)
	})

	t.Run("retired ids never trigger again", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.EnsureUser(ctx, 12))

		id, err := s.InsertAlert(ctx, 12, asset.USDC, big.NewInt(1000))
		require.NoError(t, err)

		recs, err := s.SelectTriggered(ctx, asset.USDC, big.NewInt(1000))
		require.NoError(t, err)
		require.Equal(t, []int64{id}, alertIDs(recs))

		n, err := s.DeleteAlertsByID(ctx, alertIDs(recs))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		n, err = s.DeleteAlertsByID(ctx, alertIDs(recs))
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)

		n, err = s.DeleteAlertsByID(ctx, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)

		for _, capacity := range []int64{1000, 5000, 1 << 40} {
			recs, err = s.SelectTriggered(ctx, asset.USDC, big.NewInt(capacity))
			require.NoError(t, err)
			assert.NotContains(t, alertIDs(recs), id)
		}
	})

	t.Run("delete user cascades", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.EnsureUser(ctx, 13))
		_, err := s.InsertAlert(ctx, 13, asset.DEEP, big.NewInt(1))
		require.NoError(t, err)

		removed, err := s.DeleteUser(ctx, 13)
		require.NoError(t, err)
		assert.True(t, removed)

		recs, err := s.SelectTriggered(ctx, asset.DEEP, big.NewInt(10))
		require.NoError(t, err)
		assert.Empty(t, recs)

		removed, err = s.DeleteUser(ctx, 13)
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("concurrent writers and readers", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.EnsureUser(ctx, 20))

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					_, err := s.InsertAlert(ctx, 20, asset.USDC, big.NewInt(int64(i*10+j)))
					assert.NoError(t, err)
					_, err = s.SelectTriggered(ctx, asset.USDC, big.NewInt(50))
					assert.NoError(t, err)
				}
			}(i)
		}
		wg.Wait()

		recs, err := s.ListAlertsByUser(ctx, 20)
		require.NoError(t, err)
		assert.Len(t, recs, 80)
	})
}
