package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-capacity-alerts/internal/asset"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// rpcServer answers sui_multiGetObjects with the given per-request result.
func rpcServer(t *testing.T, result func(ids []string) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		assert.Equal(t, multiGetObjectsMethod, req.Method)
		var ids []string
		if len(req.Params) != 2 || json.Unmarshal(req.Params[0], &ids) != nil || len(ids) != 2 {
			t.Errorf("unexpected params: %s", req.Params)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result(ids),
		})
	}))
}

func moveStruct(fields map[string]any) map[string]any {
	return map[string]any{"type": "0x2::test::Struct", "fields": fields}
}

func vaultObject(id, supply string) map[string]any {
	return map[string]any{"data": map[string]any{
		"objectId": id,
		"version":  "101",
		"content": map[string]any{
			"dataType": "moveObject",
			"type":     "0xabc::vault::Vault",
			"fields": map[string]any{
				"atoken_treasury_cap": moveStruct(map[string]any{
					"total_supply": moveStruct(map[string]any{"value": supply}),
				}),
			},
		},
	}}
}

func poolObject(id, totalSupply, shares, supplyCap string) map[string]any {
	return map[string]any{"data": map[string]any{
		"objectId": id,
		"version":  "202",
		"content": map[string]any{
			"dataType": "moveObject",
			"type":     "0xabc::margin_pool::MarginPool",
			"fields": map[string]any{
				"state": moveStruct(map[string]any{
					"total_supply":  totalSupply,
					"supply_shares": shares,
					"total_borrow":  "0",
				}),
				"config": moveStruct(map[string]any{
					"margin_pool_config": moveStruct(map[string]any{"supply_cap": supplyCap}),
				}),
			},
		},
	}}
}

func newTestSui(url string) *Sui {
	return NewSui(SuiOptions{RPCURL: url, Timeout: time.Second, BreakerFailures: 3, BreakerCooldown: time.Minute}, zerolog.Nop())
}

func usdc(t *testing.T) asset.Asset {
	t.Helper()
	a, err := asset.Lookup("USDC")
	require.NoError(t, err)
	return a
}

func TestSuiFetchSuccess(t *testing.T) {
	srv := rpcServer(t, func(ids []string) any {
		return []any{
			vaultObject(ids[0], "450000000000"),
			poolObject(ids[1], "1000000000000", "900000000000", "1200000000000"),
		}
	})
	defer srv.Close()

	s := newTestSui(srv.URL)
	defer s.Close()

	snap, err := s.FetchPool(context.Background(), usdc(t))
	require.NoError(t, err)
	assert.Equal(t, "450000000000", snap.VaultShareSupply.String())
	assert.Equal(t, "1000000000000", snap.PoolTotalSupply.String())
	assert.Equal(t, "900000000000", snap.PoolSupplyShares.String())
	assert.Equal(t, "1200000000000", snap.PoolSupplyCap.String())
	assert.Equal(t, "101", snap.VaultVersion)
	assert.Equal(t, usdc(t).VaultID, snap.VaultID)
}

func TestSuiFetchFlattenedContent(t *testing.T) {
	srv := rpcServer(t, func(ids []string) any {
		return []any{
			map[string]any{"data": map[string]any{"objectId": ids[0], "content": map[string]any{
				"fields": map[string]any{"atoken_treasury_cap": map[string]any{"total_supply": map[string]any{"value": "7"}}},
			}}},
			map[string]any{"data": map[string]any{"objectId": ids[1], "content": map[string]any{
				"fields": map[string]any{
					"state":  map[string]any{"total_supply": "18446744073709551617", "supply_shares": 3},
					"config": map[string]any{"margin_pool_config": map[string]any{"supply_cap": "18446744073709551620"}},
				},
			}}},
		}
	})
	defer srv.Close()

	snap, err := newTestSui(srv.URL).FetchPool(context.Background(), usdc(t))
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551617", snap.PoolTotalSupply.String())
	assert.Equal(t, "3", snap.PoolSupplyShares.String())
}

func TestSuiFetchNotFound(t *testing.T) {
	srv := rpcServer(t, func(ids []string) any {
		return []any{
			vaultObject(ids[0], "1"),
			map[string]any{"error": map[string]any{"code": "notExists", "object_id": ids[1]}},
		}
	})
	defer srv.Close()

	_, err := newTestSui(srv.URL).FetchPool(context.Background(), usdc(t))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSuiFetchMissingData(t *testing.T) {
	srv := rpcServer(t, func(ids []string) any {
		return []any{map[string]any{}, poolObject(ids[1], "1", "1", "1")}
	})
	defer srv.Close()

	_, err := newTestSui(srv.URL).FetchPool(context.Background(), usdc(t))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSuiFetchMalformed(t *testing.T) {
	cases := map[string]func(ids []string) any{
		"missing supply cap": func(ids []string) any {
			pool := poolObject(ids[1], "1", "1", "")
			return []any{vaultObject(ids[0], "1"), pool}
		},
		"non numeric supply": func(ids []string) any {
			return []any{vaultObject(ids[0], "lots"), poolObject(ids[1], "1", "1", "1")}
		},
		"negative shares": func(ids []string) any {
			return []any{vaultObject(ids[0], "1"), poolObject(ids[1], "1", "-1", "1")}
		},
		"hex supply": func(ids []string) any {
			return []any{vaultObject(ids[0], "0x10"), poolObject(ids[1], "1", "1", "1")}
		},
		"hex supply cap": func(ids []string) any {
			return []any{vaultObject(ids[0], "1"), poolObject(ids[1], "1", "1", "0X10")}
		},
		"signed shares": func(ids []string) any {
			return []any{vaultObject(ids[0], "1"), poolObject(ids[1], "1", "+1", "1")}
		},
		"no content": func(ids []string) any {
			return []any{map[string]any{"data": map[string]any{"objectId": ids[0]}}, poolObject(ids[1], "1", "1", "1")}
		},
		"package instead of object": func(ids []string) any {
			return []any{
				map[string]any{"data": map[string]any{"objectId": ids[0], "content": map[string]any{"dataType": "package", "disassembled": map[string]any{}}}},
				poolObject(ids[1], "1", "1", "1"),
			}
		},
		"state is a string": func(ids []string) any {
			return []any{
				vaultObject(ids[0], "1"),
				map[string]any{"data": map[string]any{"objectId": ids[1], "content": map[string]any{"fields": map[string]any{"state": "oops"}}}},
			}
		},
		"single object": func(ids []string) any {
			return []any{vaultObject(ids[0], "1")}
		},
	}

	for name, result := range cases {
		t.Run(name, func(t *testing.T) {
			srv := rpcServer(t, result)
			defer srv.Close()

			_, err := newTestSui(srv.URL).FetchPool(context.Background(), usdc(t))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestSuiFetchTransportErrorIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestSui(srv.URL).FetchPool(context.Background(), usdc(t))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSuiBreakerOpensAfterFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := newTestSui(srv.URL)
	for i := 0; i < 5; i++ {
		_, err := s.FetchPool(context.Background(), usdc(t))
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestSuiMissingConfig(t *testing.T) {
	_, err := NewSui(SuiOptions{}, zerolog.Nop()).FetchPool(context.Background(), usdc(t))
	assert.Error(t, err)
}

func TestStaticFetcher(t *testing.T) {
	a := usdc(t)
	snap, err := StaticFetcher{}.FetchPool(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, a.PoolID, snap.PoolID)

	_, err = StaticFetcher{Err: ErrMalformed}.FetchPool(context.Background(), a)
	assert.ErrorIs(t, err, ErrMalformed)
}
