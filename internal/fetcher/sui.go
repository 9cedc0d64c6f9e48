package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"vault-capacity-alerts/internal/asset"
	"vault-capacity-alerts/internal/capacity"
)

const multiGetObjectsMethod = "sui_multiGetObjects"

// SuiOptions parameterise the Sui JSON-RPC fetcher.
type SuiOptions struct {
	RPCURL          string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Sui reads vault and margin pool objects over Sui JSON-RPC.
type Sui struct {
	opts      SuiOptions
	logger    zerolog.Logger
	breaker   *gobreaker.CircuitBreaker
	client    *rpc.Client
	clientMux sync.Mutex
}

// NewSui builds a Sui pool state fetcher.
func NewSui(opts SuiOptions, logger zerolog.Logger) *Sui {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	log := logger.With().Str("component", "sui_fetcher").Logger()
	threshold := opts.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sui-rpc",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &Sui{opts: opts, logger: log, breaker: breaker}
}

type objectOptions struct {
	ShowContent bool `json:"showContent"`
}

type objectResponse struct {
	Data *struct {
		ObjectID string          `json:"objectId"`
		Version  string          `json:"version"`
		Content  json.RawMessage `json:"content"`
	} `json:"data"`
	Error *struct {
		Code     string `json:"code"`
		ObjectID string `json:"object_id"`
	} `json:"error"`
}

// FetchPool issues one batched read for the asset's vault and pool objects.
func (s *Sui) FetchPool(ctx context.Context, a asset.Asset) (capacity.PoolSnapshot, error) {
	if s.opts.RPCURL == "" {
		return capacity.PoolSnapshot{}, errors.New("sui rpc url not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	client, err := s.getClient(ctx)
	if err != nil {
		return capacity.PoolSnapshot{}, fmt.Errorf("%w: dial: %v", ErrNotFound, err)
	}

	ids := []string{asset.NormalizeObjectID(a.VaultID), asset.NormalizeObjectID(a.PoolID)}

	var objects []objectResponse
	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, client.CallContext(ctx, &objects, multiGetObjectsMethod, ids, objectOptions{ShowContent: true})
	})
	if err != nil {
		return capacity.PoolSnapshot{}, fmt.Errorf("%w: %s: %v", ErrNotFound, multiGetObjectsMethod, err)
	}
	if len(objects) != len(ids) {
		return capacity.PoolSnapshot{}, fmt.Errorf("%w: expected %d objects, got %d", ErrMalformed, len(ids), len(objects))
	}

	vaultObj, poolObj := objects[0], objects[1]
	if err := checkPresent("vault", ids[0], vaultObj); err != nil {
		return capacity.PoolSnapshot{}, err
	}
	if err := checkPresent("pool", ids[1], poolObj); err != nil {
		return capacity.PoolSnapshot{}, err
	}

	snap, err := buildSnapshot(vaultObj, poolObj)
	if err != nil {
		return capacity.PoolSnapshot{}, fmt.Errorf("%s: %w", a.Symbol, err)
	}
	snap.VaultID, snap.PoolID = ids[0], ids[1]

	s.logger.Debug().Str("asset", a.Symbol.String()).
		Str("vault_version", snap.VaultVersion).
		Str("pool_version", snap.PoolVersion).
		Msg("fetched vault and pool")
	return snap, nil
}

func checkPresent(kind, id string, obj objectResponse) error {
	if obj.Error != nil {
		return fmt.Errorf("%w: %s %s: %s", ErrNotFound, kind, id, obj.Error.Code)
	}
	if obj.Data == nil {
		return fmt.Errorf("%w: %s %s absent", ErrNotFound, kind, id)
	}
	if obj.Data.ObjectID != "" && asset.NormalizeObjectID(obj.Data.ObjectID) != id {
		return fmt.Errorf("%w: %s: response object %s does not match %s", ErrMalformed, kind, obj.Data.ObjectID, id)
	}
	return nil
}

func buildSnapshot(vaultObj, poolObj objectResponse) (capacity.PoolSnapshot, error) {
	var vault vaultFields
	if err := decodeContent(vaultObj.Data.Content, &vault); err != nil {
		return capacity.PoolSnapshot{}, fmt.Errorf("vault: %w", err)
	}
	var pool poolFields
	if err := decodeContent(poolObj.Data.Content, &pool); err != nil {
		return capacity.PoolSnapshot{}, fmt.Errorf("pool: %w", err)
	}

	shareSupply, err := parseAmount("atoken_treasury_cap.total_supply.value", vault.ATokenTreasuryCap.TotalSupply.Value)
	if err != nil {
		return capacity.PoolSnapshot{}, fmt.Errorf("vault: %w", err)
	}
	totalSupply, err := parseAmount("state.total_supply", pool.State.TotalSupply)
	if err != nil {
		return capacity.PoolSnapshot{}, fmt.Errorf("pool: %w", err)
	}
	supplyShares, err := parseAmount("state.supply_shares", pool.State.SupplyShares)
	if err != nil {
		return capacity.PoolSnapshot{}, fmt.Errorf("pool: %w", err)
	}
	supplyCap, err := parseAmount("config.margin_pool_config.supply_cap", pool.Config.MarginPoolConfig.SupplyCap)
	if err != nil {
		return capacity.PoolSnapshot{}, fmt.Errorf("pool: %w", err)
	}

	return capacity.PoolSnapshot{
		VaultVersion:     vaultObj.Data.Version,
		PoolVersion:      poolObj.Data.Version,
		VaultShareSupply: shareSupply,
		PoolTotalSupply:  totalSupply,
		PoolSupplyShares: supplyShares,
		PoolSupplyCap:    supplyCap,
	}, nil
}

func (s *Sui) getClient(ctx context.Context) (*rpc.Client, error) {
	s.clientMux.Lock()
	defer s.clientMux.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	client, err := rpc.DialOptions(ctx, s.opts.RPCURL, rpc.WithHTTPClient(&http.Client{Timeout: s.opts.Timeout}))
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

// Close releases the RPC client.
func (s *Sui) Close() {
	s.clientMux.Lock()
	defer s.clientMux.Unlock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}

var _ PoolStateFetcher = (*Sui)(nil)
