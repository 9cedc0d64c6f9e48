package app

import (
	"context"
	"fmt"
	"math/big"

	"vault-capacity-alerts/internal/alerting"
	"vault-capacity-alerts/internal/asset"
	"vault-capacity-alerts/internal/capacity"
	"vault-capacity-alerts/internal/fetcher"
	"vault-capacity-alerts/internal/service"
)

// SimulateOptions describe a synthetic pool state in base units.
type SimulateOptions struct {
	Asset        string
	VaultShares  string
	TotalSupply  string
	SupplyShares string
	SupplyCap    string
	LogOnly      bool
}

// Simulate 用给定的池子状态跑一轮完整的告警流程，会真实删除被触发的告警。
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	target, err := asset.Lookup(opts.Asset)
	if err != nil {
		return err
	}
	snap, err := opts.snapshot()
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	notifier := a.newNotifier()
	if opts.LogOnly {
		notifier = alerting.NewLogNotifier(a.Logger)
	}

	svc := service.New(service.Options{
		Assets:         []asset.Asset{target},
		MaxConcurrency: a.Config.Dispatch.MaxConcurrency,
		StoreTimeout:   a.Config.Dispatch.StoreTimeout,
	}, nil, fetcher.StaticFetcher{Snapshot: snap}, store, notifier, nil, a.Logger)
	defer svc.Close()

	report, err := svc.ProcessAsset(ctx, target)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "%s: available %s, triggered %d, delivered %d, failed %d, retired %d\n",
		report.Asset,
		asset.FormatHuman(report.Result.AvailableCapacity, target),
		report.Triggered, report.Delivered, report.Failed, report.Retired,
	)
	return nil
}

func (o SimulateOptions) snapshot() (capacity.PoolSnapshot, error) {
	var (
		snap capacity.PoolSnapshot
		err  error
	)
	if snap.VaultShareSupply, err = parseBaseUnits("vault-shares", o.VaultShares); err != nil {
		return snap, err
	}
	if snap.PoolTotalSupply, err = parseBaseUnits("total-supply", o.TotalSupply); err != nil {
		return snap, err
	}
	if snap.PoolSupplyShares, err = parseBaseUnits("supply-shares", o.SupplyShares); err != nil {
		return snap, err
	}
	if snap.PoolSupplyCap, err = parseBaseUnits("supply-cap", o.SupplyCap); err != nil {
		return snap, err
	}
	return snap, nil
}

func parseBaseUnits(flag, raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("--%s must be a non-negative integer in base units, got %q", flag, raw)
	}
	return v, nil
}
