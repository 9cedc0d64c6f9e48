package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"vault-capacity-alerts/internal/service"
)

// VaultInfo prints the current deposits, capacity, and exchange rate of one vault.
func (a *App) VaultInfo(ctx context.Context, symbol string) error {
	return a.withService(ctx, func(svc *service.Service) error {
		info, err := svc.GetVaultInfo(ctx, symbol)
		if err != nil {
			return err
		}

		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(writer, "Vault\t%s\n", info.Asset)
		fmt.Fprintf(writer, "Total deposited\t%s %s\t(%s)\n", info.TotalDeposited, info.Asset, info.Raw.TotalDeposited)
		fmt.Fprintf(writer, "Available capacity\t%s %s\t(%s)\n", info.AvailableCapacity, info.Asset, info.Raw.AvailableCapacity)
		fmt.Fprintf(writer, "Exchange rate\t%s\t(%s)\n", info.ExchangeRate, info.Raw.ExchangeRate)
		return writer.Flush()
	})
}

// ListAlerts prints a user's alerts.
func (a *App) ListAlerts(ctx context.Context, userID int64) error {
	return a.withService(ctx, func(svc *service.Service) error {
		alerts, err := svc.ListAlerts(ctx, userID)
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Fprintln(a.Out, "no alerts found")
			return nil
		}

		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "ID\tAsset\tThreshold\tCreated (UTC)")
		for _, alert := range alerts {
			fmt.Fprintf(writer, "%d\t%s\t%s\t%s\n",
				alert.ID,
				alert.Asset,
				alert.Formatted,
				alert.CreatedAt.UTC().Format(time.RFC3339),
			)
		}
		return writer.Flush()
	})
}
