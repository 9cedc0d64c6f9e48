package app

import (
	"context"
	"fmt"

	"vault-capacity-alerts/internal/service"
)

// AddUser registers a user id.
func (a *App) AddUser(ctx context.Context, userID int64) error {
	return a.withService(ctx, func(svc *service.Service) error {
		if err := svc.RegisterUser(ctx, userID); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "user %d registered\n", userID)
		return nil
	})
}

// RemoveUser deletes a user together with their alerts.
func (a *App) RemoveUser(ctx context.Context, userID int64) error {
	return a.withService(ctx, func(svc *service.Service) error {
		removed, err := svc.RemoveUser(ctx, userID)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(a.Out, "user %d not found\n", userID)
			return nil
		}
		fmt.Fprintf(a.Out, "user %d removed\n", userID)
		return nil
	})
}

// SetAlert stores a new threshold for the user.
func (a *App) SetAlert(ctx context.Context, userID int64, symbol, amount string) error {
	return a.withService(ctx, func(svc *service.Service) error {
		id, alert, err := svc.SetAlert(ctx, userID, symbol, amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "alert %d set: notify when %s capacity reaches %s %s\n", id, alert.Asset, alert.Formatted, alert.Asset)
		return nil
	})
}

// RemoveAlert deletes the user's alerts for the given asset and amount.
func (a *App) RemoveAlert(ctx context.Context, userID int64, symbol, amount string) error {
	return a.withService(ctx, func(svc *service.Service) error {
		n, err := svc.RemoveAlert(ctx, userID, symbol, amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "%d alert(s) removed\n", n)
		return nil
	})
}

// RemoveAllAlerts deletes every alert the user holds for the asset.
func (a *App) RemoveAllAlerts(ctx context.Context, userID int64, symbol string) error {
	return a.withService(ctx, func(svc *service.Service) error {
		n, err := svc.RemoveAllAlerts(ctx, userID, symbol)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "%d alert(s) removed\n", n)
		return nil
	})
}
