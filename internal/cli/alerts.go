package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var alertsUserID int64

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage capacity alerts of a user",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if alertsUserID == 0 {
			return fmt.Errorf("--user is required")
		}
		return rootCmd.PersistentPreRunE(cmd, args)
	},
}

var alertsSetCmd = &cobra.Command{
	Use:     "set <asset> <amount>",
	Short:   "Notify when the vault capacity reaches amount (human units)",
	Example: "  capwatch alerts set --user 12345 USDC 150,000",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetAlert(cmd.Context(), alertsUserID, args[0], args[1])
	},
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListAlerts(cmd.Context(), alertsUserID)
	},
}

var alertsRemoveCmd = &cobra.Command{
	Use:   "remove <asset> <amount>",
	Short: "Remove alerts with exactly this threshold",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RemoveAlert(cmd.Context(), alertsUserID, args[0], args[1])
	},
}

var alertsRemoveAllCmd = &cobra.Command{
	Use:   "remove-all <asset>",
	Short: "Remove every alert for an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RemoveAllAlerts(cmd.Context(), alertsUserID, args[0])
	},
}

func init() {
	alertsCmd.PersistentFlags().Int64Var(&alertsUserID, "user", 0, "User (Telegram chat) id")

	alertsCmd.AddCommand(alertsSetCmd)
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsRemoveCmd)
	alertsCmd.AddCommand(alertsRemoveAllCmd)
}
