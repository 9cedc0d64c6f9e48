package cli

import (
	"github.com/spf13/cobra"

	"vault-capacity-alerts/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate <asset>",
	Short: "用给定的池子状态执行一次告警周期 (会删除被触发的告警)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := simulateOpts
		opts.Asset = args[0]
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	flags := simulateCmd.Flags()
	flags.StringVar(&simulateOpts.VaultShares, "vault-shares", "0", "Vault share token supply (base units)")
	flags.StringVar(&simulateOpts.TotalSupply, "total-supply", "", "Pool total supply (base units)")
	flags.StringVar(&simulateOpts.SupplyShares, "supply-shares", "", "Pool supply shares (base units)")
	flags.StringVar(&simulateOpts.SupplyCap, "supply-cap", "", "Pool supply cap (base units)")
	flags.BoolVar(&simulateOpts.LogOnly, "log-only", false, "Log notifications instead of sending them")

	_ = simulateCmd.MarkFlagRequired("total-supply")
	_ = simulateCmd.MarkFlagRequired("supply-shares")
	_ = simulateCmd.MarkFlagRequired("supply-cap")
}
