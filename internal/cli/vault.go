package cli

import (
	"github.com/spf13/cobra"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Inspect vault state",
}

var vaultInfoCmd = &cobra.Command{
	Use:   "info <asset>",
	Short: "Show total deposits, available capacity, and exchange rate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().VaultInfo(cmd.Context(), args[0])
	},
}

func init() {
	vaultCmd.AddCommand(vaultInfoCmd)
}
