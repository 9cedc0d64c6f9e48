package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Register or remove users",
}

var usersAddCmd = &cobra.Command{
	Use:   "add <user-id>",
	Short: "Register a user so they can own alerts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		return getApp().AddUser(cmd.Context(), id)
	},
}

var usersRemoveCmd = &cobra.Command{
	Use:   "remove <user-id>",
	Short: "Remove a user and all of their alerts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		return getApp().RemoveUser(cmd.Context(), id)
	},
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

func init() {
	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersRemoveCmd)
}
