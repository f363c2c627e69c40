package cli

import (
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the subtree layout and the default group",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.dir.Bootstrap(cmd.Context())
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Resync every device group from group membership and device ownership",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.dir.Sync.SyncAll(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(initCmd, syncCmd)
}
