package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(revokeCmd)
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <capability-id>",
	Short: "Revoke a capability (tombstoned, never deleted)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevoke,
}

func runRevoke(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.drain()

	if err := a.caps.Revoke(args[0]); err != nil {
		return err
	}
	if err := a.save(); err != nil {
		return err
	}

	fmt.Printf("revoked %s\n", args[0])
	return nil
}
