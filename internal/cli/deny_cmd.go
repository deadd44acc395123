package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arborsec/arbor/internal/escalation"
)

func init() {
	rootCmd.AddCommand(denyCmd)
}

var denyCmd = &cobra.Command{
	Use:   "deny <key>",
	Short: "Deny an escalated authorization request",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeny,
}

func runDeny(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	store, err := escalation.NewStore(a.cfg.EscalationDir)
	if err != nil {
		return err
	}
	if err := store.Deny(args[0]); err != nil {
		return err
	}

	fmt.Printf("denied %q\n", args[0])
	return nil
}
