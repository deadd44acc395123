package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arborsec/arbor/internal/escalation"
)

var approveDuration time.Duration

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().DurationVar(&approveDuration, "duration", 0, "Validity period (e.g. 5m, 1h). Default: one-time use")
}

var approveCmd = &cobra.Command{
	Use:   "approve <key>",
	Short: "Approve an escalated authorization request",
	Long:  "Without --duration, the approval is one-time (consumed on first use).\nWith --duration, it stays valid for the period and can be reused.",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	store, err := escalation.NewStore(a.cfg.EscalationDir)
	if err != nil {
		return err
	}
	if err := store.Approve(args[0], approveDuration); err != nil {
		return err
	}

	if approveDuration > 0 {
		fmt.Printf("approved %q for %s\n", args[0], approveDuration)
	} else {
		fmt.Printf("approved %q (one-time use)\n", args[0])
	}
	return nil
}
