package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arborsec/arbor/internal/escalation"
)

func init() {
	rootCmd.AddCommand(pendingCmd)
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List escalated authorization requests",
	Args:  cobra.NoArgs,
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	store, err := escalation.NewStore(a.cfg.EscalationDir)
	if err != nil {
		return err
	}
	requests, err := store.List()
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(requests, "", "  ")
	fmt.Println(string(out))
	return nil
}
