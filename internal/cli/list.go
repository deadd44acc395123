package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list <principal>",
	Short: "List a principal's capabilities, tombstones included",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	caps := a.caps.List(args[0])
	out, err := json.MarshalIndent(caps, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
