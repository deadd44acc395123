package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(existsCmd)
}

var existsCmd = &cobra.Command{
	Use:   "exists <principal> <resource-uri> <action>",
	Short: "Probe for a live capability without authorizing",
	Long: "A pure pre-check against the capability store: no identity, trust, or rate-limit\n" +
		"checks run, and nothing is recorded. Exit 0 when a live capability matches, 1\n" +
		"otherwise. Use authorize for a real decision.",
	Args: cobra.ExactArgs(3),
	RunE: runExists,
}

func runExists(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	if a.caps.Exists(args[0], args[1], args[2]) {
		fmt.Println("true")
		return nil
	}
	fmt.Println("false")
	os.Exit(1)
	return nil
}
