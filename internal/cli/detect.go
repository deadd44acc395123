package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arborsec/arbor/internal/sanitize"
)

func init() {
	rootCmd.AddCommand(detectCmd)
}

var detectCmd = &cobra.Command{
	Use:   "detect <kind> <value>",
	Short: "Probe a value for attack patterns without transforming it",
	Long:  "Exit 0 when the value looks safe, 1 when patterns matched. For audit and\ntriage; a clean probe is not a sanitization.",
	Args:  cobra.ExactArgs(2),
	RunE:  runDetect,
}

func runDetect(cmd *cobra.Command, args []string) error {
	s, ok := sanitize.ForKind(sanitize.Kind(args[0]))
	if !ok {
		return fmt.Errorf("unknown sanitizer kind %q", args[0])
	}

	det := s.Detect(args[1])
	out, _ := json.MarshalIndent(det, "", "  ")
	fmt.Println(string(out))

	if !det.Safe {
		os.Exit(1)
	}
	return nil
}
