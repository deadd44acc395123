package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arborsec/arbor/internal/audit"
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the decision log",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify the decision log's hash chain",
	Long:  "Walks the JSONL log and checks every prev_hash link. Exit 0 when the chain\nis intact, 1 when it is broken or unreadable.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		a, err := openApp()
		if err != nil {
			return err
		}
		path = a.cfg.AuditPath
	}

	result := audit.Verify(path)
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if !result.Valid {
		os.Exit(1)
	}
	return nil
}
