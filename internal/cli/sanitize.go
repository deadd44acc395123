package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arborsec/arbor/internal/sanitize"
	"github.com/arborsec/arbor/internal/taint"
)

var (
	sanitizeRoot        string
	sanitizeIdentifiers []string
	sanitizeSQLMode     string
	sanitizeFormat      string
	sanitizeNonce       string
	sanitizeAllowPriv   bool
	sanitizeRedact      bool
	sanitizeTimeout     time.Duration
)

func init() {
	rootCmd.AddCommand(sanitizeCmd)
	sanitizeCmd.Flags().StringVar(&sanitizeRoot, "root", "", "Allowed root directory (path sanitizer)")
	sanitizeCmd.Flags().StringSliceVar(&sanitizeIdentifiers, "identifiers", nil, "Identifier allowlist (sql sanitizer)")
	sanitizeCmd.Flags().StringVar(&sanitizeSQLMode, "sql-mode", "identifier", "SQL mode: identifier or like")
	sanitizeCmd.Flags().StringVar(&sanitizeFormat, "format", "json", "Deserialization format: json or binary")
	sanitizeCmd.Flags().StringVar(&sanitizeNonce, "nonce", "", "Delimiter nonce (prompt sanitizer)")
	sanitizeCmd.Flags().BoolVar(&sanitizeAllowPriv, "allow-private", false, "Allow private address targets (ssrf sanitizer)")
	sanitizeCmd.Flags().BoolVar(&sanitizeRedact, "redact", false, "Redact credentials (log sanitizer)")
	sanitizeCmd.Flags().DurationVar(&sanitizeTimeout, "timeout", 5*time.Second, "Resolution deadline (ssrf sanitizer)")
}

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize <kind> <value>",
	Short: "Run one sanitizer over a value",
	Long: "Kinds: xss, sql, path, prompt, ssrf, log, deserialization.\n" +
		"Prints the transformed value and the updated taint on success; a sanitizer\n" +
		"error means the value must not reach its sink.",
	Args: cobra.ExactArgs(2),
	RunE: runSanitize,
}

func runSanitize(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	s, ok := sanitize.ForKind(sanitize.Kind(args[0]))
	if !ok {
		return fmt.Errorf("unknown sanitizer kind %q", args[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), sanitizeTimeout)
	defer cancel()

	res, err := s.Sanitize(ctx, args[1], taint.Untrusted(), sanitizeOptions(a))
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(map[string]string{
		"value": res.Value,
		"taint": res.Taint.String(),
		"nonce": res.Nonce,
	}, "", "  ")
	fmt.Println(string(out))
	return nil
}

// sanitizeOptions merges configured defaults with the command flags.
func sanitizeOptions(a *app) sanitize.Options {
	sc := a.cfg.Sanitize
	return sanitize.Options{
		AllowedRoot:        sanitizeRoot,
		AllowedIdentifiers: sanitizeIdentifiers,
		SQLMode:            sanitize.SQLMode(sanitizeSQLMode),
		AllowedSchemes:     sc.AllowedSchemes,
		AllowedPorts:       sc.AllowedPorts,
		AllowPrivate:       sanitizeAllowPriv,
		Nonce:              sanitizeNonce,
		FailThreshold:      sc.PromptFailThreshold,
		Format:             sanitize.Format(sanitizeFormat),
		MaxDepth:           sc.MaxDepth,
		MaxSize:            sc.MaxSize,
		MaxByteSize:        int64(sc.MaxByteSize),
		MaxLength:          sc.MaxLogLength,
		Redact:             sanitizeRedact,
	}
}
