package cli

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arborsec/arbor/internal/authz"
)

var (
	authorizeTimeout time.Duration
	authorizeToken   string
)

func init() {
	rootCmd.AddCommand(authorizeCmd)
	authorizeCmd.Flags().DurationVar(&authorizeTimeout, "timeout", 10*time.Second, "Decision deadline; expiry denies")
	authorizeCmd.Flags().StringVar(&authorizeToken, "token", "", "Hex-encoded identity token, as minted by 'identity token'")
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize <principal> <resource-uri> <action>",
	Short: "Run the full authorization pipeline",
	Long:  "Capability, identity, freeze, tier, constraints, rate limit, escalation, reflex.\nThe decision is audited. Exit 0 on allow, 1 on deny.",
	Args:  cobra.ExactArgs(3),
	RunE:  runAuthorize,
}

func runAuthorize(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.drain()

	k, cleanup, err := a.kernel()
	if err != nil {
		return err
	}
	defer cleanup()

	var token []byte
	if authorizeToken != "" {
		token, err = hex.DecodeString(authorizeToken)
		if err != nil {
			return fmt.Errorf("decode token: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), authorizeTimeout)
	defer cancel()

	d := k.Authorize(ctx, authz.Request{
		PrincipalID: args[0],
		ResourceURI: args[1],
		Action:      args[2],
		Token:       token,
	})

	// Authorization may have created a first-contact profile.
	if err := a.save(); err != nil {
		return err
	}

	out, _ := json.MarshalIndent(d, "", "  ")
	fmt.Println(string(out))
	if !d.Allowed {
		os.Exit(1)
	}
	return nil
}
