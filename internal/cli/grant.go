package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arborsec/arbor/internal/capability"
)

var (
	grantAction string
	grantTTL    time.Duration
)

func init() {
	rootCmd.AddCommand(grantCmd)
	grantCmd.Flags().StringVar(&grantAction, "action", "", "Action to grant (default: the URI's action segment)")
	grantCmd.Flags().DurationVar(&grantTTL, "ttl", 0, "Expiry (e.g. 24h). Default: no expiry")
}

var grantCmd = &cobra.Command{
	Use:   "grant <principal> <resource-uri>",
	Short: "Grant a capability",
	Args:  cobra.ExactArgs(2),
	RunE:  runGrant,
}

func runGrant(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.drain()

	opts := capability.GrantOptions{Action: grantAction}
	if grantTTL > 0 {
		exp := time.Now().UTC().Add(grantTTL)
		opts.ExpiresAt = &exp
	}

	cap, err := a.caps.Grant(args[0], args[1], opts)
	if err != nil {
		return err
	}
	if err := a.save(); err != nil {
		return err
	}

	fmt.Printf("granted %s: %s %s to %s\n", cap.ID, cap.Action, cap.ResourceURI, cap.PrincipalID)
	return nil
}
