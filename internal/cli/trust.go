package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arborsec/arbor/internal/trust"
)

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.AddCommand(trustShowCmd)
	trustCmd.AddCommand(trustCreateCmd)
	trustCmd.AddCommand(trustRecordCmd)
	trustCmd.AddCommand(trustFreezeCmd)
	trustCmd.AddCommand(trustUnfreezeCmd)
	trustCmd.AddCommand(trustAwardCmd)
}

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Inspect and mutate agent trust profiles",
}

var trustShowCmd = &cobra.Command{
	Use:   "show <agent>",
	Short: "Print an agent's trust profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		p, err := a.engine.GetProfile(args[0])
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(p, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var trustCreateCmd = &cobra.Command{
	Use:   "create <agent>",
	Short: "Create a fresh trust profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		p, err := a.engine.CreateProfile(args[0])
		if err != nil {
			return err
		}
		if err := a.save(); err != nil {
			return err
		}
		fmt.Printf("created %s: score %.1f, tier %s\n", p.AgentID, p.TrustScore, p.Tier)
		return nil
	},
}

var trustRecordCmd = &cobra.Command{
	Use:   "record <agent> <event>",
	Short: "Record a behavioral event and recompute the score",
	Long:  "Events: action_success, action_failure, test_passed, test_failed,\nrollback_executed, security_violation, improvement_applied, proposal_submitted,\nproposal_approved, proposal_rejected, installation_success, installation_rollback.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.drain()

		p, err := a.engine.RecordEvent(args[0], trust.EventType(args[1]))
		if err != nil {
			return err
		}
		if err := a.save(); err != nil {
			return err
		}
		fmt.Printf("%s: score %.1f, tier %s, frozen %v\n", p.AgentID, p.TrustScore, p.Tier, p.Frozen)
		return nil
	},
}

var trustFreezeCmd = &cobra.Command{
	Use:   "freeze <agent> <reason>",
	Short: "Freeze an agent: every tier-gated authorization denies",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.drain()

		if err := a.engine.Freeze(args[0], args[1]); err != nil {
			return err
		}
		if err := a.save(); err != nil {
			return err
		}
		fmt.Printf("froze %s (%s)\n", args[0], args[1])
		return nil
	},
}

var trustUnfreezeCmd = &cobra.Command{
	Use:   "unfreeze <agent>",
	Short: "Lift a freeze",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.drain()

		if err := a.engine.Unfreeze(args[0]); err != nil {
			return err
		}
		if err := a.save(); err != nil {
			return err
		}
		fmt.Printf("unfroze %s\n", args[0])
		return nil
	},
}

var trustAwardCmd = &cobra.Command{
	Use:   "award <agent> <event>",
	Short: "Apply a points-ledger event",
	Long:  "Events: proposal_approved, installation_successful, high_impact_feature,\nbug_fix_passed, documentation_improvement, implementation_failure,\ninstallation_rolled_back, security_violation, circuit_breaker_triggered.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.drain()

		p, err := a.engine.Award(args[0], trust.PointsEvent(args[1]))
		if err != nil {
			return err
		}
		if err := a.save(); err != nil {
			return err
		}
		fmt.Printf("%s: %d points, tier %s\n", p.AgentID, p.TrustPoints, p.PointsTier)
		return nil
	},
}
