package cli

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arborsec/arbor/internal/identity"
)

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityKeygenCmd)
	identityCmd.AddCommand(identityAddCmd)
	identityCmd.AddCommand(identityRemoveCmd)
	identityCmd.AddCommand(identityTokenCmd)
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage principal signing keys",
}

var identityKeygenCmd = &cobra.Command{
	Use:   "keygen <principal>",
	Short: "Generate a keypair and register the public half",
	Long:  "Prints the private seed once. The seed never touches the state directory;\nthe principal keeps it and mints tokens with 'identity token'.",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityKeygen,
}

var identityAddCmd = &cobra.Command{
	Use:   "add <principal> <hex-public-key>",
	Short: "Register an existing public key for a principal",
	Args:  cobra.ExactArgs(2),
	RunE:  runIdentityAdd,
}

var identityRemoveCmd = &cobra.Command{
	Use:   "remove <principal>",
	Short: "Remove a principal's key",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityRemove,
}

var identityTokenCmd = &cobra.Command{
	Use:   "token <principal> <hex-seed>",
	Short: "Mint a signed request token from a private seed",
	Args:  cobra.ExactArgs(2),
	RunE:  runIdentityToken,
}

func runIdentityKeygen(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := a.principals.Register(args[0], pub); err != nil {
		return err
	}
	if err := a.savePrincipals(); err != nil {
		return err
	}

	fmt.Printf("registered %q\n", args[0])
	fmt.Printf("public:  %s\n", hex.EncodeToString(pub))
	fmt.Printf("seed:    %s\n", hex.EncodeToString(priv.Seed()))
	return nil
}

func runIdentityAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	raw, err := hex.DecodeString(strings.TrimSpace(args[1]))
	if err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	if err := a.principals.Register(args[0], ed25519.PublicKey(raw)); err != nil {
		return err
	}
	if err := a.savePrincipals(); err != nil {
		return err
	}

	fmt.Printf("registered %q\n", args[0])
	return nil
}

func runIdentityRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	a.principals.Remove(args[0])
	if err := a.savePrincipals(); err != nil {
		return err
	}

	fmt.Printf("removed %q\n", args[0])
	return nil
}

func runIdentityToken(cmd *cobra.Command, args []string) error {
	seed, err := hex.DecodeString(strings.TrimSpace(args[1]))
	if err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	token, err := identity.NewToken(ed25519.NewKeyFromSeed(seed), args[0])
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(token))
	return nil
}
