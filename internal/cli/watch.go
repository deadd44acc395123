package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arborsec/arbor/internal/config"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the config file and report hot-reloads",
	Long:  "Blocks until interrupted. Each successful reload prints the new config hash;\na reload that fails validation keeps the previous config.",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	_, hash, err := config.LoadWithHash(configPath)
	if err != nil {
		return err
	}
	fmt.Printf("active config %s\n", hash)

	w, err := config.NewWatcher(configPath, func(cfg *config.Config, hash string) {
		fmt.Printf("active config %s\n", hash)
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return w.Run(ctx)
}
