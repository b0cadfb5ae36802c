package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pkghub/internal/app"
)

var serveDebug bool
var serveConfigPath string

// serveCmd starts the bridge: it handshakes every configured adapter and
// serves the composite registry.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pkghub bridge",
	Long: `Starts the aggregation bridge. The bridge reads its adapter list from
the configuration, fetches each adapter's /model and /capabilities once, and
exits with an error when any adapter is unreachable or two adapters claim
the same group type. After a successful handshake it serves the composite
registry until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.Config{
		ConfigPath: serveConfigPath,
		Debug:      serveDebug,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return application.RunBridge(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Configuration directory (default: ~/.config/pkghub)")
}
