package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pkghub/internal/app"
)

var adapterDebug bool
var adapterConfigPath string

// adapterCmd starts one ecosystem adapter process.
var adapterCmd = &cobra.Command{
	Use:   "adapter <ecosystem>",
	Short: "Start one ecosystem adapter",
	Long: `Starts the adapter for one ecosystem (npm, pypi, maven, nuget, oci,
mcp). The adapter loads its name index from the upstream bulk catalog,
serves the xRegistry adapter contract, and refreshes the index in the
background on the configured cadence.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"npm", "pypi", "maven", "nuget", "oci", "mcp"},
	RunE:      runAdapter,
}

func runAdapter(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.Config{
		ConfigPath: adapterConfigPath,
		Debug:      adapterDebug,
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
	return application.RunAdapter(ctx, args[0])
}

func init() {
	rootCmd.AddCommand(adapterCmd)

	adapterCmd.Flags().BoolVar(&adapterDebug, "debug", false, "Enable debug logging")
	adapterCmd.Flags().StringVar(&adapterConfigPath, "config-path", "", "Configuration directory (default: ~/.config/pkghub)")
}
