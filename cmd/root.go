package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the pkghub application.
var rootCmd = &cobra.Command{
	Use:   "pkghub",
	Short: "Aggregated xRegistry view over package ecosystems",
	Long: `pkghub serves a read-only xRegistry API over public package
ecosystems (npm, PyPI, Maven Central, NuGet, OCI registries, MCP
registries). A bridge process merges per-ecosystem adapter processes into
one catalog; clients browse groups, resources, and versions with the
standard filter, sort, inline, and pagination flags.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command; called from main with
// the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "pkghub version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
