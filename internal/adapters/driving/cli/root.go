// Package cli provides the vulnbrief command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driving"
	"github.com/custodia-labs/vulnbrief/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Wired services. Populated by the bootstrap on first use, or injected
// directly by tests.
var (
	pipelineService   driving.Pipeline
	aggregatorService driving.Aggregator
	retrieverService  driving.Retriever
	settings          *domain.Settings
)

var (
	verbose   bool
	configDir string
	dataDir   string
)

var rootCmd = &cobra.Command{
	Use:   "vulnbrief",
	Short: "Aggregate, index and enrich vulnerability advisories",
	Long: `vulnbrief resolves a vulnerability advisory id against multiple public
sources, merges the results into one canonical record, retrieves related
prior advisories from a local index, and generates an enrichment brief
through configurable AI backends.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		logger.SetOutput(cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output on stderr")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (default ~/.vulnbrief)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.vulnbrief/data)")
}

// Execute runs the root command.
func Execute() error {
	defer closeServices()
	return rootCmd.Execute()
}
