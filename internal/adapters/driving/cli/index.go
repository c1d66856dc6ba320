package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the local similarity index",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE:  runIndexStats,
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-resolve every indexed advisory and rebuild the index",
	Long: `Re-aggregates each indexed advisory id against the enabled sources and
replaces the index with the fresh projections. Ids no source knows
anymore are kept as minimal records.`,
	Args: cobra.NoArgs,
	RunE: runIndexRebuild,
}

func init() {
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexRebuildCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexStats(cmd *cobra.Command, _ []string) error {
	if err := ensureServices(cmd.Context()); err != nil {
		return err
	}

	cmd.Printf("Indexed advisories: %d\n", retrieverService.Size())
	return nil
}

func runIndexRebuild(cmd *cobra.Command, _ []string) error {
	if err := ensureServices(cmd.Context()); err != nil {
		return err
	}

	ids, err := indexedIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		cmd.Println("Index is empty, nothing to rebuild.")
		return nil
	}

	entries := make([]domain.IndexEntry, 0, len(ids))
	for _, id := range ids {
		advisory, err := aggregatorService.Aggregate(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("re-aggregating %s: %w", id, err)
		}
		entries = append(entries, domain.NewIndexEntry(advisory))
	}

	if err := retrieverService.Rebuild(cmd.Context(), entries); err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	cmd.Printf("Rebuilt index with %d advisories.\n", len(entries))
	return nil
}

// indexedIDs lists the ids currently in the index. The driving port has
// no dump operation, so this relies on the concrete retrieval service.
func indexedIDs() ([]string, error) {
	type lister interface {
		Entries() []domain.IndexEntry
	}
	if l, ok := retrieverService.(lister); ok {
		entries := l.Entries()
		ids := make([]string, 0, len(entries))
		for _, entry := range entries {
			ids = append(ids, entry.ID)
		}
		return ids, nil
	}
	return nil, fmt.Errorf("index rebuild unsupported by this retriever")
}
