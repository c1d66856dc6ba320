package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var relatedCmd = &cobra.Command{
	Use:   "related [advisory-id]",
	Short: "Show related prior advisories from the local index",
	Long: `Resolves the advisory across the enabled sources, then queries the
local similarity index without running any generation.`,
	Args: cobra.ExactArgs(1),
	RunE: runRelated,
}

func init() {
	rootCmd.AddCommand(relatedCmd)
}

func runRelated(cmd *cobra.Command, args []string) error {
	if err := ensureServices(cmd.Context()); err != nil {
		return err
	}

	advisory, err := aggregatorService.Aggregate(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("aggregate failed: %w", err)
	}

	result, err := retrieverService.Retrieve(cmd.Context(), advisory)
	if err != nil {
		return fmt.Errorf("retrieve failed: %w", err)
	}

	if result.Empty() {
		cmd.Println("No related advisories indexed.")
		return nil
	}

	cmd.Printf("Related to %s:\n", advisory.ID)
	for _, ref := range result.Refs {
		line := fmt.Sprintf("  - %s (%s)", ref.Entry.ID, ref.Reason)
		if ref.Entry.SeverityLabel != "" {
			line += fmt.Sprintf(" [%s]", ref.Entry.SeverityLabel)
		}
		cmd.Println(line)
		if ref.Entry.Description != "" {
			cmd.Printf("      %s\n", ref.Entry.Description)
		}
	}
	return nil
}
