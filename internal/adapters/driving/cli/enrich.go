package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driving"
)

var enrichJSON bool

var enrichCmd = &cobra.Command{
	Use:   "enrich [advisory-id]",
	Short: "Aggregate, retrieve context and generate a brief",
	Long: `Runs the full pipeline for one advisory id: resolves it across all
enabled sources, pulls related prior advisories from the local index,
and generates an enrichment brief through the configured AI backends.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnrich,
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	if err := ensureServices(cmd.Context()); err != nil {
		return err
	}

	result, err := pipelineService.Enrich(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("enrich failed: %w", err)
	}

	if enrichJSON {
		return outputEnrichJSON(cmd, result)
	}
	outputEnrichText(cmd, result)
	return nil
}

func outputEnrichJSON(cmd *cobra.Command, result *driving.EnrichResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputEnrichText(cmd *cobra.Command, result *driving.EnrichResult) {
	advisory := result.Advisory

	cmd.Printf("%s\n", advisory.ID)
	cmd.Printf("  Severity:  %s\n", severityLine(advisory))
	cmd.Printf("  Sources:   %s\n", strings.Join(advisory.Provenance, ", "))
	if len(advisory.CWEIDs) > 0 {
		cmd.Printf("  Weaknesses: %s\n", strings.Join(advisory.CWEIDs, ", "))
	}

	if !result.Retrieved.Empty() {
		cmd.Println("\nRelated advisories:")
		for _, ref := range result.Retrieved.Refs {
			cmd.Printf("  - %s (%s)\n", ref.Entry.ID, ref.Reason)
		}
	}

	gen := result.Generation
	cmd.Printf("\nBrief (%s, %s):\n\n%s\n", gen.Backend, gen.Model, strings.TrimSpace(gen.Text))

	usage := gen.Usage
	estimate := ""
	if usage.Estimated {
		estimate = " (estimated)"
	}
	cmd.Printf("\nTokens: %d in / %d out%s\n", usage.InputTokens, usage.OutputTokens, estimate)

	if result.ReportPath != "" {
		cmd.Printf("Report: %s\n", result.ReportPath)
	}
}

func severityLine(advisory *domain.Advisory) string {
	switch {
	case advisory.SeverityScore != nil && advisory.SeverityLabel != "":
		return fmt.Sprintf("%.1f (%s)", *advisory.SeverityScore, advisory.SeverityLabel)
	case advisory.SeverityScore != nil:
		return fmt.Sprintf("%.1f", *advisory.SeverityScore)
	case advisory.SeverityLabel != "":
		return string(advisory.SeverityLabel)
	default:
		return "unknown"
	}
}
