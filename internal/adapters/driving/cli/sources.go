package cli

import (
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured advisory sources",
	Args:  cobra.NoArgs,
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, _ []string) error {
	if err := ensureServices(cmd.Context()); err != nil {
		return err
	}

	cmd.Println("Configured sources:")
	for _, src := range settings.Sources {
		state := "enabled"
		if !src.Enabled {
			state = "disabled"
		}
		cmd.Printf("  %-8s tier %d (%s)  %s\n", src.Name, src.Tier, src.Tier, state)
	}
	return nil
}
