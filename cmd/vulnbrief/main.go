// Command vulnbrief is the advisory enrichment pipeline CLI.
package main

import (
	"os"

	"github.com/custodia-labs/vulnbrief/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
