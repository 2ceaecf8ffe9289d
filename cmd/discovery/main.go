// Package main provides the entry point for the discovery service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "discovery",
		Short:        "Multi-source dataset and literature discovery service",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newSearchCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
