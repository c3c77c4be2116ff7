package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "calm",
	Short: "Convention-driven REST API for declarative resources",
	Long: `calm serves a CRUD REST API for every resource described in the
module tree. Each resource directory holds one route unit, for example
modules/product/product.route.yaml, and everything else (collection,
paths, projection) is derived from it.

Quick start:
  calm validate     # Check config and modules
  calm routes       # Print the route table
  calm serve        # Start the server`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "calm.yaml", "config file path")
}
