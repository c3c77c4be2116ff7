package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/artpar/calm/bootstrap"
	"github.com/artpar/calm/config"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the route table",
	Long: `Print every route calm would serve with the current configuration.

Modules are loaded against an in-memory database, so the configured
database is never touched.

Examples:
  calm routes
  calm routes --config /etc/calm/calm.yaml`,
	RunE: runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)
}

func runRoutes(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	cfg.Database.Driver = "memory"
	cfg.Metrics.Enabled = false
	// Only module failures are worth showing here.
	cfg.Logging.Level = "warn"

	app, err := bootstrap.New(bootstrap.Options{
		Config:    cfg,
		LogOutput: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}
	defer app.DB.Close()

	tables := app.Registry.Tables()
	if len(tables) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No resources registered.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tMETHOD\tPATH\tOPERATION")
	fmt.Fprintln(w, "--------\t------\t----\t---------")

	for _, t := range tables {
		for _, rt := range t.Routes() {
			op := string(rt.Op)
			if op == "" {
				op = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name(), rt.Method, rt.Path, op)
		}
	}

	return w.Flush()
}
