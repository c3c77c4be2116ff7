package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/calm/bootstrap"
	"github.com/artpar/calm/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the calm API server.

The server will:
  - Load configuration from calm.yaml (or --config)
  - Or load configuration from CALM_* environment variables
  - Connect to the database
  - Register every module found under app.modules_dir
  - Serve the generated routes under app.prefix

Environment variables override the file:
  CALM_SERVER_PORT      - Server port (default: 8080)
  CALM_API_PREFIX       - Path prefix (default: /api/v1)
  CALM_MODULES_DIR      - Module tree (default: modules)
  CALM_DATABASE_DSN     - Database path (default: calm.db)
  CALM_LOG_LEVEL        - Log level: debug, info, warn, error

Examples:
  calm serve
  calm serve --config /etc/calm/calm.yaml
  calm serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload the log level when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	opts := bootstrap.Options{Version: version}

	if hasConfigFile && hotReload {
		// Hot reload only works with config file
		holder, err := config.NewHolder(cfgFile, bootstrap.NewLogger(config.LoggingConfig{}, os.Stderr))
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		opts.Holder = holder
	} else {
		cfg, err := config.LoadWithFallback(cfgFile)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		if !hasConfigFile {
			fmt.Fprintln(cmd.ErrOrStderr(), "Running with environment variables (no config file)")
		}
		opts.Config = cfg
	}

	app, err := bootstrap.New(opts)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
