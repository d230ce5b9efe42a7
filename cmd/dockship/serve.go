package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"dockship/internal/history"
	"dockship/internal/logging"
	"dockship/internal/pipeline"
	"dockship/internal/server"
	"dockship/internal/target"
	"dockship/pkg/fileutil"
)

var serveFlags struct {
	configFile string
	dbPath     string
	host       string
	port       int
	testMode   bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the HTTP server that receives GitHub push webhooks and deploys the
matching target from targets.yaml.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveFlags.configFile, "config", "c", getEnvOrDefault("DOCKSHIP_CONFIG_FILE", ""), "Path to targets.yaml configuration file")
	f.StringVar(&serveFlags.dbPath, "db", getEnvOrDefault("DOCKSHIP_DB_PATH", ""), "Path to the history database")
	f.StringVar(&serveFlags.host, "host", getEnvOrDefault("DOCKSHIP_LISTEN_HOST", "127.0.0.1"), "Host to bind to")
	f.IntVarP(&serveFlags.port, "port", "p", getEnvOrDefaultInt("DOCKSHIP_LISTEN_PORT", 5000), "Port to listen on")
	f.BoolVar(&serveFlags.testMode, "test-mode", os.Getenv("DOCKSHIP_SKIP_VALIDATION") == "1", "Enable test mode (no rate limits, no history)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile := serveFlags.configFile
	if configFile == "" {
		searchPaths := fileutil.DefaultConfigPaths("targets.yaml")
		configFile = fileutil.SearchPathsOptional(searchPaths)
		if configFile == "" {
			fmt.Fprintf(os.Stderr, "Error: No configuration file found in default locations:\n")
			for _, path := range searchPaths {
				fmt.Fprintf(os.Stderr, "  - %s\n", path)
			}
			fmt.Fprintf(os.Stderr, "Use --config flag to specify a custom location\n")
			return fmt.Errorf("configuration file not found")
		}
	}

	logger, err := logging.New(filepath.Join(stateDir(), "logs"))
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logger.Close()

	logger.Info("loading configuration", "config", configFile)
	_, entries, err := target.LoadConfig(configFile)
	if err != nil {
		logger.Error("failed to load configuration", "error", err.Error())
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Info("configuration validated", "count", len(entries))

	if len(entries) == 0 {
		logger.Warn("no targets configured; the server will start but won't deploy anything", "config", configFile)
	}

	registry := target.NewRegistry(entries)

	var hist *history.Store
	if !serveFlags.testMode {
		path := serveFlags.dbPath
		if path == "" {
			path = filepath.Join(stateDir(), "history.db")
		}
		logger.Info("opening history database", "db", path)
		hist, err = history.Open(path)
		if err != nil {
			logger.Error("failed to open history database", "error", err.Error())
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer hist.Close()
	}

	pipe := &pipeline.Pipeline{
		Log:       logger,
		LocalRoot: filepath.Join(stateDir(), "work"),
		History:   hist,
	}

	srv := server.NewServer(registry, hist, pipe, logger, serveFlags.testMode)

	logger.Info("starting HTTP server", "host", serveFlags.host, "port", serveFlags.port)
	if err := srv.Start(serveFlags.host, serveFlags.port); err != nil {
		logger.Error("server failed", "error", err.Error())
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}
