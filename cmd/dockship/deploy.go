package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"dockship/internal/fault"
	"dockship/internal/history"
	"dockship/internal/input"
	"dockship/internal/logging"
	"dockship/internal/pipeline"
)

var deployFlags struct {
	repo           string
	token          string
	branch         string
	host           string
	user           string
	key            string
	port           int
	nonInteractive bool
	enableHistory  bool
	dbPath         string
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a repository to a remote host",
	Long: `Run the full pipeline: obtain the source, prepare the host, replace the
running instance, configure the reverse proxy and validate the deployment.

Missing values are prompted for interactively unless --non-interactive is
set. Every value can also come from a DOCKSHIP_* environment variable.`,
	RunE: runDeploy,
}

func init() {
	f := deployCmd.Flags()
	f.StringVar(&deployFlags.repo, "repo", os.Getenv("DOCKSHIP_REPO"), "HTTPS repository URL")
	f.StringVar(&deployFlags.token, "token", os.Getenv("DOCKSHIP_TOKEN"), "Access token for the repository")
	f.StringVar(&deployFlags.branch, "branch", getEnvOrDefault("DOCKSHIP_BRANCH", ""), "Branch to deploy (default main)")
	f.StringVar(&deployFlags.host, "host", os.Getenv("DOCKSHIP_HOST"), "Remote host address")
	f.StringVar(&deployFlags.user, "user", os.Getenv("DOCKSHIP_USER"), "SSH user")
	f.StringVar(&deployFlags.key, "key", os.Getenv("DOCKSHIP_KEY"), "Private key path")
	f.IntVarP(&deployFlags.port, "port", "p", getEnvOrDefaultInt("DOCKSHIP_PORT", 0), "Loopback port the container binds to")
	f.BoolVar(&deployFlags.nonInteractive, "non-interactive", false, "Fail instead of prompting for missing values")
	f.BoolVar(&deployFlags.enableHistory, "history", false, "Record this run in the local history database")
	f.StringVar(&deployFlags.dbPath, "db", getEnvOrDefault("DOCKSHIP_DB_PATH", ""), "History database path (implies --history)")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	in := input.Inputs{
		RepoURL: deployFlags.repo,
		Token:   deployFlags.token,
		Branch:  deployFlags.branch,
		Host:    deployFlags.host,
		User:    deployFlags.user,
		KeyPath: deployFlags.key,
		Port:    deployFlags.port,
	}

	if !deployFlags.nonInteractive {
		prompter := &input.StdinPrompter{In: os.Stdin, Out: os.Stdout}
		if err := input.CollectDeploy(&in, prompter); err != nil {
			return err
		}
	}
	if err := input.ValidateDeploy(&in); err != nil {
		return err
	}

	logger, err := logging.New(filepath.Join(stateDir(), "logs"))
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logger.Close()

	pipe := &pipeline.Pipeline{
		Log:       logger,
		LocalRoot: filepath.Join(stateDir(), "work"),
	}

	if store, err := openHistory(); err != nil {
		return err
	} else if store != nil {
		defer store.Close()
		pipe.History = store
	}

	if err := pipe.Deploy(context.Background(), in); err != nil {
		logger.Error("deployment failed",
			"error", err.Error(), "exit_code", fault.ExitCode(err))
		return err
	}
	return nil
}

// openHistory opens the history store when recording is requested. Without
// the flags no database is touched; runs leave only log files behind.
func openHistory() (*history.Store, error) {
	if !deployFlags.enableHistory && deployFlags.dbPath == "" {
		return nil, nil
	}
	path := deployFlags.dbPath
	if path == "" {
		path = filepath.Join(stateDir(), "history.db")
	}
	store, err := history.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return store, nil
}
