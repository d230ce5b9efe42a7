package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"dockship/internal/fault"
	"dockship/internal/input"
	"dockship/internal/logging"
	"dockship/internal/pipeline"
)

var cleanupFlags struct {
	repo           string
	host           string
	user           string
	key            string
	nonInteractive bool
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Tear down a previous deployment",
	Long: `Remove a release's remote footprint: stop its container or stack, delete
the deployment directory and remove its proxy rule.

Only the values identifying the target host and the release are needed;
credential, branch and port are not asked for. Every step converges to
"absent", so running cleanup against a host with nothing deployed succeeds.`,
	RunE: runCleanup,
}

func init() {
	f := cleanupCmd.Flags()
	f.StringVar(&cleanupFlags.repo, "repo", os.Getenv("DOCKSHIP_REPO"), "HTTPS repository URL (identifies the release)")
	f.StringVar(&cleanupFlags.host, "host", os.Getenv("DOCKSHIP_HOST"), "Remote host address")
	f.StringVar(&cleanupFlags.user, "user", os.Getenv("DOCKSHIP_USER"), "SSH user")
	f.StringVar(&cleanupFlags.key, "key", os.Getenv("DOCKSHIP_KEY"), "Private key path")
	f.BoolVar(&cleanupFlags.nonInteractive, "non-interactive", false, "Fail instead of prompting for missing values")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	in := input.Inputs{
		RepoURL: cleanupFlags.repo,
		Host:    cleanupFlags.host,
		User:    cleanupFlags.user,
		KeyPath: cleanupFlags.key,
	}

	if !cleanupFlags.nonInteractive {
		prompter := &input.StdinPrompter{In: os.Stdin, Out: os.Stdout}
		if err := input.CollectCleanup(&in, prompter); err != nil {
			return err
		}
	}
	if err := input.ValidateCleanup(&in); err != nil {
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

	if err := pipe.Cleanup(context.Background(), in); err != nil {
		logger.Error("cleanup failed",
			"error", err.Error(), "exit_code", fault.ExitCode(err))
		return err
	}
	return nil
}
