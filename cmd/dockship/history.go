package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"dockship/internal/history"
)

var historyFlags struct {
	dbPath  string
	release string
	limit   int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded deployment runs",
	Long: `List runs recorded in the local history database, newest first.

Runs are only recorded when deploy/cleanup ran with --history or when the
webhook server is in use.`,
	RunE: runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyFlags.dbPath, "db", getEnvOrDefault("DOCKSHIP_DB_PATH", ""), "Path to the history database")
	f.StringVar(&historyFlags.release, "release", "", "Only show runs for this release")
	f.IntVarP(&historyFlags.limit, "limit", "n", 20, "Maximum number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := historyFlags.dbPath
	if path == "" {
		path = filepath.Join(stateDir(), "history.db")
	}

	store, err := history.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer store.Close()

	var runs []history.Run
	if historyFlags.release != "" {
		runs, err = store.RecentFor(historyFlags.release, historyFlags.limit)
	} else {
		runs, err = store.Recent(historyFlags.limit)
	}
	if err != nil {
		return fmt.Errorf("failed to query runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	for _, r := range runs {
		status := "ok"
		if r.ExitCode != 0 {
			status = fmt.Sprintf("failed (%d)", r.ExitCode)
		}
		fmt.Printf("%s  %-8s %-20s %-15s %-16s %s\n",
			r.Started.Format("2006-01-02 15:04:05"),
			r.Action, r.Release+"@"+r.Branch, r.Host, r.Mode, status)
		if r.Error != "" {
			fmt.Printf("    %s\n", r.Error)
		}
	}
	return nil
}
