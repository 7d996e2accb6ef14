package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/history"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [app-id]",
		Short: "Show recent check outcomes from the run journal",
		Long: `History lists recent check outcomes recorded in the journal, newest
first. With an app-id argument only that application's entries are shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID := ""
			if len(args) == 1 {
				appID = args[0]
			}
			return runHistory(cmd, opts, appID, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *rootOptions, appID string, limit int) error {
	s, err := opts.loadSettings()
	if err != nil {
		return err
	}
	writer, _, err := opts.writer(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	if s.HistoryPath == "" {
		return fmt.Errorf("history journal is disabled (history_path is empty)")
	}

	j, err := history.Open(s.HistoryPath)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Recent(cmd.Context(), appID, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No history recorded yet. Run 'napt check' first.")
		return nil
	}
	return writer.Write(entries)
}
