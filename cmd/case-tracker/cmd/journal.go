package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"go-case-tracker/internal/config"
	"go-case-tracker/internal/database"
)

// Package-level variables for journal flags
var (
	journalStatus    string
	journalCaseID    int
	journalLimit     int
	journalJSON      bool
	journalOlderThan time.Duration
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the local record of mutations",
	Long:  `Every create, update and delete sent to the store is recorded locally with its outcome.`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded mutations, newest first",
	RunE:  runJournalList,
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove recorded mutations older than a duration",
	RunE:  runJournalPrune,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalPruneCmd)

	journalListCmd.Flags().StringVar(&journalStatus, "status", "", "Only entries with this status (Pending, Done, Error)")
	journalListCmd.Flags().IntVar(&journalCaseID, "case", 0, "Only entries for this case id")
	journalListCmd.Flags().IntVarP(&journalLimit, "limit", "l", 50, "Maximum number of entries")
	journalListCmd.Flags().BoolVar(&journalJSON, "json", false, "Print entries as JSON")

	journalPruneCmd.Flags().DurationVar(&journalOlderThan, "older-than", 30*24*time.Hour, "Age above which entries are removed")
}

func openJournal() (*database.DB, error) {
	if !globalConfig.Journal.Enabled {
		return nil, errors.New("journal is disabled")
	}
	if err := config.EnsureDataPath(globalConfig); err != nil {
		return nil, err
	}
	return database.Open(globalConfig.DatabasePath)
}

func runJournalList(cmd *cobra.Command, args []string) error {
	db, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.List(database.ListFilter{Status: journalStatus, CaseID: journalCaseID, Limit: journalLimit})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if journalJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No journal entries.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tOPERATION\tCASE\tNAME\tSTATUS\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			e.UpdatedAt.Local().Format("2006-01-02 15:04:05"), e.Operation, e.CaseID, e.CaseName, e.Status, e.ErrorDetails)
	}
	return w.Flush()
}

func runJournalPrune(cmd *cobra.Command, args []string) error {
	if journalOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive, got %s", journalOlderThan)
	}
	db, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := db.Prune(time.Now().Add(-journalOlderThan))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d journal entries.\n", removed)
	return nil
}
