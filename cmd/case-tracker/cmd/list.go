package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-case-tracker/internal/caselist"
	"go-case-tracker/internal/helpers"
	"go-case-tracker/internal/messages"
	"go-case-tracker/internal/modal"
	"go-case-tracker/internal/models"
	"go-case-tracker/internal/snapshot"
)

var (
	listJSONFlag   bool
	listCachedFlag bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cases with recency counters",
	Long: `Fetches the whole case collection from the store and prints it with the
dashboard counters (total, this month, last 24 hours).

With --cached the last successfully fetched collection is printed from the
local snapshot instead, without contacting the store.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSONFlag, "json", false, "Print the collection as JSON")
	listCmd.Flags().BoolVar(&listCachedFlag, "cached", false, "Print the last saved snapshot instead of fetching")
}

func runList(cmd *cobra.Command, args []string) error {
	a := openApp()
	defer a.Close()
	out := cmd.OutOrStdout()

	var (
		cases   []models.Case
		savedAt time.Time
	)
	if listCachedFlag {
		if a.snapshot == nil {
			return errors.New("snapshot store is disabled")
		}
		snap, err := a.snapshot.Load()
		if errors.Is(err, snapshot.ErrEmpty) {
			return errors.New("no snapshot saved yet, run list without --cached first")
		} else if err != nil {
			return err
		}
		cases, savedAt = snap.Cases, snap.SavedAt
	} else {
		list := caselist.New(cmd.Context(), a.client, modal.Deps{})
		for _, o := range a.observers() {
			list.Subscribe(o)
		}
		if err := refreshWithStatus(cmd, list); err != nil {
			return err
		}
		cases = list.Cases()
	}

	if listJSONFlag {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(models.CaseList{Cases: cases})
	}

	if !savedAt.IsZero() {
		fmt.Fprintf(out, "Snapshot from %s\n", savedAt.Local().Format(time.RFC1123))
	}
	printSummary(out, caselist.Summarize(cases, time.Now()))
	printCases(out, cases)
	return nil
}

// refreshWithStatus runs one refresh while a live status line shows it is loading.
func refreshWithStatus(cmd *cobra.Command, list *caselist.Controller) error {
	writer := uilive.New()
	writer.Out = cmd.ErrOrStderr()
	writer.Start()
	fmt.Fprintln(writer, messages.LoadingCases)

	err := list.Refresh(cmd.Context())
	if err != nil {
		fmt.Fprintf(writer, messages.LoadFailedFmt+"\n", err)
	} else {
		fmt.Fprintf(writer, messages.CasesLoadedFmt+"\n", len(list.Cases()))
	}
	writer.Stop()

	if err != nil {
		log.WithError(err).Debug("List refresh failed")
	}
	return err
}

func printSummary(out io.Writer, s caselist.Summary) {
	fmt.Fprintf(out, messages.SummaryLineFmt+"\n\n", s.Total, s.ThisMonth, s.Last24h)
}

func printCases(out io.Writer, cases []models.Case) {
	if len(cases) == 0 {
		fmt.Fprintln(out, messages.NoCases)
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, messages.ListHeader)
	for _, c := range cases {
		fmt.Fprintf(w, "%d\t%s\t%.0f%%\t%s\t%s\t%s\n",
			c.ID, c.Name, c.NormalizedProgress(), c.DateLabel(), refLabel(c.ImageRef), refLabel(c.ModelRef))
	}
	w.Flush()
}

func refLabel(ref *string) string {
	if ref == nil || *ref == "" {
		return "-"
	}
	return helpers.BaseNameFromRef(*ref)
}
