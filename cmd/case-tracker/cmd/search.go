package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go-case-tracker/internal/caselist"
	"go-case-tracker/internal/messages"
	"go-case-tracker/internal/modal"
)

var (
	searchLimit   int
	searchOffline bool
)

var searchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search cases by name and description",
	Long: `Searches the local index of case names and descriptions. The index is
refreshed from the store first unless --offline is given.

The query uses bleve query string syntax, e.g. "torre", "+concreto -armado", "name:ponte".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "Maximum number of results")
	searchCmd.Flags().BoolVar(&searchOffline, "offline", false, "Search the existing index without refreshing it")
}

func runSearch(cmd *cobra.Command, args []string) error {
	a := openApp()
	defer a.Close()
	if a.indexer == nil {
		return errors.New("search index is disabled")
	}

	if !searchOffline {
		list := caselist.New(cmd.Context(), a.client, modal.Deps{})
		for _, o := range a.observers() {
			list.Subscribe(o)
		}
		if err := refreshWithStatus(cmd, list); err != nil {
			return err
		}
	}

	hits, err := a.indexer.Search(strings.Join(args, " "), searchLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(hits) == 0 {
		fmt.Fprintln(out, messages.NoSearchResults)
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, messages.SearchHeader)
	for _, h := range hits {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.3f\n", h.CaseID, h.Name, h.Date, h.Score)
	}
	return w.Flush()
}
