package cmd

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-case-tracker/internal/config"
	"go-case-tracker/internal/helpers"
	"go-case-tracker/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive dashboard",
	Long: `Opens the terminal dashboard: the add card first, then one row per case.
Enter opens the selected card, e edits, d deletes, r refreshes and q quits.
Log output goes to <data-path>/case-tracker.log while the dashboard runs.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	if helpers.CheckAndMakeDir(globalConfig.DataPath) {
		logPath := filepath.Join(globalConfig.DataPath, "case-tracker.log")
		// #nosec G304
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err == nil {
			log.SetOutput(f)
			defer f.Close()
		}
	}

	a := openApp()
	defer a.Close()

	d := tui.New(cmd.Context(), tui.Options{
		Fetcher:     a.client,
		Service:     a.service,
		Timing:      config.UploadTiming(globalConfig),
		SettleDelay: config.SettleDelay(globalConfig),
		Observers:   a.observers(),
	})
	return d.Run()
}
