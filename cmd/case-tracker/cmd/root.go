package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-case-tracker/internal/api"
	"go-case-tracker/internal/config"
	"go-case-tracker/internal/models"
)

// Persistent flag values
var (
	cfgFile           string
	logLevel          string
	logFormat         string
	logApiFlag        bool
	baseURLFlag       string
	dataPathFlag      string
	apiTimeoutFlag    int
	fetchAttemptsFlag int
	noJournalFlag     bool
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "case-tracker",
	Short: "Manage tracked cases and their attachments",
	Long: `case-tracker lists, creates, edits and deletes cases held by the case store,
each with an optional image and IFC model attachment.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadGlobalConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) { api.CloseAllLoggingTransports() },
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", config.DefaultConfigFilePath, "Configuration file path")
	pf.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Logging level (trace, debug, info, warn, error, fatal, panic)")
	pf.StringVar(&logFormat, "log-format", config.DefaultLogFormat, "Logging format (text, json)")
	pf.BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to <data-path>/api.log (overrides config)")
	pf.StringVar(&baseURLFlag, "base-url", "", "Case store base URL (overrides config)")
	pf.StringVar(&dataPathFlag, "data-path", "", "Directory for the journal, snapshot and search index (overrides config)")
	pf.IntVar(&apiTimeoutFlag, "api-timeout", -1, "Timeout for the API HTTP client in seconds (-1 uses config)")
	pf.IntVar(&fetchAttemptsFlag, "fetch-attempts", 0, "Attempts for fetching the case list (0 uses config)")
	pf.BoolVar(&noJournalFlag, "no-journal", false, "Do not record mutations in the local journal")
}

// cliFlags collects the persistent flags the user actually set.
func cliFlags(cmd *cobra.Command) config.CliFlags {
	flags := config.CliFlags{ConfigFilePath: &cfgFile}
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if changed("log-level") {
		flags.LogLevel = &logLevel
	}
	if changed("log-format") {
		flags.LogFormat = &logFormat
	}
	if changed("log-api") {
		flags.LogApiRequests = &logApiFlag
	}
	if changed("base-url") {
		flags.BaseURL = &baseURLFlag
	}
	if changed("data-path") {
		flags.DataPath = &dataPathFlag
	}
	if changed("api-timeout") && apiTimeoutFlag >= 0 {
		flags.APIClientTimeoutSec = &apiTimeoutFlag
	}
	if changed("fetch-attempts") && fetchAttemptsFlag > 0 {
		flags.FetchAttempts = &fetchAttemptsFlag
	}
	if changed("no-journal") {
		flags.NoJournal = &noJournalFlag
	}
	return flags
}

// loadGlobalConfig loads the configuration and sets up logging and the HTTP transport.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	initLogging(logLevel, logFormat, cmd.ErrOrStderr())

	cfg, transport, err := config.Initialize(cliFlags(cmd))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	globalConfig = cfg
	globalHttpTransport = transport

	// the config file may carry its own level and format
	initLogging(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	log.Debugf("Configuration loaded, base URL %s", cfg.BaseURL)
	return nil
}

func initLogging(level, format string, out io.Writer) {
	log.SetOutput(out)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Invalid log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
