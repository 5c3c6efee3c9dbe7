package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-case-tracker/internal/api"
	"go-case-tracker/internal/helpers"
	"go-case-tracker/internal/models"
	"go-case-tracker/internal/paths"
	"go-case-tracker/internal/upload"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultBaseURL             = api.DefaultBaseURL
	DefaultDataPath            = ".case-tracker"
	DefaultDatabaseFile        = "journal.db"  // Relative to DataPath if not absolute
	DefaultSnapshotDir         = "snapshot"    // Relative to DataPath if not absolute
	DefaultBleveIndexDir       = "cases.bleve" // Relative to DataPath if not absolute
	DefaultLogApiRequests      = false
	DefaultAPIClientTimeoutSec = 30 // seconds
	DefaultFetchAttempts       = 3
	DefaultFetchRetryDelayMs   = 500 // milliseconds
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultConfigFilePath      = "config.toml"
	DefaultUploadTotalMs       = 2000
	DefaultUploadIntervalMs    = 100
	DefaultSettleDelayMs       = 200
	DefaultAttachmentsDir      = "attachments"
	DefaultAttachmentsPattern  = "{caseId}-{caseName}"
	EnvPrefix                  = "CASETRACKER"
)

// setViperDefaults configures Viper with the application's default values.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("baseurl", DefaultBaseURL)
	v.SetDefault("datapath", DefaultDataPath)
	v.SetDefault("databasepath", "")
	v.SetDefault("snapshotpath", "")
	v.SetDefault("bleveindexpath", "")
	v.SetDefault("logapirequests", DefaultLogApiRequests)
	v.SetDefault("apiclienttimeoutsec", DefaultAPIClientTimeoutSec)
	v.SetDefault("fetchattempts", DefaultFetchAttempts)
	v.SetDefault("fetchretrydelayms", DefaultFetchRetryDelayMs)
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)

	v.SetDefault("upload.totalms", DefaultUploadTotalMs)
	v.SetDefault("upload.intervalms", DefaultUploadIntervalMs)
	v.SetDefault("form.settledelayms", DefaultSettleDelayMs)

	v.SetDefault("attachments.outputdir", DefaultAttachmentsDir)
	v.SetDefault("attachments.pathpattern", DefaultAttachmentsPattern)

	v.SetDefault("journal.enabled", true)
	v.SetDefault("snapshot.enabled", true)
	v.SetDefault("index.enabled", true)
}

// CliFlags holds pointers to values received from command-line flags.
// Nil fields indicate the flag was not provided by the user.
type CliFlags struct {
	ConfigFilePath      *string
	LogLevel            *string // --log-level
	LogFormat           *string // --log-format
	LogApiRequests      *bool   // --log-api
	BaseURL             *string // --base-url
	DataPath            *string // --data-path
	APIClientTimeoutSec *int    // --api-timeout
	FetchAttempts       *int    // --fetch-attempts
	NoJournal           *bool   // --no-journal
}

// Initialize loads configuration based on defaults, config file, environment and flags.
// Precedence: Flags > Environment > Config File > Defaults.
func Initialize(flags CliFlags) (models.Config, http.RoundTripper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setViperDefaults(v)

	configFilePath := DefaultConfigFilePath
	if flags.ConfigFilePath != nil {
		configFilePath = *flags.ConfigFilePath
		log.Debugf("[Initialize] Using config file path from CLI flag: %s", configFilePath)
	}
	v.SetConfigFile(configFilePath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			log.Debugf("[Initialize] Config file '%s' not found. Using defaults, environment and CLI flags only.", configFilePath)
		} else {
			return models.Config{}, nil, fmt.Errorf("reading config file %s: %w", configFilePath, err)
		}
	} else {
		log.Infof("[Initialize] Read config file: %s", v.ConfigFileUsed())
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return models.Config{}, nil, fmt.Errorf("failed to unmarshal config from viper: %w", err)
	}

	applyFlags(&cfg, flags)
	derivePaths(&cfg)

	if err := Validate(cfg); err != nil {
		return models.Config{}, nil, err
	}

	transport := buildTransport(cfg)
	log.Debugf("[Initialize] Effective configuration: %+v", cfg)
	return cfg, transport, nil
}

func applyFlags(cfg *models.Config, flags CliFlags) {
	if flags.LogLevel != nil {
		cfg.LogLevel = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		cfg.LogFormat = *flags.LogFormat
	}
	if flags.LogApiRequests != nil {
		cfg.LogApiRequests = *flags.LogApiRequests
	}
	if flags.BaseURL != nil {
		log.Debugf("[Initialize] Overriding BaseURL from flag: '%s'", *flags.BaseURL)
		cfg.BaseURL = *flags.BaseURL
	}
	if flags.DataPath != nil {
		log.Debugf("[Initialize] Overriding DataPath from flag: '%s'", *flags.DataPath)
		cfg.DataPath = *flags.DataPath
	}
	if flags.APIClientTimeoutSec != nil {
		cfg.APIClientTimeoutSec = *flags.APIClientTimeoutSec
	}
	if flags.FetchAttempts != nil {
		cfg.FetchAttempts = *flags.FetchAttempts
	}
	if flags.NoJournal != nil && *flags.NoJournal {
		cfg.Journal.Enabled = false
	}
}

// derivePaths places the local stores under DataPath unless set explicitly.
func derivePaths(cfg *models.Config) {
	under := func(p, def string) string {
		if p == "" {
			return filepath.Join(cfg.DataPath, def)
		}
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(cfg.DataPath, p)
	}
	cfg.DatabasePath = under(cfg.DatabasePath, DefaultDatabaseFile)
	cfg.SnapshotPath = under(cfg.SnapshotPath, DefaultSnapshotDir)
	cfg.BleveIndexPath = under(cfg.BleveIndexPath, DefaultBleveIndexDir)
}

// Validate checks the settings the core cannot run without.
func Validate(cfg models.Config) error {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BaseURL %q must be an http(s) URL", cfg.BaseURL)
	}
	if cfg.DataPath == "" {
		return errors.New("DataPath cannot be empty (set via --data-path flag or DataPath in config)")
	}
	if cfg.Upload.IntervalMs <= 0 {
		return fmt.Errorf("Upload.IntervalMs must be positive, got %d", cfg.Upload.IntervalMs)
	}
	if cfg.Upload.IntervalMs > cfg.Upload.TotalMs {
		return fmt.Errorf("Upload.IntervalMs (%d) cannot exceed Upload.TotalMs (%d)", cfg.Upload.IntervalMs, cfg.Upload.TotalMs)
	}
	if cfg.Form.SettleDelayMs < 0 {
		return fmt.Errorf("Form.SettleDelayMs cannot be negative, got %d", cfg.Form.SettleDelayMs)
	}
	if cfg.APIClientTimeoutSec < 0 {
		return fmt.Errorf("ApiClientTimeoutSec cannot be negative, got %d", cfg.APIClientTimeoutSec)
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("LogFormat %q must be text or json", cfg.LogFormat)
	}
	if cfg.Attachments.PathPattern != "" {
		if err := paths.Validate(cfg.Attachments.PathPattern); err != nil {
			return fmt.Errorf("Attachments.PathPattern: %w", err)
		}
	}
	return nil
}

func buildTransport(cfg models.Config) http.RoundTripper {
	var transport http.RoundTripper = http.DefaultTransport
	if !cfg.LogApiRequests {
		return transport
	}

	logFilePath := "api.log"
	if helpers.CheckAndMakeDir(cfg.DataPath) {
		logFilePath = filepath.Join(cfg.DataPath, logFilePath)
	} else {
		log.Warnf("DataPath '%s' unavailable, saving api.log to current directory.", cfg.DataPath)
	}
	log.Infof("API logging to file: %s", logFilePath)

	loggingTransport, err := api.NewLoggingTransport(transport, logFilePath)
	if err != nil {
		log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		return transport
	}
	return loggingTransport
}

// UploadTiming converts the configured simulation durations.
func UploadTiming(cfg models.Config) upload.Timing {
	if cfg.Upload.IntervalMs <= 0 || cfg.Upload.TotalMs <= 0 {
		return upload.DefaultTiming()
	}
	return upload.Timing{
		Total:    time.Duration(cfg.Upload.TotalMs) * time.Millisecond,
		Interval: time.Duration(cfg.Upload.IntervalMs) * time.Millisecond,
	}
}

// SettleDelay is the pause between a successful submit and the form closing.
func SettleDelay(cfg models.Config) time.Duration {
	return time.Duration(cfg.Form.SettleDelayMs) * time.Millisecond
}

// EnsureDataPath creates DataPath when missing.
func EnsureDataPath(cfg models.Config) error {
	if !helpers.CheckAndMakeDir(cfg.DataPath) {
		return fmt.Errorf("cannot create data directory %s", cfg.DataPath)
	}
	if _, err := os.Stat(cfg.DataPath); err != nil {
		return fmt.Errorf("data directory %s: %w", cfg.DataPath, err)
	}
	return nil
}
