// Package cfg parses command-line flags and environment variables into Cfg.
package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jessevdk/go-flags"

	"fourpisky-feeds/eventstore"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

// Supported alert providers.
const (
	ProviderMock  = "mock"
	ProviderGmail = "gmail"
	ProviderBrevo = "brevo"
)

type rawCfg struct {
	// Hash cache
	HashDBPath string `long:"hashdb-path" env:"HASHDB_PATH" default:"/tmp/fps_feeds_hashdb" description:"Directory of the on-disk feed hash database"`
	HashBucket string `long:"hash-bucket" env:"HASH_BUCKET" description:"GCS bucket for feed hashes (overrides --hashdb-path)"`

	// Logging
	LogFile string `long:"logfile" env:"LOGFILE" default:"scrape_feeds.log" description:"Log file; a .debug sibling receives debug output"`
	Debug   bool   `long:"debug" env:"DEBUG" description:"Enable debug logging on stdout"`

	// Database configuration
	DBDriver   string `long:"db-driver" env:"DB_DRIVER" default:"postgres" choice:"postgres" choice:"sqlite" description:"Event store driver"`
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     int    `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" description:"Database password"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"voeventdb" description:"Database name"`
	DBSSLMode  string `long:"db-sslmode" env:"DB_SSLMODE" default:"disable" description:"Postgres sslmode"`
	DBPath     string `long:"db-path" env:"DB_PATH" description:"SQLite database file"`
	Migrate    bool   `long:"migrate" env:"MIGRATE" description:"Apply schema migrations before running"`

	// Cycle behaviour
	Pacing       time.Duration `long:"pacing" env:"PACING" default:"2s" description:"Delay between consecutive outbound events"`
	FetchTimeout time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30s" description:"Timeout for a single feed fetch"`
	DirectStore  bool          `long:"direct-store" env:"DIRECT_STORE" description:"Insert new packets straight into the event store"`
	DryRun       bool          `long:"dry-run" env:"DRY_RUN" description:"Write new packets to files instead of sending them"`
	DryRunDir    string        `long:"dry-run-dir" env:"DRY_RUN_DIR" default:"/tmp/fps_feeds_dryrun" description:"Directory for dry-run packets"`
	KafkaBrokers string        `long:"kafka-brokers" env:"KAFKA_BROKERS" default:"localhost:9092" description:"Comma-separated broker list for the broadcast sink"`
	KafkaTopic   string        `long:"kafka-topic" env:"KAFKA_TOPIC" default:"voevents" description:"Topic for the broadcast sink"`
	RedisAddr    string        `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the shared seen-IVORN cache (optional)"`
	FeedsConfig  string        `long:"feeds-config" env:"FEEDS_CONFIG" description:"YAML file with per-feed settings (optional)"`

	// Alerts
	EmailProvider     string   `long:"email-provider" env:"EMAIL_PROVIDER" default:"mock" choice:"mock" choice:"gmail" choice:"brevo" description:"Provider for maintainer alerts"`
	GoogleCredentials string   `long:"google-credentials" env:"GOOGLE_CREDENTIALS_JSON" description:"Service account JSON for the gmail provider"`
	BrevoAPIKey       string   `long:"brevo-api-key" env:"BREVO_API_KEY" description:"API key for the brevo provider"`
	AlertFrom         string   `long:"alert-from" env:"ALERT_FROM" default:"4pisky-bot@4pisky.org" description:"Sender address for alerts"`
	AlertTo           []string `long:"alert-to" env:"ALERT_TO" env-delim:"," description:"Alert recipient (repeatable)"`
	TestMode          bool     `long:"test-mode" env:"TEST_MODE" description:"Mark alert subjects as test messages"`

	// Serve mode and metrics
	Listen      string `long:"listen" env:"LISTEN" description:"Serve /pollz, /health and /metrics on this address instead of running once"`
	Pushgateway string `long:"pushgateway" env:"PUSHGATEWAY_URL" description:"Push metrics here after a one-shot run"`
}

// Load parses args (without the program name). It returns nil, nil when help
// was requested.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	feedSettings, err := LoadFeeds(raw.FeedsConfig)
	if err != nil {
		return nil, err
	}

	cfg := &Cfg{
		HashDBPath: raw.HashDBPath,
		HashBucket: raw.HashBucket,
		LogFile:    raw.LogFile,
		Debug:      raw.Debug,
		DB: eventstore.Config{
			Driver:   raw.DBDriver,
			Host:     raw.DBHost,
			Port:     raw.DBPort,
			User:     raw.DBUser,
			Password: raw.DBPassword,
			Name:     raw.DBName,
			SSLMode:  raw.DBSSLMode,
			Path:     raw.DBPath,
		},
		Migrate:           raw.Migrate,
		Pacing:            raw.Pacing,
		FetchTimeout:      raw.FetchTimeout,
		DirectStore:       raw.DirectStore,
		DryRun:            raw.DryRun,
		DryRunDir:         raw.DryRunDir,
		KafkaBrokers:      raw.KafkaBrokers,
		KafkaTopic:        raw.KafkaTopic,
		RedisAddr:         raw.RedisAddr,
		EmailProvider:     raw.EmailProvider,
		GoogleCredentials: raw.GoogleCredentials,
		BrevoAPIKey:       raw.BrevoAPIKey,
		AlertFrom:         raw.AlertFrom,
		AlertTo:           slices.DeleteFunc(raw.AlertTo, func(s string) bool { return s == "" }),
		TestMode:          raw.TestMode,
		Listen:            raw.Listen,
		Pushgateway:       raw.Pushgateway,
		Feeds:             *feedSettings,
		Version:           GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Cfg) validate() error {
	if c.Pacing < 0 {
		return fmt.Errorf("pacing must not be negative: %s", c.Pacing)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive: %s", c.FetchTimeout)
	}
	if c.DryRun && c.DirectStore {
		return errors.New("--dry-run and --direct-store are mutually exclusive")
	}
	if c.DB.Driver == eventstore.DriverSQLite && c.DB.Path == "" {
		return errors.New("--db-path is required for the sqlite driver")
	}
	switch c.EmailProvider {
	case ProviderBrevo:
		if c.BrevoAPIKey == "" {
			return errors.New("--brevo-api-key is required for the brevo provider")
		}
	case ProviderGmail, ProviderMock:
	default:
		return fmt.Errorf("unknown email provider %q", c.EmailProvider)
	}
	return nil
}
