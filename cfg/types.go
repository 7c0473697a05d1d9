package cfg

import (
	"time"

	"fourpisky-feeds/eventstore"
	"fourpisky-feeds/feeds"
	"fourpisky-feeds/voevent"
)

// Cfg is the resolved runtime configuration. It is built once by Load and
// passed by value to constructors afterwards.
type Cfg struct {
	// Hash cache
	HashDBPath string
	HashBucket string

	// Logging
	LogFile string
	Debug   bool

	// Event store
	DB      eventstore.Config
	Migrate bool

	// Cycle behaviour
	Pacing       time.Duration
	FetchTimeout time.Duration
	DirectStore  bool
	DryRun       bool
	DryRunDir    string
	KafkaBrokers string
	KafkaTopic   string
	RedisAddr    string

	// Alerts
	EmailProvider     string
	GoogleCredentials string
	BrevoAPIKey       string
	AlertFrom         string
	AlertTo           []string
	TestMode          bool

	// Serve mode and metrics
	Listen      string
	Pushgateway string

	Feeds   Feeds
	Version string
}

// Feeds holds the per-feed settings, either defaults or read from the feeds
// YAML file.
type Feeds struct {
	Author voevent.Author
	Role   voevent.Role

	AsassnEnabled bool
	Asassn        feeds.AsassnConfig
	GaiaEnabled   bool
	Gaia          feeds.GaiaConfig
	SwiftEnabled  bool
	Swift         feeds.SwiftConfig
}

// SubjectPrefix is prepended to alert subjects.
func (c *Cfg) SubjectPrefix() string {
	if c.TestMode {
		return "[TEST][4PiSky] "
	}
	return "[4PiSky] "
}
