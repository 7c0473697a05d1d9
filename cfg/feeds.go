package cfg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fourpisky-feeds/feeds"
	"fourpisky-feeds/pkg/feed"
	"fourpisky-feeds/voevent"
)

// DefaultAuthor is published in the Who section of every packet.
var DefaultAuthor = voevent.Author{
	Title:        "4 Pi Sky feed scraper",
	ShortName:    "4PiSkyBot",
	ContactName:  "Tim Staley",
	ContactEmail: "tim.staley@physics.ox.ac.uk",
}

const dateLayout = "2006-01-02"

type feedsFile struct {
	Author *voevent.Author `yaml:"author"`
	Role   string          `yaml:"role"`
	Asassn *asassnFile     `yaml:"asassn"`
	Gaia   *gaiaFile       `yaml:"gaia"`
	Swift  *swiftFile      `yaml:"swift"`
}

type rangeFile struct {
	Start int64 `yaml:"start"`
	End   int64 `yaml:"end"`
}

type asassnFile struct {
	Enabled            *bool             `yaml:"enabled"`
	URL                string            `yaml:"url"`
	HashRange          *rangeFile        `yaml:"hash_range"`
	FullBody           bool              `yaml:"full_body"`
	EarliestReparse    string            `yaml:"earliest_reparse"`
	BadIDs             []string          `yaml:"bad_ids"`
	TimestampOverrides map[string]string `yaml:"timestamp_overrides"`
}

type gaiaFile struct {
	Enabled   *bool      `yaml:"enabled"`
	URL       string     `yaml:"url"`
	HashRange *rangeFile `yaml:"hash_range"`
	FullBody  bool       `yaml:"full_body"`
}

type swiftFile struct {
	Enabled     *bool  `yaml:"enabled"`
	URLTemplate string `yaml:"url_template"`
	LookBack    string `yaml:"look_back"`
}

// DefaultFeeds returns the production feed settings with every feed enabled.
func DefaultFeeds() Feeds {
	return Feeds{
		Author:        DefaultAuthor,
		Role:          voevent.RoleObservation,
		AsassnEnabled: true,
		Asassn:        feeds.DefaultAsassnConfig(),
		GaiaEnabled:   true,
		Gaia:          feeds.DefaultGaiaConfig(),
		SwiftEnabled:  true,
		Swift:         feeds.DefaultSwiftConfig(),
	}
}

// LoadFeeds reads per-feed overrides from path. An empty path yields the
// defaults. Keys missing from the file keep their default values.
func LoadFeeds(path string) (*Feeds, error) {
	f := DefaultFeeds()
	if path == "" {
		return &f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds config: %w", err)
	}
	if err := ParseFeeds(data, &f); err != nil {
		return nil, fmt.Errorf("invalid feeds config %s: %w", path, err)
	}
	return &f, nil
}

// ParseFeeds applies the YAML document in data on top of f.
func ParseFeeds(data []byte, f *Feeds) error {
	var file feedsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if file.Author != nil {
		f.Author = *file.Author
	}
	if file.Role != "" {
		role := voevent.Role(file.Role)
		switch role {
		case voevent.RoleObservation, voevent.RolePrediction, voevent.RoleUtility, voevent.RoleTest:
			f.Role = role
		default:
			return fmt.Errorf("unknown role %q", file.Role)
		}
	}

	if a := file.Asassn; a != nil {
		if a.Enabled != nil {
			f.AsassnEnabled = *a.Enabled
		}
		if a.URL != "" {
			f.Asassn.URL = a.URL
		}
		r, err := hashRange(f.Asassn.HashRange, a.HashRange, a.FullBody)
		if err != nil {
			return fmt.Errorf("asassn: %w", err)
		}
		f.Asassn.HashRange = r
		if a.EarliestReparse != "" {
			t, err := time.Parse(dateLayout, a.EarliestReparse)
			if err != nil {
				return fmt.Errorf("asassn: earliest_reparse: %w", err)
			}
			f.Asassn.EarliestReparse = t
		}
		if a.BadIDs != nil {
			f.Asassn.BadIDs = a.BadIDs
		}
		if a.TimestampOverrides != nil {
			f.Asassn.TimestampOverrides = a.TimestampOverrides
		}
	}

	if g := file.Gaia; g != nil {
		if g.Enabled != nil {
			f.GaiaEnabled = *g.Enabled
		}
		if g.URL != "" {
			f.Gaia.URL = g.URL
		}
		r, err := hashRange(f.Gaia.HashRange, g.HashRange, g.FullBody)
		if err != nil {
			return fmt.Errorf("gaia: %w", err)
		}
		f.Gaia.HashRange = r
	}

	if s := file.Swift; s != nil {
		if s.Enabled != nil {
			f.SwiftEnabled = *s.Enabled
		}
		if s.URLTemplate != "" {
			f.Swift.URLTemplate = s.URLTemplate
		}
		if s.LookBack != "" {
			d, err := time.ParseDuration(s.LookBack)
			if err != nil {
				return fmt.Errorf("swift: look_back: %w", err)
			}
			if d <= 0 {
				return fmt.Errorf("swift: look_back must be positive: %s", d)
			}
			f.Swift.LookBack = d
		}
	}
	return nil
}

func hashRange(current *feed.ByteRange, r *rangeFile, fullBody bool) (*feed.ByteRange, error) {
	if fullBody {
		if r != nil {
			return nil, errors.New("hash_range and full_body are mutually exclusive")
		}
		return nil, nil
	}
	if r == nil {
		return current, nil
	}
	if r.Start < 0 || r.End < r.Start {
		return nil, fmt.Errorf("invalid hash_range %d-%d", r.Start, r.End)
	}
	return &feed.ByteRange{Start: r.Start, End: r.End}, nil
}
