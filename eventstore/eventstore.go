// Package eventstore reads and writes VOEvent packets in the shared event
// database used for duplicate detection and direct insertion.
package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultName is the database the broker populates.
const DefaultName = "voeventdb"

// ErrDuplicate is returned by Insert when the identifier is already stored.
var ErrDuplicate = errors.New("packet already stored")

// Packet is one stored VOEvent.
type Packet struct {
	IVORN          string
	Stream         string
	Role           string
	AuthorDatetime time.Time
	XML            []byte
}

// Filter narrows RecentPackets. Zero fields match everything.
type Filter struct {
	Stream        string
	IVORNContains string
	Role          string
	Since         time.Time
	// Limit keeps only the newest Limit packets when positive.
	Limit int
}

// Config describes how to reach the database.
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	// Path is the database file for the sqlite driver.
	Path string
}

// DSN renders the driver specific connection string.
func (c Config) DSN() (string, error) {
	switch c.Driver {
	case DriverPostgres, "":
		var parts []string
		add := func(k, v string) {
			if v != "" {
				parts = append(parts, k+"="+v)
			}
		}
		add("host", c.Host)
		if c.Port != 0 {
			add("port", fmt.Sprint(c.Port))
		}
		add("user", c.User)
		add("password", c.Password)
		name := c.Name
		if name == "" {
			name = DefaultName
		}
		add("dbname", name)
		sslmode := c.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		add("sslmode", sslmode)
		return strings.Join(parts, " "), nil
	case DriverSQLite:
		if c.Path == "" {
			return "", errors.New("sqlite driver requires a database path")
		}
		return c.Path, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

// DB wraps a database connection with the queries the scrapers need.
type DB struct {
	conn   *sql.DB
	driver string
	logger *slog.Logger
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPostgres
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// Writers would otherwise contend for the file lock.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close() //nolint:errcheck // best effort cleanup
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Connected to event database", "driver", driver, "name", cfg.Name, "path", cfg.Path)
	return New(conn, driver, logger), nil
}

// New wraps an existing connection.
func New(conn *sql.DB, driver string, logger *slog.Logger) *DB {
	return &DB{conn: conn, driver: driver, logger: logger}
}

// Close closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	db.logger.Info("Closing event database connection")
	return db.conn.Close()
}

// StreamOf returns the authority and resource key of an identifier, e.g.
// "nasa.gsfc.gcn/SWIFT" for "ivo://nasa.gsfc.gcn/SWIFT#BAT_GRB_Pos_1".
func StreamOf(ivorn string) string {
	s := strings.TrimPrefix(ivorn, "ivo://")
	s, _, _ = strings.Cut(s, "#")
	return s
}
