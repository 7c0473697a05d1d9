package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// rebind rewrites "?" placeholders as "$n" for postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeLike quotes the LIKE wildcards so s matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ExistsExact reports whether a packet with exactly this identifier is stored.
func (db *DB) ExistsExact(ctx context.Context, ivorn string) (bool, error) {
	var exists bool
	query := db.rebind(`SELECT EXISTS (SELECT 1 FROM voevent WHERE ivorn = ?)`)
	if err := db.conn.QueryRowContext(ctx, query, ivorn).Scan(&exists); err != nil {
		return false, fmt.Errorf("query exact ivorn: %w", err)
	}
	return exists, nil
}

// ExistsPrefix reports whether any stored identifier starts with prefix.
func (db *DB) ExistsPrefix(ctx context.Context, prefix string) (bool, error) {
	var exists bool
	query := db.rebind(`SELECT EXISTS (SELECT 1 FROM voevent WHERE ivorn LIKE ? ESCAPE '\')`)
	if err := db.conn.QueryRowContext(ctx, query, escapeLike(prefix)+"%").Scan(&exists); err != nil {
		return false, fmt.Errorf("query ivorn prefix: %w", err)
	}
	return exists, nil
}

// Insert stores a packet. A packet whose identifier is already present
// returns ErrDuplicate.
func (db *DB) Insert(ctx context.Context, p Packet) (err error) {
	if p.Stream == "" {
		p.Stream = StreamOf(p.IVORN)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				db.logger.Warn("Rollback failed", "ivorn", p.IVORN, "error", rbErr)
			}
		}
	}()

	query := db.rebind(`INSERT INTO voevent (ivorn, stream, role, author_datetime, received, xml)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err = tx.ExecContext(ctx, query,
		p.IVORN,
		p.Stream,
		p.Role,
		p.AuthorDatetime.UTC(),
		time.Now().UTC(),
		string(p.XML),
	); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert packet: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	db.logger.Info("Inserted packet", "ivorn", p.IVORN, "stream", p.Stream)
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

// RecentPackets lists stored packets matching f, oldest first. With a
// positive f.Limit only the newest f.Limit packets are read.
func (db *DB) RecentPackets(ctx context.Context, f Filter) ([]Packet, error) {
	var conds []string
	var args []any
	if f.Stream != "" {
		conds = append(conds, "stream = ?")
		args = append(args, f.Stream)
	}
	if f.IVORNContains != "" {
		conds = append(conds, `ivorn LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.IVORNContains)+"%")
	}
	if f.Role != "" {
		conds = append(conds, "role = ?")
		args = append(args, f.Role)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "author_datetime >= ?")
		args = append(args, f.Since.UTC())
	}

	query := "SELECT ivorn, stream, role, author_datetime, xml FROM voevent"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if f.Limit > 0 {
		query += " ORDER BY author_datetime DESC LIMIT ?"
		args = append(args, f.Limit)
	} else {
		query += " ORDER BY author_datetime ASC"
	}

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query packets: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query

	var packets []Packet
	for rows.Next() {
		var (
			p       Packet
			created sql.NullTime
			xml     string
		)
		if err := rows.Scan(&p.IVORN, &p.Stream, &p.Role, &created, &xml); err != nil {
			return nil, fmt.Errorf("scan packet: %w", err)
		}
		p.AuthorDatetime = created.Time
		p.XML = []byte(xml)
		packets = append(packets, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate packets: %w", err)
	}
	if f.Limit > 0 {
		slices.Reverse(packets)
	}
	return packets, nil
}
