// Package store provides a SQLite-backed cache of trace summaries, so a
// directory of traces can be listed without reparsing unchanged files.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/qiprof/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Cache provides SQLite-backed summary caching.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at the given path.
func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Tracked returns the key each cached summary was saved under, by path.
func (c *Cache) Tracked() (map[string]FileKey, error) {
	rows, err := c.db.Query("SELECT file_path, mtime_ns, size_bytes, fingerprint FROM summaries")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]FileKey)
	for rows.Next() {
		var k FileKey
		if err := rows.Scan(&k.Path, &k.MtimeNs, &k.Size, &k.Fingerprint); err != nil {
			return nil, err
		}
		result[k.Path] = k
	}
	return result, rows.Err()
}

// Lookup returns the summary cached for exactly this version of the file.
// A stale or missing entry reports ok=false.
func (c *Cache) Lookup(k FileKey) (s model.Summary, ok bool, err error) {
	var (
		version             sql.NullString
		timedOut, cancelled int
		loops               sql.NullInt64
		elapsed             int64
	)
	err = c.db.QueryRow(`SELECT
		file_name, z3_version, lines_read, bytes_read, terms, quantifiers,
		instantiations, equalities, parse_errors, timed_out, cancelled,
		matching_loops, elapsed_ns
		FROM summaries
		WHERE file_path = ? AND mtime_ns = ? AND size_bytes = ? AND fingerprint = ?`,
		k.Path, k.MtimeNs, k.Size, k.Fingerprint,
	).Scan(
		&s.File, &version, &s.Lines, &s.Bytes, &s.Terms, &s.Quantifiers,
		&s.Instantiations, &s.Equalities, &s.ParseErrors, &timedOut, &cancelled,
		&loops, &elapsed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Summary{}, false, nil
	}
	if err != nil {
		return model.Summary{}, false, err
	}

	s.Size = k.Size
	s.Version = version.String
	s.TimedOut = timedOut != 0
	s.Cancelled = cancelled != 0
	s.Elapsed = time.Duration(elapsed)
	if loops.Valid {
		n := int(loops.Int64)
		s.MatchingLoops = &n
	}

	rows, err := c.db.Query(`SELECT quantifier, instantiations FROM quant_usage
		WHERE file_path = ? ORDER BY instantiations DESC, quantifier`, k.Path)
	if err != nil {
		return model.Summary{}, false, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var u model.QuantUsage
		if err := rows.Scan(&u.Name, &u.Instantiations); err != nil {
			return model.Summary{}, false, err
		}
		s.Usage = append(s.Usage, u)
	}
	if err := rows.Err(); err != nil {
		return model.Summary{}, false, err
	}
	return s, true, nil
}

// Save stores a summary under k, replacing whatever the path held before.
func (c *Cache) Save(k FileKey, s model.Summary) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	var loops sql.NullInt64
	if s.MatchingLoops != nil {
		loops = sql.NullInt64{Int64: int64(*s.MatchingLoops), Valid: true}
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO summaries
		(file_path, file_name, mtime_ns, size_bytes, fingerprint, z3_version,
		 lines_read, bytes_read, terms, quantifiers, instantiations, equalities,
		 parse_errors, timed_out, cancelled, matching_loops, elapsed_ns, parsed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.Path, s.File, k.MtimeNs, k.Size, k.Fingerprint, s.Version,
		s.Lines, s.Bytes, s.Terms, s.Quantifiers, s.Instantiations, s.Equalities,
		s.ParseErrors, boolInt(s.TimedOut), boolInt(s.Cancelled), loops, int64(s.Elapsed), now,
	)
	if err != nil {
		return err
	}

	// Usage rows are replaced wholesale.
	if _, err := tx.Exec("DELETE FROM quant_usage WHERE file_path = ?", k.Path); err != nil {
		return err
	}
	for _, u := range s.Usage {
		_, err = tx.Exec(`INSERT INTO quant_usage (file_path, quantifier, instantiations)
			VALUES (?, ?, ?)
			ON CONFLICT (file_path, quantifier) DO UPDATE
			SET instantiations = instantiations + excluded.instantiations`, k.Path, u.Name, u.Instantiations)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Prune removes every entry whose path is not in keep and returns how many
// were removed.
func (c *Cache) Prune(keep map[string]struct{}) (int, error) {
	tracked, err := c.Tracked()
	if err != nil {
		return 0, err
	}
	removed := 0
	for path := range tracked {
		if _, ok := keep[path]; ok {
			continue
		}
		if err := c.Delete(path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Delete removes one file's summary.
func (c *Cache) Delete(path string) error {
	_, err := c.db.Exec("DELETE FROM summaries WHERE file_path = ?", path)
	return err
}

// Clear removes every cached summary.
func (c *Cache) Clear() error {
	_, err := c.db.Exec("DELETE FROM summaries")
	return err
}

// Count returns the number of cached summaries.
func (c *Cache) Count() (int, error) {
	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM summaries").Scan(&count)
	return count, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
